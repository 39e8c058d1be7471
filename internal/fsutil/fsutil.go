// Package fsutil provides path normalization, hashing, and stat helpers
// shared by the scanner and action executor.
package fsutil

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// HashChunkSize is the read buffer used while streaming a file through SHA-256.
const HashChunkSize = 64 * 1024

// ErrNotFound mirrors os.ErrNotExist for callers that don't want to import os.
var ErrNotFound = os.ErrNotExist

// FileStat is the subset of file identity used for incremental-scan decisions.
type FileStat struct {
	Size    int64
	ModTime time.Time
}

// StatFile returns size and UTC-normalized mod time for path.
func StatFile(path string) (FileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileStat{}, ErrNotFound
		}
		return FileStat{}, err
	}
	return FileStat{
		Size:    info.Size(),
		ModTime: NormalizeModTime(info.ModTime()),
	}, nil
}

// NormalizeModTime converts to UTC. Callers compare with a tolerance rather
// than relying on equality, since filesystem mtime precision varies.
func NormalizeModTime(t time.Time) time.Time {
	return t.UTC()
}

// HashFile computes the lowercase-hex SHA-256 of path, streaming in
// HashChunkSize chunks so memory use stays bounded regardless of file size.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, HashChunkSize)
	// Hide *os.File's WriteTo so CopyBuffer actually reads through buf.
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{f}, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// NormalizePath returns the absolute, case-normalized form of path used as
// the Index primary key. Case-folding only applies on platforms where the
// default filesystem is case-insensitive (Windows, Darwin).
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if caseInsensitiveFS() {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}

func caseInsensitiveFS() bool {
	switch runtime.GOOS {
	case "windows", "darwin":
		return true
	default:
		return false
	}
}

// Ignore is a set of glob patterns (doublestar syntax) a scan should skip.
type Ignore struct {
	Globs []string
}

// DefaultIgnore returns the baseline set of directories a scan never
// descends into, regardless of user configuration.
func DefaultIgnore() Ignore {
	return Ignore{Globs: []string{
		".git/**",
		"node_modules/**",
		"vendor/**",
	}}
}

// WithStagingDir returns ig extended to also ignore the given staging
// directory (relative to root), so a run never re-scans files it just
// quarantined on a subsequent invocation.
func (ig Ignore) WithStagingDir(root, stagingDir string) Ignore {
	rel, err := filepath.Rel(root, stagingDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ig
	}
	rel = filepath.ToSlash(rel)
	out := Ignore{Globs: append([]string{}, ig.Globs...)}
	out.Globs = append(out.Globs, rel+"/**")
	return out
}

// Matches reports whether relPath (slash-separated, relative to the scan
// root) matches any ignore glob.
func (ig Ignore) Matches(relPath string) bool {
	normalized := filepath.ToSlash(relPath)
	for _, g := range ig.Globs {
		if g == "" {
			continue
		}
		ok, err := doublestar.Match(g, normalized)
		if err == nil && ok {
			return true
		}
	}
	return false
}
