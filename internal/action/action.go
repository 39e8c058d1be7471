// Package action consumes an analysis.ActionMap, relocates files into a
// deterministic staging subtree, and reconciles the Metadata Index.
package action

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/loganrooks/storage-hygiene-go/internal/analysis"
	"github.com/loganrooks/storage-hygiene-go/internal/fsutil"
	"github.com/loganrooks/storage-hygiene-go/internal/index"
	"github.com/loganrooks/storage-hygiene-go/internal/logger"
)

// ErrFilesystem wraps an OS-level failure during a move. It is fatal: the
// run aborts, but moves that already succeeded remain applied.
var ErrFilesystem = errors.New("action: filesystem error")

// Summary tallies what a run actually did, for internal/report.
type Summary struct {
	Counts  map[analysis.Kind]int
	Moved   map[analysis.Kind]int
	Skipped int
}

func newSummary() Summary {
	return Summary{Counts: map[analysis.Kind]int{}, Moved: map[analysis.Kind]int{}}
}

// Executor applies action candidates against an Index, moving files beneath
// StagingDir.
type Executor struct {
	Index      *index.Index
	StagingDir string
	DryRun     bool
}

// New constructs an Executor. dryRunOverride, if non-nil, supersedes
// configuredDryRun.
func New(idx *index.Index, stagingDir string, configuredDryRun bool, dryRunOverride *bool) *Executor {
	dryRun := configuredDryRun
	if dryRunOverride != nil {
		dryRun = *dryRunOverride
	}
	return &Executor{Index: idx, StagingDir: stagingDir, DryRun: dryRun}
}

// Execute applies actions in the kind order the Analysis Engine emitted
// them (duplicates, large, old — first kind wins for any file that
// qualifies for more than one). Returns ErrFilesystem if any move fails at
// the OS level; moves that succeeded before the failure remain applied and
// reflected in the Index.
func (ex *Executor) Execute(actions *analysis.ActionMap) (Summary, error) {
	summary := newSummary()
	moved := make(map[string]struct{})

	for _, kind := range actions.Kinds() {
		for _, cand := range actions.Candidates(kind) {
			summary.Counts[kind]++

			if cand.Path == "" {
				logger.Warn("skipping %s candidate with missing path", kind)
				summary.Skipped++
				continue
			}

			normalized, err := fsutil.NormalizePath(cand.Path)
			if err != nil {
				logger.Warn("skipping %s candidate %s: normalize path: %v", kind, cand.Path, err)
				summary.Skipped++
				continue
			}
			if _, already := moved[normalized]; already {
				logger.Warn("%s already processed by a previous action this run, skipping %s", cand.Path, kind)
				summary.Skipped++
				continue
			}

			dest, err := ex.destinationFor(kind, cand)
			if err != nil {
				logger.Warn("skipping %s candidate %s: %v", kind, cand.Path, err)
				summary.Skipped++
				continue
			}

			if ex.DryRun {
				logger.Info("[dry run] would stage %s -> %s (%s)", cand.Path, dest, kind)
				continue
			}

			movedOK, err := ex.stageFile(cand.Path, dest)
			if err != nil {
				return summary, fmt.Errorf("%w: move %s -> %s: %v", ErrFilesystem, cand.Path, dest, err)
			}
			if !movedOK {
				// Destination collision: non-fatal, skip.
				logger.Warn("destination %s already exists, skipping %s", dest, cand.Path)
				summary.Skipped++
				continue
			}

			moved[normalized] = struct{}{}
			summary.Moved[kind]++

			if err := ex.Index.UpdatePath(cand.Path, dest); err != nil {
				// Index update failure after a successful move: log as
				// high-severity but continue. The filesystem is
				// authoritative and a later scan reconciles.
				logger.Error("index reconciliation failed for %s -> %s: %v", cand.Path, dest, err)
			}
		}
	}

	return summary, nil
}

// destinationFor computes the staging path for a candidate: duplicates are
// sharded by hash prefix, large and old files land in flat per-kind
// directories.
func (ex *Executor) destinationFor(kind analysis.Kind, cand analysis.Candidate) (string, error) {
	base := filepath.Base(cand.Path)
	switch kind {
	case analysis.KindStageDuplicate:
		if cand.Hash == "" {
			return "", fmt.Errorf("missing hash for stage_duplicate action")
		}
		return filepath.Join(ex.StagingDir, "duplicates", cand.Hash[:2], cand.Hash, base), nil
	case analysis.KindReviewLarge:
		return filepath.Join(ex.StagingDir, "large_files", base), nil
	case analysis.KindReviewOld:
		return filepath.Join(ex.StagingDir, "old_files", base), nil
	default:
		return "", fmt.Errorf("unknown action kind %q", kind)
	}
}

// stageFile moves src to dest, creating dest's parent directory. Returns
// (false, nil) if dest already exists (collision, non-fatal). Uses
// os.Rename first, falling back to copy+unlink only on a cross-device
// rename (EXDEV).
func (ex *Executor) stageFile(src, dest string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	err := os.Rename(src, dest)
	if err == nil {
		return true, nil
	}
	if !isCrossDevice(err) {
		return false, err
	}
	if err := copyAndRemove(src, dest); err != nil {
		return false, err
	}
	return true, nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		if errno, ok := linkErr.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	return runtime.GOOS != "windows" && errors.Is(err, syscall.EXDEV)
}

func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}
