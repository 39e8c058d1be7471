// Package scanner walks one or more root directories depth-first,
// collecting file metadata, skipping unchanged files, hashing the rest
// with a bounded worker pool, and upserting the results into the
// Metadata Index.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loganrooks/storage-hygiene-go/internal/fsutil"
	"github.com/loganrooks/storage-hygiene-go/internal/index"
	"github.com/loganrooks/storage-hygiene-go/internal/logger"
)

// ErrIndexWrite is returned by Scan when a write to the Metadata Index
// itself fails. Unlike per-file hashing, stat, or walk errors — which are
// tallied in Summary.Errored and logged as warnings, since they affect
// only the one file — an Index write failure can mean the index store
// is corrupt or unusable, so Scan aborts and surfaces it as fatal rather
// than folding it into the same per-file bucket.
var ErrIndexWrite = errors.New("scanner: index write failed")

// TimestampToleranceSeconds is the slack allowed when deciding whether a
// file's (size, mtime) still matches its stored record, since filesystem
// mtime precision and clock skew make exact equality unreliable.
const TimestampToleranceSeconds = 1

// DefaultWorkers is the hashing pool size used when the caller does not
// override it.
const DefaultWorkers = 8

// Summary tallies what one Scan call did, independent of the Metadata
// Index's own bookkeeping.
type Summary struct {
	Visited int
	Hashed  int
	Skipped int
	Errored int
}

// Options parameterizes a scan.
type Options struct {
	Ignore  fsutil.Ignore
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return DefaultWorkers
}

type hashJob struct {
	path string
	stat fsutil.FileStat
}

type hashResult struct {
	job  hashJob
	hash string
	err  error
}

// Scan walks root depth-first, skipping files whose (size, mtime) already
// match idx's record within TimestampToleranceSeconds, hashes the rest
// concurrently, and serializes the resulting upserts through a single
// writer goroutine so the Index never sees concurrent writes.
func Scan(ctx context.Context, idx *index.Index, root string, opts Options) (Summary, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Summary{}, err
	}

	jobs := make(chan hashJob)
	results := make(chan hashResult)
	summary := Summary{}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(cctx)

	// Writer: the sole goroutine permitted to call idx.Upsert, serializing
	// all index mutation for this scan. An Upsert failure is fatal: it
	// cancels the scan and is surfaced by Scan's return value rather than
	// folded into Summary.Errored like a per-file problem.
	var writerErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for res := range results {
			if writerErr != nil {
				// Already aborting; drain so blocked senders can unblock.
				continue
			}
			if res.err != nil {
				logger.Warn("error hashing %s: %v", res.job.path, res.err)
				summary.Errored++
				continue
			}
			now := time.Now().UTC()
			rec := index.FileRecord{
				Path:         res.job.path,
				Filename:     filepath.Base(res.job.path),
				SizeBytes:    res.job.stat.Size,
				LastModified: res.job.stat.ModTime,
				Hash:         res.hash,
				LastScanned:  now,
			}
			if err := idx.Upsert(rec); err != nil {
				writerErr = fmt.Errorf("%w: %s: %v", ErrIndexWrite, res.job.path, err)
				logger.Error("%v", writerErr)
				cancel()
				continue
			}
			summary.Hashed++
		}
	}()

	// Hashing pool: bounded worker set consuming jobs and streaming hash
	// results back to the writer.
	workers := opts.workers()
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					hash, err := fsutil.HashFile(job.path)
					select {
					case results <- hashResult{job: job, hash: hash, err: err}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
		})
	}

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("error visiting %s: %v", path, err)
			summary.Errored++
			return nil
		}
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr == nil && opts.Ignore.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			// Never follow symlinks.
			return nil
		}

		summary.Visited++
		normalized, err := fsutil.NormalizePath(path)
		if err != nil {
			logger.Warn("error normalizing path %s: %v", path, err)
			summary.Errored++
			return nil
		}

		stat, err := fsutil.StatFile(path)
		if err != nil {
			logger.Warn("error stating %s: %v", path, err)
			summary.Errored++
			return nil
		}

		if shouldSkip(idx, normalized, stat) {
			summary.Skipped++
			return nil
		}

		select {
		case jobs <- hashJob{path: normalized, stat: stat}:
		case <-gctx.Done():
			return gctx.Err()
		}
		return nil
	})

	close(jobs)
	groupErr := group.Wait()
	close(results)
	<-writerDone

	if writerErr != nil {
		return summary, writerErr
	}
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		return summary, walkErr
	}
	if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
		return summary, groupErr
	}
	return summary, nil
}

// shouldSkip reports whether path's current (size, mtime) still matches its
// stored record closely enough to skip re-hashing.
func shouldSkip(idx *index.Index, path string, stat fsutil.FileStat) bool {
	recs, err := idx.Query(map[string]any{"path": path})
	if err != nil || len(recs) == 0 {
		return false
	}
	existing := recs[0]
	if existing.SizeBytes != stat.Size {
		return false
	}
	delta := existing.LastModified.Sub(stat.ModTime)
	return math.Abs(delta.Seconds()) < TimestampToleranceSeconds
}
