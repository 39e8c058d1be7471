// Package analysis is the Analysis Engine: a pure function of an Index
// snapshot and a RuleConfig that produces an ordered action map.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/loganrooks/storage-hygiene-go/internal/config"
	"github.com/loganrooks/storage-hygiene-go/internal/index"
	"github.com/loganrooks/storage-hygiene-go/internal/logger"
)

// Kind identifies the action a candidate proposes: a fixed, exhaustive set
// of tagged variants rather than open-ended string-keyed dispatch.
type Kind string

const (
	KindStageDuplicate Kind = "stage_duplicate"
	KindReviewLarge    Kind = "review_large"
	KindReviewOld      Kind = "review_old"
)

// Candidate is a transient, not-yet-executed action emitted by the engine.
type Candidate struct {
	Kind         Kind
	Path         string
	Hash         string // required when Kind == KindStageDuplicate
	OriginalPath string // for duplicates: the kept sibling
	Reason       string // diagnostic only
}

// ActionMap is an insertion-ordered mapping from kind to its ordered
// candidate list. Insertion order is the contract that drives Action
// Executor precedence: duplicates, then large, then old.
type ActionMap struct {
	order  []Kind
	byKind map[Kind][]Candidate
}

func newActionMap() *ActionMap {
	return &ActionMap{byKind: make(map[Kind][]Candidate)}
}

func (m *ActionMap) add(k Kind, c Candidate) {
	if _, ok := m.byKind[k]; !ok {
		m.order = append(m.order, k)
	}
	m.byKind[k] = append(m.byKind[k], c)
}

// Kinds returns the kinds present, in the order their first candidate was
// added (duplicates, large, old — when all three are present).
func (m *ActionMap) Kinds() []Kind {
	return append([]Kind{}, m.order...)
}

// Candidates returns the ordered candidate list for kind, or nil if absent.
func (m *ActionMap) Candidates(k Kind) []Candidate {
	return m.byKind[k]
}

// Len returns the total number of candidates across all kinds.
func (m *ActionMap) Len() int {
	n := 0
	for _, v := range m.byKind {
		n += len(v)
	}
	return n
}

// Evaluate runs the duplicate, large-file, and old-file rules in that fixed
// order against snapshot, per rc. It performs no filesystem I/O.
func Evaluate(snapshot []index.FileRecord, rc config.RuleConfig) *ActionMap {
	actions := newActionMap()
	applyDuplicateRule(actions, snapshot, rc)
	applyLargeFileRule(actions, snapshot, rc)
	applyOldFileRule(actions, snapshot, rc)
	return actions
}

func applyDuplicateRule(actions *ActionMap, snapshot []index.FileRecord, rc config.RuleConfig) {
	if !rc.DuplicateFiles.Enabled {
		return
	}
	groups := groupByHash(snapshot)
	hashes := make([]string, 0, len(groups))
	for h := range groups {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes) // deterministic iteration over map-derived groups
	for _, hash := range hashes {
		files := groups[hash]
		if len(files) < 2 {
			continue
		}
		sort.Slice(files, func(i, j int) bool {
			if !files[i].LastModified.Equal(files[j].LastModified) {
				return files[i].LastModified.Before(files[j].LastModified)
			}
			return files[i].Path < files[j].Path
		})
		original := files[0]
		for _, dup := range files[1:] {
			actions.add(KindStageDuplicate, Candidate{
				Kind:         KindStageDuplicate,
				Path:         dup.Path,
				Hash:         hash,
				OriginalPath: original.Path,
				Reason:       fmt.Sprintf("duplicate of %s", original.Path),
			})
		}
	}
}

func groupByHash(snapshot []index.FileRecord) map[string][]index.FileRecord {
	groups := make(map[string][]index.FileRecord)
	for _, r := range snapshot {
		if r.Hash == "" {
			continue
		}
		groups[r.Hash] = append(groups[r.Hash], r)
	}
	for h, files := range groups {
		if len(files) < 2 {
			delete(groups, h)
		}
	}
	return groups
}

func applyLargeFileRule(actions *ActionMap, snapshot []index.FileRecord, rc config.RuleConfig) {
	if !rc.LargeFiles.Enabled {
		return
	}
	if rc.LargeFiles.MinSizeMB == nil {
		logger.Warn("large_files rule enabled but min_size_mb not set; skipping")
		return
	}
	threshold := int64(*rc.LargeFiles.MinSizeMB * 1024 * 1024)
	for _, r := range snapshot {
		if r.SizeBytes > threshold {
			sizeMB := float64(r.SizeBytes) / (1024 * 1024)
			actions.add(KindReviewLarge, Candidate{
				Kind:   KindReviewLarge,
				Path:   r.Path,
				Reason: fmt.Sprintf("file size (%.1f MB) exceeds threshold (%.1f MB)", sizeMB, *rc.LargeFiles.MinSizeMB),
			})
		}
	}
}

func applyOldFileRule(actions *ActionMap, snapshot []index.FileRecord, rc config.RuleConfig) {
	if !rc.OldFiles.Enabled {
		return
	}
	if rc.OldFiles.MaxDays == nil || *rc.OldFiles.MaxDays <= 0 {
		logger.Warn("old_files rule enabled but max_days is missing or not a positive integer; skipping")
		return
	}
	threshold := time.Now().UTC().Add(-time.Duration(*rc.OldFiles.MaxDays) * 24 * time.Hour)
	for _, r := range snapshot {
		// LastModified is always UTC-tagged by the Index (stored and parsed
		// as RFC3339), so no naive-timestamp coercion is ever needed here.
		if r.LastModified.UTC().Before(threshold) {
			actions.add(KindReviewOld, Candidate{
				Kind:   KindReviewOld,
				Path:   r.Path,
				Reason: fmt.Sprintf("file older than %d days", *rc.OldFiles.MaxDays),
			})
		}
	}
}
