package analysis

import (
	"testing"
	"time"

	"github.com/loganrooks/storage-hygiene-go/internal/config"
	"github.com/loganrooks/storage-hygiene-go/internal/index"
)

func ptrFloat(f float64) *float64 { return &f }
func ptrInt(i int) *int           { return &i }

func snapshotFor(t *testing.T) []index.FileRecord {
	t.Helper()
	now := time.Now().UTC()
	return []index.FileRecord{
		{Path: "/root/a.txt", Hash: "dup", SizeBytes: 3, LastModified: now.Add(-48 * time.Hour)},
		{Path: "/root/sub/b.txt", Hash: "dup", SizeBytes: 3, LastModified: now.Add(-24 * time.Hour)},
		{Path: "/root/big.bin", Hash: "big", SizeBytes: 15 * 1024 * 1024, LastModified: now},
		{Path: "/root/stale.log", Hash: "stale", SizeBytes: 10, LastModified: now.Add(-400 * 24 * time.Hour)},
		{Path: "/root/u.txt", Hash: "unique", SizeBytes: 6, LastModified: now},
	}
}

func fullRuleConfig() config.RuleConfig {
	return config.RuleConfig{
		DuplicateFiles: config.DuplicateFilesRule{Enabled: true},
		LargeFiles:     config.LargeFilesRule{Enabled: true, MinSizeMB: ptrFloat(10)},
		OldFiles:       config.OldFilesRule{Enabled: true, MaxDays: ptrInt(365)},
	}
}

func TestEvaluateBaselineScenario(t *testing.T) {
	actions := Evaluate(snapshotFor(t), fullRuleConfig())

	dups := actions.Candidates(KindStageDuplicate)
	if len(dups) != 1 {
		t.Fatalf("expected 1 duplicate candidate, got %d", len(dups))
	}
	if dups[0].Path != "/root/sub/b.txt" || dups[0].OriginalPath != "/root/a.txt" {
		t.Fatalf("unexpected duplicate candidate: %+v", dups[0])
	}

	large := actions.Candidates(KindReviewLarge)
	if len(large) != 1 || large[0].Path != "/root/big.bin" {
		t.Fatalf("unexpected large candidates: %+v", large)
	}

	old := actions.Candidates(KindReviewOld)
	if len(old) != 1 || old[0].Path != "/root/stale.log" {
		t.Fatalf("unexpected old candidates: %+v", old)
	}
}

func TestEvaluateKeptOriginalNeverStaged(t *testing.T) {
	actions := Evaluate(snapshotFor(t), fullRuleConfig())
	for _, c := range actions.Candidates(KindStageDuplicate) {
		if c.Path == "/root/a.txt" {
			t.Fatalf("kept original must never be emitted as a stage_duplicate candidate")
		}
	}
}

func TestEvaluateDisabledRulesOmitted(t *testing.T) {
	rc := config.RuleConfig{DuplicateFiles: config.DuplicateFilesRule{Enabled: true}}
	actions := Evaluate(snapshotFor(t), rc)
	if len(actions.Candidates(KindStageDuplicate)) != 1 {
		t.Fatalf("expected 1 duplicate candidate")
	}
	if actions.Candidates(KindReviewLarge) != nil {
		t.Fatalf("expected no large candidates when rule disabled")
	}
	if actions.Candidates(KindReviewOld) != nil {
		t.Fatalf("expected no old candidates when rule disabled")
	}
}

func TestEvaluateLargeFileRuleSkippedWithoutThreshold(t *testing.T) {
	rc := config.RuleConfig{LargeFiles: config.LargeFilesRule{Enabled: true}}
	actions := Evaluate(snapshotFor(t), rc)
	if actions.Candidates(KindReviewLarge) != nil {
		t.Fatalf("expected large rule to be skipped without min_size_mb")
	}
}

func TestEvaluateOldFileRuleSkippedWithoutThreshold(t *testing.T) {
	rc := config.RuleConfig{OldFiles: config.OldFilesRule{Enabled: true}}
	actions := Evaluate(snapshotFor(t), rc)
	if actions.Candidates(KindReviewOld) != nil {
		t.Fatalf("expected old rule to be skipped without max_days")
	}

	negative := -5
	rc2 := config.RuleConfig{OldFiles: config.OldFilesRule{Enabled: true, MaxDays: &negative}}
	actions2 := Evaluate(snapshotFor(t), rc2)
	if actions2.Candidates(KindReviewOld) != nil {
		t.Fatalf("expected old rule to be skipped for non-positive max_days")
	}
}

func TestEvaluatePrecedenceUnderOverlap(t *testing.T) {
	now := time.Now().UTC()
	snapshot := []index.FileRecord{
		{Path: "/root/large_and_old.zip", Hash: "lao", SizeBytes: 20 * 1024 * 1024, LastModified: now.Add(-400 * 24 * time.Hour)},
	}
	actions := Evaluate(snapshot, fullRuleConfig())

	if len(actions.Candidates(KindStageDuplicate)) != 0 {
		t.Fatalf("expected no duplicate candidates for a single unique file")
	}
	large := actions.Candidates(KindReviewLarge)
	old := actions.Candidates(KindReviewOld)
	if len(large) != 1 || len(old) != 1 {
		t.Fatalf("expected the file to independently qualify for both large and old (precedence is the executor's job): large=%d old=%d", len(large), len(old))
	}

	kinds := actions.Kinds()
	largeIdx, oldIdx := -1, -1
	for i, k := range kinds {
		if k == KindReviewLarge {
			largeIdx = i
		}
		if k == KindReviewOld {
			oldIdx = i
		}
	}
	if largeIdx == -1 || oldIdx == -1 || largeIdx > oldIdx {
		t.Fatalf("expected large to be emitted before old in insertion order, got kinds=%v", kinds)
	}
}

func TestEvaluateDuplicateGroupSortOrder(t *testing.T) {
	now := time.Now().UTC()
	snapshot := []index.FileRecord{
		{Path: "/root/z.txt", Hash: "h", SizeBytes: 3, LastModified: now},
		{Path: "/root/a.txt", Hash: "h", SizeBytes: 3, LastModified: now},
		{Path: "/root/m.txt", Hash: "h", SizeBytes: 3, LastModified: now},
	}
	rc := config.RuleConfig{DuplicateFiles: config.DuplicateFilesRule{Enabled: true}}
	actions := Evaluate(snapshot, rc)
	dups := actions.Candidates(KindStageDuplicate)
	if len(dups) != 2 {
		t.Fatalf("expected 2 duplicates (3 same-mtime files, 1 kept), got %d", len(dups))
	}
	for _, d := range dups {
		if d.OriginalPath != "/root/a.txt" {
			t.Fatalf("expected path-ascending tie-break to keep /root/a.txt, got original %s", d.OriginalPath)
		}
	}
}
