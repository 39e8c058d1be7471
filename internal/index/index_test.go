package index

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "hygiene.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func rec(path, hash string, size int64, mod time.Time) FileRecord {
	return FileRecord{
		Path:         path,
		Filename:     filepath.Base(path),
		SizeBytes:    size,
		Hash:         hash,
		LastModified: mod,
		LastScanned:  mod,
	}
}

func TestUpsertAndQueryByPath(t *testing.T) {
	idx := openTest(t)
	now := time.Now().UTC()
	r := rec("/a/b.txt", "deadbeef", 3, now)
	if err := idx.Upsert(r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := idx.Query(map[string]any{"path": "/a/b.txt"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Hash != "deadbeef" {
		t.Fatalf("unexpected query result: %+v", got)
	}
}

func TestUpsertReplacesByPath(t *testing.T) {
	idx := openTest(t)
	now := time.Now().UTC()
	if err := idx.Upsert(rec("/a/b.txt", "h1", 3, now)); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if err := idx.Upsert(rec("/a/b.txt", "h2", 5, now)); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	all, err := idx.Query(nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 1 || all[0].Hash != "h2" || all[0].SizeBytes != 5 {
		t.Fatalf("expected single replaced record, got %+v", all)
	}
}

func TestUpsertRejectsInvalidRecord(t *testing.T) {
	idx := openTest(t)
	err := idx.Upsert(FileRecord{Path: "/x"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	err = idx.Upsert(rec("/x", "h", -1, time.Now()))
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for negative size, got %v", err)
	}
}

func TestQueryUnknownKeyIgnored(t *testing.T) {
	idx := openTest(t)
	now := time.Now().UTC()
	if err := idx.Upsert(rec("/a/b.txt", "h1", 3, now)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := idx.Query(map[string]any{"bogus": "value"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected unknown criteria ignored (all rows), got %d", len(got))
	}
}

func TestGetDuplicatesOmitsSingletons(t *testing.T) {
	idx := openTest(t)
	now := time.Now().UTC()
	if err := idx.Upsert(rec("/a.txt", "dup", 3, now)); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(rec("/b.txt", "dup", 3, now)); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(rec("/c.txt", "unique", 6, now)); err != nil {
		t.Fatal(err)
	}
	groups, err := idx.GetDuplicates()
	if err != nil {
		t.Fatalf("get duplicates: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(groups))
	}
	if len(groups["dup"]) != 2 {
		t.Fatalf("expected 2 members in dup group, got %d", len(groups["dup"]))
	}
	if _, ok := groups["unique"]; ok {
		t.Fatalf("singleton hash should not appear in duplicate groups")
	}
}

func TestUpdatePathRenamesPrimaryKey(t *testing.T) {
	idx := openTest(t)
	now := time.Now().UTC()
	if err := idx.Upsert(rec("/old/path.txt", "h", 3, now)); err != nil {
		t.Fatal(err)
	}
	if err := idx.UpdatePath("/old/path.txt", "/new/path.txt"); err != nil {
		t.Fatalf("update path: %v", err)
	}
	all, err := idx.Query(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Path != "/new/path.txt" || all[0].Filename != "path.txt" {
		t.Fatalf("unexpected post-rename state: %+v", all)
	}
}

func TestUpdatePathNotFound(t *testing.T) {
	idx := openTest(t)
	err := idx.UpdatePath("/missing.txt", "/new.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePathConflict(t *testing.T) {
	idx := openTest(t)
	now := time.Now().UTC()
	if err := idx.Upsert(rec("/a.txt", "h1", 1, now)); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(rec("/b.txt", "h2", 1, now)); err != nil {
		t.Fatal(err)
	}
	err := idx.UpdatePath("/a.txt", "/b.txt")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	all, err := idx.Query(map[string]any{"path": "/a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected /a.txt to remain after failed rename")
	}
}
