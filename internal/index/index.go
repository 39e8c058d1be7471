// Package index is the Metadata Index: a durable, sqlite-backed store of
// FileRecords keyed by absolute path.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors returned by Index methods.
var (
	ErrStorageUnavailable = errors.New("index: storage unavailable")
	ErrInvalidRecord      = errors.New("index: invalid record")
	ErrNotFound           = errors.New("index: path not found")
	ErrConflict           = errors.New("index: destination path already exists")
)

// FileRecord is one row of the files table.
type FileRecord struct {
	Path         string
	Filename     string
	SizeBytes    int64
	LastModified time.Time
	Hash         string
	LastScanned  time.Time
}

// Index is a scoped handle over the metadata database file. Acquire with
// Open, release with Close exactly once.
type Index struct {
	db *sql.DB
}

// Open creates dbPath's parent directory and database file if absent, then
// ensures the files schema exists. Returns ErrStorageUnavailable if dbPath
// cannot be created or opened.
func Open(dbPath string) (*Index, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create dir %s: %v", ErrStorageUnavailable, dir, err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, dbPath, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: apply pragma %s: %v", ErrStorageUnavailable, p, err)
		}
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &Index{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	const stmt = `CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		last_modified TEXT NOT NULL,
		hash TEXT,
		last_scanned TEXT NOT NULL
	);`
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle. Safe to call once.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert inserts or replaces a record by its path primary key. All fields
// except Hash are required; Hash may be empty only transiently (a failed
// read during scanning).
func (idx *Index) Upsert(rec FileRecord) error {
	if rec.Path == "" || rec.Filename == "" || rec.LastModified.IsZero() || rec.LastScanned.IsZero() {
		return fmt.Errorf("%w: missing required field for %q", ErrInvalidRecord, rec.Path)
	}
	if rec.SizeBytes < 0 {
		return fmt.Errorf("%w: negative size for %q", ErrInvalidRecord, rec.Path)
	}
	const stmt = `INSERT OR REPLACE INTO files(path, filename, size_bytes, last_modified, hash, last_scanned)
		VALUES (?, ?, ?, ?, ?, ?);`
	_, err := idx.db.Exec(stmt,
		rec.Path, rec.Filename, rec.SizeBytes,
		rec.LastModified.UTC().Format(time.RFC3339Nano),
		rec.Hash,
		rec.LastScanned.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.Path, err)
	}
	return nil
}

// validColumns is the whitelist of equality-queryable columns for Query.
var validColumns = map[string]struct{}{
	"path": {}, "filename": {}, "size_bytes": {},
	"last_modified": {}, "hash": {}, "last_scanned": {},
}

// Query returns all records matching equality on a whitelisted subset of
// columns. Empty criteria returns all records. Unknown keys are ignored.
func (idx *Index) Query(criteria map[string]any) ([]FileRecord, error) {
	var where []string
	var args []any
	for k, v := range criteria {
		if _, ok := validColumns[k]; !ok {
			continue // unknown keys ignored; caller may log a warning
		}
		where = append(where, fmt.Sprintf("%s = ?", k))
		args = append(args, v)
	}

	query := `SELECT path, filename, size_bytes, last_modified, hash, last_scanned FROM files`
	if len(where) > 0 {
		query += " WHERE "
		for i, clause := range where {
			if i > 0 {
				query += " AND "
			}
			query += clause
		}
	}
	query += ";"

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]FileRecord, error) {
	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		var lastModified, lastScanned string
		var hash sql.NullString
		if err := rows.Scan(&rec.Path, &rec.Filename, &rec.SizeBytes, &lastModified, &hash, &lastScanned); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Hash = hash.String
		t, err := time.Parse(time.RFC3339Nano, lastModified)
		if err != nil {
			return nil, fmt.Errorf("parse last_modified for %s: %w", rec.Path, err)
		}
		rec.LastModified = t
		s, err := time.Parse(time.RFC3339Nano, lastScanned)
		if err != nil {
			return nil, fmt.Errorf("parse last_scanned for %s: %w", rec.Path, err)
		}
		rec.LastScanned = s
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetDuplicates returns a mapping from hash to the records sharing it, for
// hashes with two or more members. Order within a group is unspecified;
// the Analysis Engine re-sorts it deterministically before use.
func (idx *Index) GetDuplicates() (map[string][]FileRecord, error) {
	const stmt = `SELECT path, filename, size_bytes, last_modified, hash, last_scanned
		FROM files
		WHERE hash IS NOT NULL AND hash != '' AND hash IN (
			SELECT hash FROM files WHERE hash IS NOT NULL AND hash != '' GROUP BY hash HAVING COUNT(*) > 1
		);`
	rows, err := idx.db.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("get duplicates: %w", err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]FileRecord)
	for _, r := range records {
		groups[r.Hash] = append(groups[r.Hash], r)
	}
	return groups, nil
}

// UpdatePath atomically renames a record's primary key from oldPath to
// newPath, recomputing filename. Returns ErrNotFound if oldPath is absent
// and ErrConflict if newPath already exists.
func (idx *Index) UpdatePath(oldPath, newPath string) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("update path: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM files WHERE path = ?;`, oldPath).Scan(&exists); err != nil {
		return fmt.Errorf("update path: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, oldPath)
	}

	var conflict int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM files WHERE path = ?;`, newPath).Scan(&conflict); err != nil {
		return fmt.Errorf("update path: %w", err)
	}
	if conflict > 0 {
		return fmt.Errorf("%w: %s", ErrConflict, newPath)
	}

	filename := filepath.Base(newPath)
	if _, err := tx.Exec(`UPDATE files SET path = ?, filename = ? WHERE path = ?;`, newPath, filename, oldPath); err != nil {
		return fmt.Errorf("update path: %w", err)
	}
	return tx.Commit()
}

// Snapshot returns every record, sorted by path, for the Analysis Engine to
// evaluate rules against as a pure in-memory function.
func (idx *Index) Snapshot() ([]FileRecord, error) {
	records, err := idx.Query(nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}
