package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteIndex is an Index implementation backed by an embedded SQLite
// database. It lets a deployment move off the snapshot file without any
// change to the store facade; the snapshot remains the default backing.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (creating if necessary) the index database at dbPath.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	// The busy timeout makes contending writers wait for the lock instead
	// of failing immediately with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			originalname TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_id ON records(id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init records schema: %w", err)
		}
	}

	return &SQLiteIndex{db: db}, nil
}

// Close closes the underlying database.
func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Path, &rec.Size, &rec.OriginalName, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (idx *SQLiteIndex) LoadAll() ([]Record, error) {
	rows, err := idx.db.Query(`SELECT id, name, path, size, originalname, deleted FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return scanRecords(rows)
}

func (idx *SQLiteIndex) Append(rec Record) error {
	_, err := idx.db.Exec(
		`INSERT INTO records(id, name, path, size, originalname, deleted) VALUES(?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Path, rec.Size, rec.OriginalName, rec.Deleted,
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (idx *SQLiteIndex) SoftDelete(id string) (Record, error) {
	// A single conditional UPDATE is the serialization point: of any number
	// of concurrent deletes for the same id, exactly one flips the flag and
	// the rest see zero affected rows.
	res, err := idx.db.Exec(`UPDATE records SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return Record{}, fmt.Errorf("mark record deleted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("mark record deleted: %w", err)
	}
	if affected == 0 {
		return Record{}, ErrNotFound
	}

	var rec Record
	err = idx.db.QueryRow(
		`SELECT id, name, path, size, originalname FROM records
		 WHERE id = ? ORDER BY seq LIMIT 1`,
		id,
	).Scan(&rec.ID, &rec.Name, &rec.Path, &rec.Size, &rec.OriginalName)
	if err != nil {
		return Record{}, fmt.Errorf("lookup record: %w", err)
	}

	// Same inconsistency window as the snapshot index: the record is already
	// invisible, so a failed rename is reported, not fatal.
	if err := os.Rename(rec.Path, rec.Path+deletedSuffix); err != nil {
		slog.Error("Rename soft-deleted blob file", "path", rec.Path, "err", err)
	}
	return rec, nil
}

func (idx *SQLiteIndex) Query(match func(Record) bool) ([]Record, error) {
	rows, err := idx.db.Query(`SELECT id, name, path, size, originalname, deleted FROM records WHERE deleted = 0 ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	if match == nil {
		return records, nil
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
