package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	hash        TEXT NOT NULL UNIQUE,
	parent_hash TEXT,
	turn        TEXT NOT NULL,
	failed      INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(parent_hash);
`

const selectEntries = `SELECT hash, parent_hash, turn FROM entries`

// SQLiteStorer persists entries in a SQLite database.
type SQLiteStorer struct {
	db *sql.DB
}

// NewSQLiteStorer opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteStorer(path string) (*SQLiteStorer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create schema: %w", err)
	}

	return &SQLiteStorer{db: db}, nil
}

// Put implements Storer.
func (s *SQLiteStorer) Put(ctx context.Context, entry *Entry) (bool, error) {
	if entry == nil {
		return false, errNilEntry
	}

	turn, err := json.Marshal(entry.Turn)
	if err != nil {
		return false, fmt.Errorf("could not marshal turn: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entries (hash, parent_hash, turn, failed) VALUES (?, ?, ?, ?)`,
		entry.Hash, entry.ParentHash, string(turn), entry.Turn.Failed(),
	)
	if err != nil {
		return false, fmt.Errorf("could not insert entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not read insert result: %w", err)
	}
	return n > 0, nil
}

// Get implements Storer.
func (s *SQLiteStorer) Get(ctx context.Context, hash string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntries+` WHERE hash = ?`, hash)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound{Hash: hash}
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Has implements Storer.
func (s *SQLiteStorer) Has(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries WHERE hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("could not query entry: %w", err)
	}
	return n > 0, nil
}

// GetByParent implements Storer.
func (s *SQLiteStorer) GetByParent(ctx context.Context, parentHash *string) ([]*Entry, error) {
	if parentHash == nil {
		return s.query(ctx, selectEntries+` WHERE parent_hash IS NULL ORDER BY seq`)
	}
	return s.query(ctx, selectEntries+` WHERE parent_hash = ? ORDER BY seq`, *parentHash)
}

// List implements Storer.
func (s *SQLiteStorer) List(ctx context.Context) ([]*Entry, error) {
	return s.query(ctx, selectEntries+` ORDER BY seq`)
}

// Roots implements Storer.
func (s *SQLiteStorer) Roots(ctx context.Context) ([]*Entry, error) {
	return s.GetByParent(ctx, nil)
}

// Leaves implements Storer.
func (s *SQLiteStorer) Leaves(ctx context.Context) ([]*Entry, error) {
	return s.query(ctx, selectEntries+` e WHERE NOT EXISTS (
		SELECT 1 FROM entries c WHERE c.parent_hash = e.hash
	) ORDER BY seq`)
}

// Close implements Storer.
func (s *SQLiteStorer) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorer) query(ctx context.Context, q string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query entries: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read entries: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e      Entry
		parent sql.NullString
		turn   string
	)
	if err := row.Scan(&e.Hash, &parent, &turn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("could not scan entry: %w", err)
	}
	if parent.Valid {
		e.ParentHash = &parent.String
	}
	if err := json.Unmarshal([]byte(turn), &e.Turn); err != nil {
		return nil, fmt.Errorf("could not unmarshal turn of %s: %w", e.Hash, err)
	}
	return &e, nil
}

// Open returns a SQLite store for path, or an in-memory store when path
// is empty.
func Open(path string) (Storer, error) {
	if path == "" {
		return NewMemoryStorer(), nil
	}
	return NewSQLiteStorer(path)
}
