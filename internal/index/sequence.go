package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Allocator assigns a persistent, monotonic sequence number to each original
// identifier. The same identifier always receives the same number, across
// process restarts; no other component mints sequence numbers. The assignment
// is committed before Allocate returns, so a crash after a successful call
// never loses the mapping.
type Allocator struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenAllocator opens (or creates) the sequence database under dir.
func OpenAllocator(dir string) (*Allocator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "sequence.db"))
	if err != nil {
		return nil, fmt.Errorf("could not open sequence database: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ids (
		key TEXT PRIMARY KEY,
		seq INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create sequence table: %w", err)
	}
	return &Allocator{db: db}, nil
}

// Allocate returns the sequence number for an original identifier, assigning
// the next one on first sight. Concurrent calls for the same identifier
// serialize on the allocator lock; there is exactly one winner.
func (a *Allocator) Allocate(originalID string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := normalizeKey(originalID)
	if key == "" {
		return 0, fmt.Errorf("empty identifier")
	}

	tx, err := a.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("could not start allocation: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRow("SELECT seq FROM ids WHERE key = ?", key).Scan(&seq)
	switch err {
	case nil:
		return seq, nil
	case sql.ErrNoRows:
		// First occurrence; assign the next number.
	default:
		return 0, fmt.Errorf("could not read sequence entry: %w", err)
	}

	if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) + 1 FROM ids").Scan(&seq); err != nil {
		return 0, fmt.Errorf("could not compute next sequence number: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO ids (key, seq) VALUES (?, ?)", key, seq); err != nil {
		return 0, fmt.Errorf("could not write sequence entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit allocation: %w", err)
	}
	return seq, nil
}

// Close flushes and closes the allocator.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Close()
}
