// Package knowledge holds the static knowledge base consulted by the
// calibration stage. Entries are loaded once at startup and are read-only on
// the request path; ingestion happens out-of-band (see cmd/kbload).
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// Category classifies a knowledge entry.
type Category string

const (
	CategoryCorrection        Category = "correction"
	CategoryInsight           Category = "insight"
	CategoryServiceDefinition Category = "service_definition"
)

// Entry is one unit of static knowledge. Match is a case-insensitive
// substring predicate evaluated against the generated answer; Payload is the
// replacement or elaboration text.
type Entry struct {
	ID       string
	Category Category
	Match    string
	Payload  string
}

// Store serves knowledge entries from memory.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStore creates a store over a fixed entry set. Used by tests and by
// deployments that inline their corrections.
func NewStore(entries []Entry) *Store {
	return &Store{entries: entries}
}

// Open loads all entries from a SQLite database into memory. A missing or
// empty database is not an error: the calibration stage degrades to a no-op.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init knowledge schema: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, category, match_text, payload FROM knowledge_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var cat string
		if err := rows.Scan(&e.ID, &cat, &e.Match, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		e.Category = Category(cat)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge entries: %w", err)
	}

	s := NewStore(entries)
	corrections, insights, services := s.Counts()
	logger.Info("knowledge base loaded",
		slog.String("path", path),
		slog.Int("corrections", corrections),
		slog.Int("insights", insights),
		slog.Int("services", services))
	return s, nil
}

const schema = `CREATE TABLE IF NOT EXISTS knowledge_entries (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	match_text TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// Counts returns how many entries are loaded per category.
func (s *Store) Counts() (corrections, insights, services int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		switch e.Category {
		case CategoryCorrection:
			corrections++
		case CategoryInsight:
			insights++
		case CategoryServiceDefinition:
			services++
		}
	}
	return
}

// Len returns the total number of loaded entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
