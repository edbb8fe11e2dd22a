package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/blackmichael/rss2bsky/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS published_links (
		position INTEGER PRIMARY KEY,
		link     TEXT NOT NULL UNIQUE
	)`

// SQLiteStore keeps published links in a SQLite database. The database is
// opened on first use, so a corrupt file is reported by Load and Save
// rather than by the constructor.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	ready bool
}

// NewSQLiteStore prepares a store for the database at path. The caller
// should call Close when the store is no longer needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// ensureSchema pings the database and creates the schema once it succeeds.
func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.ready = true
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the links in insertion order. When the database cannot be
// opened or queried it returns an empty set and the error.
func (s *SQLiteStore) Load(ctx context.Context) (domain.PublishedLinks, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return domain.PublishedLinks{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT link FROM published_links ORDER BY position`)
	if err != nil {
		return domain.PublishedLinks{}, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := domain.PublishedLinks{}
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return domain.PublishedLinks{}, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return domain.PublishedLinks{}, fmt.Errorf("iterate links: %w", err)
	}

	return links, nil
}

// Save replaces the stored links with links in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, links domain.PublishedLinks) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM published_links`); err != nil {
		return fmt.Errorf("delete links: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO published_links (position, link)
		VALUES (?, ?)
		ON CONFLICT (link) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, link := range links {
		if _, err := stmt.ExecContext(ctx, i, link); err != nil {
			return fmt.Errorf("insert link %q: %w", link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
