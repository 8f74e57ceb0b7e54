// Package affinity persists which provider last produced a working stream
// for a resolution key. Records are hints for candidate ordering, so writes
// are last-write-wins and read failures degrade to "no hint".
package affinity

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"streamweave/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the sqlite-backed affinity document store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the affinity database at path and runs
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open affinity db: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate affinity db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the affinity record for key, or nil when none exists.
func (s *Store) Get(ctx context.Context, key string) (*models.ProviderAffinity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT resolution_key, source_id, embed_id, updated_at FROM provider_affinity WHERE resolution_key = ?`, key)

	var rec models.ProviderAffinity
	var updatedAt int64
	if err := row.Scan(&rec.ResolutionKey, &rec.SourceID, &rec.EmbedID, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read affinity for %q: %w", key, err)
	}
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

// MergeSet upserts the affinity for key. An empty embedID keeps any
// previously stored embed rather than clearing it, so a direct-stream win
// does not wipe the embed hint written by an earlier embed win.
func (s *Store) MergeSet(ctx context.Context, key, sourceID, embedID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_affinity (resolution_key, source_id, embed_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resolution_key) DO UPDATE SET
			source_id = excluded.source_id,
			embed_id = CASE WHEN excluded.embed_id = '' THEN provider_affinity.embed_id ELSE excluded.embed_id END,
			updated_at = excluded.updated_at`,
		key, sourceID, embedID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write affinity for %q: %w", key, err)
	}
	return nil
}
