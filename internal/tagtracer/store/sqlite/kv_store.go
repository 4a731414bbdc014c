package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/tagtracer/internal/db"
)

// KVStore keeps items in the kv_items table.  Reads go straight to the pool;
// writes are serialized through the worker.
type KVStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewKVStore(db *sql.DB, writer *dbpkg.Worker) *KVStore {
	return &KVStore{db: db, writer: writer}
}

func (s *KVStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_items WHERE key = ?;`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("GetItem %s: %w", key, err)
	}
	return v, true, nil
}

func (s *KVStore) SetItem(ctx context.Context, key, value string) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO kv_items(key, value, updated_at_ms) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at_ms = excluded.updated_at_ms;
`, key, value, nowMs); err != nil {
			return fmt.Errorf("SetItem %s: %w", key, err)
		}
		return nil
	})
}

func (s *KVStore) RemoveItem(ctx context.Context, key string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_items WHERE key = ?;`, key); err != nil {
			return fmt.Errorf("RemoveItem %s: %w", key, err)
		}
		return nil
	})
}
