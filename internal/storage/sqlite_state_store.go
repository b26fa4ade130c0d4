package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteStateStore implements StateStore on the state table. Keys are scoped
// by a logical store name so several stores can share one database file.
type SQLiteStateStore struct {
	db    *sql.DB
	store string
}

// NewSQLiteStateStore returns a SQLiteStateStore for the named logical store.
func NewSQLiteStateStore(db *sql.DB, store string) *SQLiteStateStore {
	return &SQLiteStateStore{db: db, store: store}
}

// Get reads the value for key.
func (s *SQLiteStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE store = ? AND key = ?`, s.store, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("reading state", key, err)
	}
	return value, true, nil
}

// Put upserts the value for key.
func (s *SQLiteStateStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (store, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		s.store, key, value, time.Now().UTC(),
	)
	if err != nil {
		return unavailable("writing state", key, err)
	}
	return nil
}
