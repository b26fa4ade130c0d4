package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewSQLiteDB_CreatesTables(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"state", "delivery_log", "schema_migrations"} {
		var name string
		err := db.QueryRowContext(context.Background(), "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestNewSQLiteDB_MigrationVersion(t *testing.T) {
	db := newTestDB(t)

	var version int
	err := db.QueryRowContext(context.Background(), "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		t.Fatalf("querying version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("expected version %d, got %d", len(migrations), version)
	}
}

func TestNewSQLiteDB_ReopenIsNotFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "notifier.db")

	db, fresh, err := NewSQLiteDB(path)
	require.NoError(t, err)
	assert.True(t, fresh)
	require.NoError(t, db.Close())

	db, fresh, err = NewSQLiteDB(path)
	require.NoError(t, err)
	defer db.Close()
	assert.False(t, fresh)
}

func TestSQLiteStateStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewSQLiteStateStore(db, "statestore")
	other := NewSQLiteStateStore(db, "other")

	_, found, err := store.Get(ctx, "subscriptions")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "subscriptions", []byte(`{"a@x.com":{}}`)))
	require.NoError(t, store.Put(ctx, "subscriptions", []byte(`{}`)))

	v, found, err := store.Get(ctx, "subscriptions")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "{}", string(v))

	// Logical stores do not see each other's keys.
	_, found, err = other.Get(ctx, "subscriptions")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStateStore_ClosedDatabaseIsUnavailable(t *testing.T) {
	db, _, err := NewSQLiteDB(":memory:")
	require.NoError(t, err)
	store := NewSQLiteStateStore(db, "statestore")
	require.NoError(t, db.Close())

	_, _, err = store.Get(context.Background(), "subscriptions")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, store.Put(context.Background(), "subscriptions", []byte("{}")), ErrUnavailable)
}

func TestSQLiteDeliveryLog(t *testing.T) {
	db := newTestDB(t)
	log := NewSQLiteDeliveryLog(db)
	ctx := context.Background()

	t.Run("log and list", func(t *testing.T) {
		entry := DeliveryLogEntry{
			Address:   "a@x.com",
			Subject:   "Vote results",
			Status:    DeliveryStatusSent,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, log.LogDelivery(ctx, entry))

		list, err := log.ListDeliveries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, entry.Address, list[0].Address)
		assert.Equal(t, entry.Subject, list[0].Subject)
		assert.Equal(t, entry.Status, list[0].Status)
	})

	t.Run("newest first", func(t *testing.T) {
		require.NoError(t, log.LogDelivery(ctx, DeliveryLogEntry{
			Address:   "b@x.com",
			Status:    DeliveryStatusFailed,
			ErrorMsg:  "connection refused",
			CreatedAt: time.Now().UTC().Add(time.Minute),
		}))

		list, err := log.ListDeliveries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, DeliveryStatusFailed, list[0].Status)
		assert.Equal(t, "connection refused", list[0].ErrorMsg)
	})

	t.Run("default limit", func(t *testing.T) {
		list, err := log.ListDeliveries(ctx, 0)
		require.NoError(t, err)
		assert.NotNil(t, list)
	})
}
