package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteDeliveryLog implements DeliveryLog backed by SQLite.
type SQLiteDeliveryLog struct {
	db *sql.DB
}

// NewSQLiteDeliveryLog returns a new SQLiteDeliveryLog.
func NewSQLiteDeliveryLog(db *sql.DB) *SQLiteDeliveryLog {
	return &SQLiteDeliveryLog{db: db}
}

// LogDelivery inserts a delivery record.
func (s *SQLiteDeliveryLog) LogDelivery(ctx context.Context, entry DeliveryLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_log (address, subject, status, error_msg, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.Address, entry.Subject, entry.Status, entry.ErrorMsg, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}
	return nil
}

// ListDeliveries returns the most recent entries, newest first.
func (s *SQLiteDeliveryLog) ListDeliveries(ctx context.Context, limit int) (entries []DeliveryLogEntry, err error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, subject, status, error_msg, created_at
		FROM delivery_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying delivery log: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	entries = []DeliveryLogEntry{}
	for rows.Next() {
		var e DeliveryLogEntry
		if err := rows.Scan(&e.ID, &e.Address, &e.Subject, &e.Status, &e.ErrorMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning delivery log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery log rows: %w", err)
	}
	return entries, nil
}
