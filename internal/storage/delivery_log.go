package storage

import (
	"context"
	"time"
)

// Delivery statuses recorded in the delivery log.
const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// DeliveryLogEntry records a single outbound delivery attempt.
type DeliveryLogEntry struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	ErrorMsg  string    `json:"error_msg"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryLog persists delivery attempts.
type DeliveryLog interface {
	// LogDelivery records a delivery attempt.
	LogDelivery(ctx context.Context, entry DeliveryLogEntry) error
	// ListDeliveries returns the most recent entries, up to limit.
	ListDeliveries(ctx context.Context, limit int) ([]DeliveryLogEntry, error)
}
