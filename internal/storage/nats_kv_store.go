package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// kvBucket is the subset of jetstream.KeyValue used by NATSKVStore.
type kvBucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// NATSKVStore implements StateStore on a JetStream key-value bucket.
type NATSKVStore struct {
	kv kvBucket
}

// NewNATSKVStore wraps an existing bucket.
func NewNATSKVStore(kv jetstream.KeyValue) *NATSKVStore {
	return &NATSKVStore{kv: kv}
}

// OpenNATSKVStore creates (or binds to) the named bucket on nc.
func OpenNATSKVStore(ctx context.Context, nc *nats.Conn, bucket string) (*NATSKVStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "notifier state",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("binding key-value bucket %q: %w", bucket, err)
	}
	return NewNATSKVStore(kv), nil
}

// Get reads the latest revision of key.
func (s *NATSKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("reading key", key, err)
	}
	return entry.Value(), true, nil
}

// Put writes a new revision of key.
func (s *NATSKVStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return unavailable("writing key", key, err)
	}
	return nil
}
