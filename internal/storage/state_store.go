// Package storage provides the key-value state stores backing the
// subscription registry and the SQLite delivery log.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks failures of the backing store itself (connection lost,
// bucket missing, I/O error). Callers classify with errors.Is.
var ErrUnavailable = errors.New("state store unavailable")

// StateStore is an opaque key-value store with atomic single-key reads and
// writes. It offers no compare-and-swap; callers that read-modify-write must
// serialize themselves.
type StateStore interface {
	// Get returns the value stored at key. found is false when the key has
	// never been written.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put replaces the value stored at key.
	Put(ctx context.Context, key string, value []byte) error
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w", op, key, errors.Join(ErrUnavailable, err))
}
