package service

import (
	"context"
	"slices"

	"github.com/shaharia-lab/notifier/internal/registry"
)

// StaticSubscribers is a SnapshotSource over a fixed list, usually loaded
// from the subscribers file.
type StaticSubscribers []registry.Subscription

// Snapshot returns a copy of the list.
func (s StaticSubscribers) Snapshot(context.Context) ([]registry.Subscription, error) {
	return slices.Clone(s), nil
}
