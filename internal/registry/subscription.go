// Package registry owns the subscription mapping. Every registry identity is
// served by exactly one goroutine, so read-modify-write cycles against the
// same identity never interleave.
package registry

import (
	"errors"
	"sort"
)

// Subscription is one subscriber. Address is the identity; DisplayName can
// change by subscribing again.
type Subscription struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

// ErrEmptyAddress is returned for a subscription without an address.
var ErrEmptyAddress = errors.New("subscription address is empty")

// subscriptions is the persisted mapping, keyed by address.
type subscriptions map[string]Subscription

func (m subscriptions) sorted() []Subscription {
	out := make([]Subscription, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
