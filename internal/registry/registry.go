package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/storage"
)

// Event types published when the mapping changes.
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionRemoved = "subscription.removed"
)

// Registry write operations reported to a WriteObserver.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// ErrClosed is returned by operations on a deactivated registry.
var ErrClosed = errors.New("registry is closed")

// EventPublisher receives change events. Implementations must not block.
type EventPublisher interface {
	Publish(eventType string, payload map[string]string)
}

// WriteObserver is told about every persisted write.
type WriteObserver interface {
	ObserveRegistryWrite(op string)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithEventPublisher sets the publisher for change events.
func WithEventPublisher(p EventPublisher) Option {
	return func(r *Registry) { r.events = p }
}

// WithWriteObserver sets the observer for persisted writes.
func WithWriteObserver(o WriteObserver) Option {
	return func(r *Registry) { r.writes = o }
}

type request struct {
	ctx    context.Context
	run    func(ctx context.Context) error
	result chan error
}

// Registry is the single owner of one subscription mapping. Requests are
// queued to one goroutine and executed in arrival order.
type Registry struct {
	id     string
	key    string
	store  storage.StateStore
	logger *slog.Logger
	events EventPublisher
	writes WriteObserver

	requests   chan request
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
	lastActive atomic.Int64
}

// New starts a Registry for id whose mapping is stored at key.
func New(id, key string, store storage.StateStore, opts ...Option) *Registry {
	r := &Registry{
		id:       id,
		key:      key,
		store:    store,
		logger:   slog.Default(),
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("registry_id", id))
	r.touch()

	r.wg.Add(1)
	go r.loop()
	return r
}

// ID returns the registry identity.
func (r *Registry) ID() string { return r.id }

// LastActive returns when the registry last accepted or finished a request.
func (r *Registry) LastActive() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

func (r *Registry) touch() { r.lastActive.Store(time.Now().UnixNano()) }

func (r *Registry) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case req := <-r.requests:
			r.handle(req)
		}
	}
}

// handle runs one request. A request whose caller gave up before it was
// dequeued is dropped; once started it runs to completion.
func (r *Registry) handle(req request) {
	defer r.touch()
	if err := req.ctx.Err(); err != nil {
		req.result <- err
		return
	}
	req.result <- req.run(context.WithoutCancel(req.ctx))
}

// submit queues fn and waits for its result or for ctx to end.
func (r *Registry) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{ctx: ctx, run: fn, result: make(chan error, 1)}
	select {
	case r.requests <- req:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	r.touch()
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe adds s, or replaces the entry for s.Address when its display name
// differs. Subscribing an identical entry writes nothing.
func (r *Registry) Subscribe(ctx context.Context, s Subscription) error {
	if s.Address == "" {
		return ErrEmptyAddress
	}
	return r.submit(ctx, func(ctx context.Context) error {
		subs, err := r.load(ctx)
		if err != nil {
			return err
		}
		existing, ok := subs[s.Address]
		if ok && existing.DisplayName == s.DisplayName {
			r.logger.Debug("subscription unchanged", slog.String("address", s.Address))
			return nil
		}
		subs[s.Address] = s
		if err := r.save(ctx, OpSubscribe, subs); err != nil {
			return err
		}

		event := EventSubscriptionCreated
		if ok {
			event = EventSubscriptionUpdated
		}
		r.logger.Info("subscription stored", slog.String("address", s.Address), slog.String("event", event))
		r.publish(event, map[string]string{
			"address":      s.Address,
			"display_name": s.DisplayName,
		})
		return nil
	})
}

// Unsubscribe removes the entry for address. Removing an absent address
// writes nothing.
func (r *Registry) Unsubscribe(ctx context.Context, address string) error {
	return r.submit(ctx, func(ctx context.Context) error {
		subs, err := r.load(ctx)
		if err != nil {
			return err
		}
		if _, ok := subs[address]; !ok {
			r.logger.Debug("unsubscribe for unknown address", slog.String("address", address))
			return nil
		}
		delete(subs, address)
		if err := r.save(ctx, OpUnsubscribe, subs); err != nil {
			return err
		}
		r.logger.Info("subscription removed", slog.String("address", address))
		r.publish(EventSubscriptionRemoved, map[string]string{"address": address})
		return nil
	})
}

// Snapshot returns a copy of all subscriptions ordered by address.
func (r *Registry) Snapshot(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	err := r.submit(ctx, func(ctx context.Context) error {
		subs, err := r.load(ctx)
		if err != nil {
			return err
		}
		out = subs.sorted()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close stops the registry after the request in progress, if any, finishes.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

func (r *Registry) load(ctx context.Context) (subscriptions, error) {
	raw, found, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("loading subscriptions: %w", err)
	}
	if !found {
		return subscriptions{}, nil
	}
	subs, err := codec.Decode[subscriptions](raw)
	if err != nil {
		return nil, fmt.Errorf("loading subscriptions: %w", err)
	}
	if subs == nil {
		subs = subscriptions{}
	}
	return subs, nil
}

// save persists the whole mapping. It is only called with a fully built map.
func (r *Registry) save(ctx context.Context, op string, subs subscriptions) error {
	raw, err := codec.Encode(subs)
	if err != nil {
		return fmt.Errorf("saving subscriptions: %w", err)
	}
	if err := r.store.Put(ctx, r.key, raw); err != nil {
		return fmt.Errorf("saving subscriptions: %w", err)
	}
	if r.writes != nil {
		r.writes.ObserveRegistryWrite(op)
	}
	return nil
}

func (r *Registry) publish(eventType string, payload map[string]string) {
	if r.events != nil {
		payload["registry_id"] = r.id
		r.events.Publish(eventType, payload)
	}
}
