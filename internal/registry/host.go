package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/shaharia-lab/notifier/internal/storage"
)

// DefaultID is the identity of the one registry used by the service.
const DefaultID = "subscription"

// stateKeySuffix names the mapping key inside the state store.
const stateKeySuffix = "subscriptions"

// StateKey returns the state store key for the registry identity id. The
// default identity keeps the bare key.
func StateKey(id string) string {
	if id == DefaultID {
		return stateKeySuffix
	}
	return id + "." + stateKeySuffix
}

// HostConfig configures a Host.
type HostConfig struct {
	Store  storage.StateStore
	Logger *slog.Logger
	// IdleTimeout is how long a registry may go without requests before it is
	// deactivated. Zero disables deactivation.
	IdleTimeout time.Duration
	// ScanInterval is how often idle registries are looked for. Defaults to 30s.
	ScanInterval time.Duration
	Options      []Option
}

// Host activates one Registry per identity on first use and deactivates
// registries that have been idle. At most one Registry exists per identity at
// any time.
type Host struct {
	cfg    HostConfig
	logger *slog.Logger

	mu       sync.Mutex
	active   map[string]*Registry
	closed   bool
	cron     gocron.Scheduler
	cronOnce sync.Once
}

// NewHost creates a Host. Call Start to enable idle deactivation.
func NewHost(cfg HostConfig) *Host {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	return &Host{
		cfg:    cfg,
		logger: cfg.Logger,
		active: make(map[string]*Registry),
	}
}

// Start schedules the idle scan. It is a no-op when IdleTimeout is zero.
func (h *Host) Start() error {
	if h.cfg.IdleTimeout <= 0 {
		return nil
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating gocron scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(h.cfg.ScanInterval),
		gocron.NewTask(func() {
			if n := h.DeactivateIdle(time.Now()); n > 0 {
				h.logger.Info("deactivated idle registries", slog.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return fmt.Errorf("scheduling idle scan: %w", err)
	}
	cron.Start()
	h.mu.Lock()
	h.cron = cron
	h.mu.Unlock()
	return nil
}

// activate returns the live Registry for id, creating it when needed.
func (h *Host) activate(id string) (*Registry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if r, ok := h.active[id]; ok {
		return r, nil
	}
	opts := append([]Option{WithLogger(h.logger)}, h.cfg.Options...)
	r := New(id, StateKey(id), h.cfg.Store, opts...)
	h.active[id] = r
	h.logger.Debug("registry activated", slog.String("registry_id", id))
	return r, nil
}

// DeactivateIdle closes registries idle since before now minus IdleTimeout
// and returns how many were closed. The registry is closed while the host
// lock is held, so a replacement cannot start until its last request is done.
func (h *Host) DeactivateIdle(now time.Time) int {
	if h.cfg.IdleTimeout <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, r := range h.active {
		if now.Sub(r.LastActive()) < h.cfg.IdleTimeout {
			continue
		}
		r.Close()
		delete(h.active, id)
		n++
	}
	return n
}

// Active returns the number of live registries.
func (h *Host) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Registry returns a handle that routes calls to the registry for id,
// activating it as needed.
func (h *Host) Registry(id string) *Handle {
	return &Handle{host: h, id: id}
}

// Close stops the idle scan and every live registry.
func (h *Host) Close() error {
	h.mu.Lock()
	h.closed = true
	cron := h.cron
	active := h.active
	h.active = make(map[string]*Registry)
	h.mu.Unlock()

	var err error
	if cron != nil {
		h.cronOnce.Do(func() { err = cron.Shutdown() })
	}
	for _, r := range active {
		r.Close()
	}
	return err
}

// Handle addresses the registry for one identity through a Host.
type Handle struct {
	host *Host
	id   string
}

// ID returns the identity this handle addresses.
func (hd *Handle) ID() string { return hd.id }

// call runs fn against the live registry. When the registry was deactivated
// between lookup and submission the call moves to its replacement; nothing
// ran on the closed one.
func (hd *Handle) call(fn func(r *Registry) error) error {
	for {
		r, err := hd.host.activate(hd.id)
		if err != nil {
			return err
		}
		if err := fn(r); !errors.Is(err, ErrClosed) {
			return err
		}
	}
}

// Subscribe forwards to Registry.Subscribe.
func (hd *Handle) Subscribe(ctx context.Context, s Subscription) error {
	return hd.call(func(r *Registry) error { return r.Subscribe(ctx, s) })
}

// Unsubscribe forwards to Registry.Unsubscribe.
func (hd *Handle) Unsubscribe(ctx context.Context, address string) error {
	return hd.call(func(r *Registry) error { return r.Unsubscribe(ctx, address) })
}

// Snapshot forwards to Registry.Snapshot.
func (hd *Handle) Snapshot(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	err := hd.call(func(r *Registry) error {
		var err error
		out, err = r.Snapshot(ctx)
		return err
	})
	return out, err
}
