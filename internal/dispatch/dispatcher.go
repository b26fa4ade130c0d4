// Package dispatch routes invocations arriving through a single untyped entry
// point to typed handlers.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/contracts"
)

// Envelope pairs a method name with an opaque payload. It is used for both
// requests and responses.
type Envelope struct {
	Method  string
	Payload []byte
}

// HandlerFunc processes one raw payload and returns the raw response payload.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Routes maps method names to handlers.
type Routes map[string]HandlerFunc

// Handle adapts a typed function into a HandlerFunc. The request is decoded
// with the codec before fn runs and the result is encoded afterwards.
func Handle[Req, Resp any](fn func(ctx context.Context, req Req) (Resp, error)) HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := codec.Decode[Req](payload)
		if err != nil {
			return nil, err
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return codec.Encode(resp)
	}
}

// Observer is notified once per dispatched call.
type Observer interface {
	ObserveInvocation(method, outcome string, d time.Duration)
}

// Call outcomes reported to the Observer.
const (
	OutcomeOK            = "ok"
	OutcomeUnknownMethod = "unknown_method"
	OutcomeError         = "error"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-call records.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher holds a fixed method table built at startup. It is safe for
// concurrent use.
type Dispatcher struct {
	routes   Routes
	logger   *slog.Logger
	observer Observer
}

// New creates a Dispatcher over a copy of routes.
func New(routes Routes, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		routes: make(Routes, len(routes)),
		logger: slog.Default(),
	}
	for name, h := range routes {
		d.routes[name] = h
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

const tracerName = "github.com/shaharia-lab/notifier/internal/dispatch"

type invocationKey struct{}

// InvocationID returns the id assigned to the call carried by ctx, or "".
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationKey{}).(string)
	return id
}

// Dispatch routes env to its handler. An unknown method yields a Failure
// response envelope, not an error. A non-nil error means this call alone
// failed, for example because its payload could not be decoded.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) (out Envelope, err error) {
	start := time.Now()
	id := uuid.NewString()
	ctx = context.WithValue(ctx, invocationKey{}, id)
	log := d.logger.With(slog.String("method", env.Method), slog.String("invocation_id", id))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dispatch "+env.Method, trace.WithAttributes(
		attribute.String("notifier.method", env.Method),
		attribute.String("notifier.invocation_id", id),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	h, ok := d.routes[env.Method]
	if !ok {
		log.Warn("unexpected service method")
		span.SetAttributes(attribute.Bool("notifier.unknown_method", true))
		d.observe(env.Method, OutcomeUnknownMethod, start)
		payload, encErr := codec.Encode(contracts.Failed("Unexpected service method: %s", env.Method))
		if encErr != nil {
			return Envelope{}, encErr
		}
		return Envelope{Method: env.Method, Payload: payload}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("method %s: handler panic: %v", env.Method, r)
			out = Envelope{}
		}
		outcome := OutcomeOK
		if err != nil {
			outcome = OutcomeError
		}
		d.observe(env.Method, outcome, start)
	}()

	payload, err := h(ctx, env.Payload)
	if err != nil {
		log.Error("invocation failed", "error", err)
		return Envelope{}, fmt.Errorf("method %s: %w", env.Method, err)
	}
	log.Debug("invocation completed", slog.Duration("duration", time.Since(start)))
	return Envelope{Method: env.Method, Payload: payload}, nil
}

func (d *Dispatcher) observe(method, outcome string, start time.Time) {
	if d.observer != nil {
		d.observer.ObserveInvocation(method, outcome, time.Since(start))
	}
}

// Methods returns the registered method names in sorted order.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.routes))
	for name := range d.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InputBinding names an input binding the service wants delivered.
type InputBinding struct {
	Name string `json:"name"`
}

// TopicSubscription names a pub/sub topic the service wants delivered.
type TopicSubscription struct {
	PubsubName string `json:"pubsubName"`
	Topic      string `json:"topic"`
}

// ListInputBindings reports the input bindings of this service. There are none.
func (d *Dispatcher) ListInputBindings() []InputBinding {
	return []InputBinding{}
}

// ListTopicSubscriptions reports the topic subscriptions of this service.
// There are none.
func (d *Dispatcher) ListTopicSubscriptions() []TopicSubscription {
	return []TopicSubscription{}
}
