// Package nats serves the dispatcher over NATS request/reply. A request on
// "<prefix>.<method>" carries the raw payload; the reply carries the raw
// response payload, or an error header when the call failed.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/dispatch"
)

const (
	// ErrorHeader is set on replies to calls that failed.
	ErrorHeader = "Notifier-Error"
	// ErrorKindHeader classifies the failure: "decode" or "internal".
	ErrorKindHeader = "Notifier-Error-Kind"

	// QueueGroup load-balances requests across service instances.
	QueueGroup = "notifier"
)

// Publisher sends a reply message. *nats.Conn satisfies it.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Conn is the part of a NATS connection the responder needs.
type Conn interface {
	Publisher
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Responder answers invoke requests through a dispatcher.
type Responder struct {
	dispatcher *dispatch.Dispatcher
	pub        Publisher
	prefix     string
	logger     *slog.Logger
	inflight   sync.WaitGroup
}

// NewResponder creates a Responder for subjects under prefix, replying
// through pub.
func NewResponder(d *dispatch.Dispatcher, pub Publisher, prefix string, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		dispatcher: d,
		pub:        pub,
		prefix:     strings.TrimSuffix(prefix, "."),
		logger:     logger,
	}
}

// Subject returns the subject a method is served on.
func (r *Responder) Subject(method string) string {
	return r.prefix + "." + method
}

// Serve subscribes to every method subject and handles requests until ctx is
// canceled. It then drains the subscription and waits for calls in flight.
func (r *Responder) Serve(ctx context.Context, conn Conn) error {
	// Messages delivered while draining are still served, so the handler
	// context outlives the shutdown signal.
	handleCtx := context.WithoutCancel(ctx)
	sub, err := conn.QueueSubscribe(r.prefix+".>", QueueGroup, func(m *nats.Msg) {
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			r.Handle(handleCtx, m)
		}()
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s.>: %w", r.prefix, err)
	}
	r.logger.Info("nats responder listening", slog.String("subject", r.prefix+".>"))

	<-ctx.Done()
	r.logger.Info("shutting down nats responder")
	drainErr := sub.Drain()
	r.inflight.Wait()
	return drainErr
}

// Handle dispatches one request and publishes the reply. Requests without a
// reply subject are dropped.
func (r *Responder) Handle(ctx context.Context, m *nats.Msg) {
	method := strings.TrimPrefix(m.Subject, r.prefix+".")
	log := r.logger.With(slog.String("method", method))
	if m.Reply == "" {
		log.Warn("dropping nats request without reply subject")
		return
	}

	reply := &nats.Msg{Subject: m.Reply, Header: nats.Header{}}
	out, err := r.dispatcher.Dispatch(ctx, dispatch.Envelope{Method: method, Payload: m.Data})
	if err != nil {
		kind := "internal"
		var decErr *codec.DecodeError
		if errors.As(err, &decErr) {
			kind = "decode"
		} else {
			log.Error("nats invoke failed", "error", err)
		}
		reply.Header.Set(ErrorHeader, err.Error())
		reply.Header.Set(ErrorKindHeader, kind)
	} else {
		reply.Data = out.Payload
	}

	if err := r.pub.PublishMsg(reply); err != nil {
		log.Error("publishing nats reply", "error", err)
	}
}
