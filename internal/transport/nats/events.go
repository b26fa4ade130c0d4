package nats

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/eventbus"
)

// EventListener returns an event bus listener that publishes every event as
// JSON on "<prefix>.<event type>". Publish failures are logged and dropped.
func EventListener(pub Publisher, prefix string, logger *slog.Logger) eventbus.Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e eventbus.Event) {
		data, err := codec.Encode(e)
		if err != nil {
			logger.Warn("encoding event", slog.String("event", e.Type), "error", err)
			return
		}
		msg := &nats.Msg{Subject: prefix + "." + e.Type, Data: data}
		if err := pub.PublishMsg(msg); err != nil {
			logger.Warn("forwarding event to nats", slog.String("event", e.Type), "error", err)
		}
	}
}
