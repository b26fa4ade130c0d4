package eventbus

import (
	"log/slog"
	"time"
)

// Event is a subscription or delivery change published on the bus.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Listener is a function that handles an event.
type Listener func(Event)

// LogListener returns a Listener that writes each event to logger.
func LogListener(logger *slog.Logger) Listener {
	return func(e Event) {
		attrs := make([]any, 0, len(e.Payload)+1)
		attrs = append(attrs, slog.String("event", e.Type))
		for k, v := range e.Payload {
			attrs = append(attrs, slog.String(k, v))
		}
		logger.Info("domain event", attrs...)
	}
}
