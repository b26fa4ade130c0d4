// Package api serves the dispatcher over HTTP. Each invoke request carries
// the raw payload in its body and gets the raw response payload back.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/notifier/internal/dispatch"
	"github.com/shaharia-lab/notifier/internal/storage"
)

// maxPayloadBytes bounds an invoke request body.
const maxPayloadBytes = 1 << 20

// Server holds all dependencies for the REST API handlers.
type Server struct {
	dispatcher *dispatch.Dispatcher
	deliveries storage.DeliveryLog
	logger     *slog.Logger
}

// New creates a new API Server. deliveries may be nil, in which case the
// delivery log endpoint answers 404.
func New(d *dispatch.Dispatcher, deliveries storage.DeliveryLog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: d,
		deliveries: deliveries,
		logger:     logger,
	}
}

// Mount registers all API routes under the given router.
func (s *Server) Mount(r chi.Router) {
	r.Post("/invoke/{method}", s.handleInvoke)
	r.Get("/bindings", s.handleListInputBindings)
	r.Get("/subscriptions", s.handleListTopicSubscriptions)

	r.Get("/deliveries", s.handleListDeliveries)
	r.Get("/version", s.handleVersion)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
