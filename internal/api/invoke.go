package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/dispatch"
)

// handleInvoke dispatches the request body to the method named in the path.
// An undecodable payload is a 400; an unknown method is a 200 carrying a
// Failure response.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	out, err := s.dispatcher.Dispatch(r.Context(), dispatch.Envelope{Method: method, Payload: payload})
	if err != nil {
		var decErr *codec.DecodeError
		if errors.As(err, &decErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("http invoke failed", "method", method, "error", err)
		writeError(w, http.StatusInternalServerError, "invocation failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Payload)
}

func (s *Server) handleListInputBindings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.ListInputBindings())
}

func (s *Server) handleListTopicSubscriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.ListTopicSubscriptions())
}
