package api

import (
	"net/http"

	"github.com/shaharia-lab/notifier/internal/build"
)

type versionResponse struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	Methods   []string `json:"methods"`
}

// handleVersion reports build info and the methods this instance serves.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{
		Version:   build.Version,
		Commit:    build.CommitSHA,
		BuildDate: build.BuildDate,
		Methods:   s.dispatcher.Methods(),
	})
}
