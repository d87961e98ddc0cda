package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/arbiter/internal/hermes"
	"github.com/MikeSquared-Agency/arbiter/internal/registry"
)

func (s *Server) defaultConversations(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Loader.Load(r.Context(), s.opts.DefaultCSV, "")
	if r.Context().Err() != nil {
		s.abandoned(r)
		return
	}
	if err != nil {
		s.logger.Error("failed to load default collection", "path", s.opts.DefaultCSV, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.publish(hermes.SubjectCollectionLoaded, hermes.LoadEvent{
		Records:   len(records),
		Origin:    s.instanceID,
		Timestamp: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) uploadedConversations(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	entry, err := s.deps.Registry.Get(r.Context(), fileID)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		s.logger.Error("upload lookup failed", "file_id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := os.Stat(entry.Path); errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "File no longer available")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	records, err := s.deps.Loader.Load(r.Context(), entry.Path, sessionID)
	if r.Context().Err() != nil {
		s.abandoned(r)
		return
	}
	if err != nil {
		s.logger.Error("failed to load upload", "file_id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.publish(hermes.SubjectCollectionLoaded, hermes.LoadEvent{
		FileID:    fileID,
		SessionID: sessionID,
		Records:   len(records),
		Origin:    s.instanceID,
		Timestamp: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, records)
}

// abandoned logs a load cut short by the request context. Nothing is
// written so the timeout middleware can answer.
func (s *Server) abandoned(r *http.Request) {
	s.logger.Warn("collection load abandoned", "path", r.URL.Path, "error", r.Context().Err())
}
