package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/conversation"
	"github.com/MikeSquared-Agency/arbiter/internal/hermes"
	"github.com/MikeSquared-Agency/arbiter/internal/registry"
	"github.com/MikeSquared-Agency/arbiter/internal/slack"
)

const historyLimit = 100

type uploadResponse struct {
	FileID     string   `json:"file_id"`
	SessionIDs []string `json:"session_ids"`
	Count      int      `json:"count"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.rejectForm(w, r, err)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !strings.HasSuffix(header.Filename, ".csv") {
		writeError(w, http.StatusBadRequest, "File must be a CSV")
		return
	}

	fileID := uuid.New().String()
	path := filepath.Join(s.opts.UploadDir, fileID+"_"+secureFilename(header.Filename))
	if err := saveUpload(file, path); err != nil {
		s.logger.Error("failed to store upload", "file_id", fileID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	sessionIDs, err := conversation.DiscoverSessions(path)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove rejected upload", "path", path, "error", rmErr)
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid CSV format: %v", err))
		return
	}

	entry := registry.Entry{
		FileID:     fileID,
		Filename:   header.Filename,
		Path:       path,
		SessionIDs: sessionIDs,
		UploadedAt: time.Now().UTC(),
	}
	s.deps.Registry.Add(r.Context(), entry)
	s.logger.Info("upload stored", "file_id", fileID, "filename", header.Filename, "sessions", len(sessionIDs))

	s.publish(hermes.SubjectUploadStored, hermes.UploadEvent{
		FileID:     fileID,
		Filename:   header.Filename,
		SessionIDs: sessionIDs,
		Origin:     s.instanceID,
		Timestamp:  entry.UploadedAt,
	})
	if s.deps.Notifier != nil {
		go s.announce(context.WithoutCancel(r.Context()), entry)
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		FileID:     fileID,
		SessionIDs: sessionIDs,
		Count:      len(sessionIDs),
	})
}

// rejectForm maps a failed multipart read to the client-facing error.
func (s *Server) rejectForm(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, http.ErrMissingFile) && fieldPresent(r.MultipartForm, "file"):
		// Browsers send an empty filename when nothing was chosen, which
		// multipart parsing files under values rather than files.
		writeError(w, http.StatusBadRequest, "No file selected")
	default:
		writeError(w, http.StatusBadRequest, "No file provided")
	}
}

func fieldPresent(form *multipart.Form, name string) bool {
	if form == nil {
		return false
	}
	_, ok := form.Value[name]
	return ok
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("write: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func (s *Server) announce(ctx context.Context, e registry.Entry) {
	ts, err := s.deps.Notifier.PostUploadSummary(ctx, slack.UploadSummary{
		FileID:     e.FileID,
		Filename:   e.Filename,
		SessionIDs: e.SessionIDs,
	})
	if err != nil {
		s.logger.Warn("failed to post upload summary", "file_id", e.FileID, "error", err)
		return
	}
	s.logger.Debug("upload summary posted", "file_id", e.FileID, "ts", ts)
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	var (
		entries []registry.Entry
		err     error
	)
	if s.deps.History != nil {
		entries, err = s.deps.History.ListUploads(r.Context(), historyLimit)
		if err != nil {
			s.logger.Error("failed to list uploads", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		entries = s.deps.Registry.List()
	}
	if entries == nil {
		entries = []registry.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uploads": entries,
		"count":   len(entries),
	})
}

func (s *Server) removeUpload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	if !s.deps.Registry.Remove(r.Context(), fileID) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	s.logger.Info("upload removed", "file_id", fileID)

	s.publish(hermes.SubjectUploadRemoved, hermes.UploadEvent{
		FileID:    fileID,
		Origin:    s.instanceID,
		Timestamp: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "file_id": fileID})
}

// HandleUploadRemoved drops uploads removed by other instances from the
// local cache.
func (s *Server) HandleUploadRemoved(subject string, data []byte) {
	evt, err := hermes.ParseUploadEvent(data)
	if err != nil {
		s.logger.Warn("ignoring malformed upload event", "subject", subject, "error", err)
		return
	}
	if evt.Origin == s.instanceID {
		return
	}
	s.deps.Registry.Forget(evt.FileID)
	s.logger.Debug("forgot upload removed elsewhere", "file_id", evt.FileID, "origin", evt.Origin)
}
