package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/arbiter/internal/conversation"
	"github.com/MikeSquared-Agency/arbiter/internal/registry"
	"github.com/MikeSquared-Agency/arbiter/internal/slack"
)

// Publisher sends events to the message bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// UploadNotifier announces uploads to humans.
type UploadNotifier interface {
	PostUploadSummary(ctx context.Context, s slack.UploadSummary) (string, error)
}

// UploadLister reads upload history from durable storage.
type UploadLister interface {
	ListUploads(ctx context.Context, limit int) ([]registry.Entry, error)
}

type Options struct {
	Port           int
	DefaultCSV     string
	StaticDir      string
	UploadDir      string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// Deps are the collaborators the server calls into. Events, Notifier and
// History are optional.
type Deps struct {
	Loader   *conversation.Loader
	Registry *registry.Registry
	Events   Publisher
	Notifier UploadNotifier
	History  UploadLister
	Logger   *slog.Logger
}

type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	opts       Options
	deps       Deps
	logger     *slog.Logger
	instanceID string
}

func NewServer(opts Options, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		router.Use(middleware.Timeout(opts.RequestTimeout))
	}

	s := &Server{
		router:     router,
		opts:       opts,
		deps:       deps,
		logger:     logger,
		instanceID: uuid.NewString(),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/arbiter/status", s.status)

	router.Get("/api/conversations", s.defaultConversations)
	router.Get("/api/conversations/{fileID}", s.uploadedConversations)
	router.Post("/api/upload", s.upload)
	router.Get("/api/uploads", s.listUploads)
	router.Delete("/api/uploads/{fileID}", s.removeUpload)

	router.Get("/", s.index)
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))

	return s
}

// InstanceID identifies this server in the events it publishes.
func (s *Server) InstanceID() string {
	return s.instanceID
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called, then returns nil.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":   "arbiter",
		"uploads": s.deps.Registry.Len(),
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.opts.StaticDir, "index.html"))
}

// publish sends an event if a bus is configured. Failures are logged only.
func (s *Server) publish(subject string, data any) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
