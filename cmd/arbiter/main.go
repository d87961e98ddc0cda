package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/arbiter/internal/api"
	"github.com/MikeSquared-Agency/arbiter/internal/config"
	"github.com/MikeSquared-Agency/arbiter/internal/conversation"
	"github.com/MikeSquared-Agency/arbiter/internal/hermes"
	"github.com/MikeSquared-Agency/arbiter/internal/registry"
	"github.com/MikeSquared-Agency/arbiter/internal/slack"
	"github.com/MikeSquared-Agency/arbiter/internal/store"
)

func main() {
	dump := flag.String("dump", "", "print the collection in this CSV as JSON and exit")
	session := flag.String("session", "", "with -dump, keep only this evaluation session")
	flag.Parse()

	cfg := config.Load()

	// In dump mode stdout carries the collection, so logs go to stderr.
	if *dump != "" {
		setupLogging(cfg.LogLevel, os.Stderr)
		os.Exit(runDump(conversation.NewLoader(slog.Default()), *dump, *session))
	}
	setupLogging(cfg.LogLevel, os.Stdout)

	loader := conversation.NewLoader(slog.Default())

	slog.Info("arbiter starting", "port", cfg.Port)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("failed to prepare upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database (optional, keeps upload records across restarts)
	var db *store.Store
	var ledger registry.Ledger
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		ledger = db
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, uploads are kept in memory only")
	}

	reg := registry.New(registry.Options{
		MaxEntries:  cfg.RegistryMaxEntries,
		TTL:         cfg.RegistryTTL,
		RemoveFiles: cfg.RemoveEvicted,
	}, ledger, slog.Default())

	deps := api.Deps{
		Loader:   loader,
		Registry: reg,
		Logger:   slog.Default(),
	}
	if db != nil {
		deps.History = db
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		var err error
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		deps.Events = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Slack poster (optional)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		deps.Notifier = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, uploads will not be announced")
	}

	srv := api.NewServer(api.Options{
		Port:           cfg.Port,
		DefaultCSV:     cfg.DefaultCSV,
		StaticDir:      cfg.StaticDir,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
	}, deps)

	// Removals made by other instances
	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectUploadRemoved, srv.HandleUploadRemoved); err != nil {
			slog.Error("failed to subscribe to upload removals", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	slog.Info("arbiter ready", "port", cfg.Port, "instance", srv.InstanceID())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancel()
	slog.Info("arbiter stopped")
}

func runDump(loader *conversation.Loader, path, sessionID string) int {
	records, err := loader.Load(context.Background(), path, sessionID)
	if err != nil {
		slog.Error("failed to load collection", "path", path, "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		slog.Error("failed to write collection", "error", err)
		return 1
	}
	return 0
}

func setupLogging(level string, w io.Writer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
