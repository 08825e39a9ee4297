// Command mailbox runs the mailbox exchange: agents push page snapshots and
// poll for operator messages under /api, the operator works from the
// session-gated console at /.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hazyhaar/mailbox/dbopen"
	"github.com/hazyhaar/mailbox/observability"
)

func main() {
	configPath := flag.String("config", env("MAILBOX_CONFIG", ""), "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	if d := cfg.defaultsInUse(); len(d) > 0 {
		slog.Warn("development defaults in use, set them before exposing the service",
			"settings", strings.Join(d, ","))
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Audit trail (optional).
	var events *observability.EventLogger
	if cfg.AuditDB != "" {
		auditDB, err := dbopen.Open(cfg.AuditDB, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
		if err != nil {
			slog.Error("audit db", "error", err)
			os.Exit(1)
		}
		defer auditDB.Close()
		events = observability.NewEventLogger(auditDB)
		defer events.Close()

		go retentionLoop(ctx, func(ctx context.Context) (int64, error) {
			return observability.Cleanup(ctx, auditDB, cfg.AuditRetentionDays)
		})
		slog.Info("audit trail enabled", "path", cfg.AuditDB, "retention_days", cfg.AuditRetentionDays)
	}

	svc, err := newService(cfg, events)
	if err != nil {
		slog.Error("init", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           svc.router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "preview", cfg.Preview, "mcp", cfg.MCP)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// retentionLoop runs cleanup at startup and then daily until ctx ends.
func retentionLoop(ctx context.Context, cleanup func(context.Context) (int64, error)) {
	run := func() {
		n, err := cleanup(ctx)
		if err != nil {
			slog.Error("audit cleanup", "error", err)
			return
		}
		if n > 0 {
			slog.Info("audit cleanup", "deleted", n)
		}
	}
	run()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
