package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/interview-sim/internal/config"
	"github.com/capitalize-ai/interview-sim/internal/handler"
	"github.com/capitalize-ai/interview-sim/internal/middleware"
	"github.com/capitalize-ai/interview-sim/pkg/logger"
)

var serveFlags struct {
	port        string
	corsOrigins []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded transcripts and session events over HTTP",
	Long: "Start a read-only HTTP API over the transcript directories and, when\n" +
		"NATS is configured, over published session events.",
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.port, "port", "", "Listen port (default $PORT or 8080)")
	f.StringSliceVar(&serveFlags.corsOrigins, "cors-origin", nil, "Allowed CORS origins (repeatable; default any)")
}

// routerDeps is everything the HTTP surface reads from.
type routerDeps struct {
	store       handler.TranscriptStore
	source      handler.EventSource
	checks      map[string]handler.Check
	corsOrigins []string
}

func newRouter(cfg *config.Config, log *logger.Logger, deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(deps.corsOrigins))

	health := handler.NewHealthHandler(deps.checks)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	transcripts := handler.NewTranscriptHandler(deps.store, log)
	streams := handler.NewStreamHandler(deps.source, log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeTranscriptsRead))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/transcripts", func(r chi.Router) {
			r.Get("/", transcripts.List)
			r.Get("/{identity}", transcripts.Get)
			r.Get("/{identity}/time", transcripts.GetTime)
		})

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/events", streams.Events)
			r.Get("/stream", streams.Stream)
		})
	})

	return r
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	if serveFlags.port != "" {
		cfg.ServerPort = serveFlags.port
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer startTracing(ctx, cfg, log)()

	recorder := newRecorder(cfg)
	deps := routerDeps{
		store: recorder,
		checks: map[string]handler.Check{
			"transcripts": func() error {
				_, err := os.Stat(cfg.TranscriptsDir)
				return err
			},
		},
		corsOrigins: serveFlags.corsOrigins,
	}

	client, events, err := connectEvents(ctx, cfg, log)
	if err != nil {
		return err
	}
	if events != nil {
		defer client.Close()
		deps.source = events
		deps.checks["nats"] = func() error {
			if !client.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, log, deps),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
