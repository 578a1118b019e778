package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/pagecraft/pagecraft/internal/adapter/docker"
	pchttp "github.com/pagecraft/pagecraft/internal/adapter/http"
	"github.com/pagecraft/pagecraft/internal/adapter/litellm"
	"github.com/pagecraft/pagecraft/internal/adapter/localfs"
	pcnats "github.com/pagecraft/pagecraft/internal/adapter/nats"
	"github.com/pagecraft/pagecraft/internal/adapter/otel"
	"github.com/pagecraft/pagecraft/internal/adapter/postgres"
	"github.com/pagecraft/pagecraft/internal/adapter/ristretto"
	"github.com/pagecraft/pagecraft/internal/adapter/ws"
	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/logger"
	"github.com/pagecraft/pagecraft/internal/port/messagequeue"
	"github.com/pagecraft/pagecraft/internal/resilience"
	"github.com/pagecraft/pagecraft/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"model", cfg.Provider.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)
	slog.Info("postgres connected")

	queue, err := pcnats.Connect(ctx, cfg.NATS.URL, log)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	shutdownMetrics, err := otel.InitMeterProvider(ctx, cfg.Logging.Service, cfg.Metrics.Endpoint, cfg.Metrics.Interval)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics shutdown", "error", err)
		}
	}()

	var metrics *otel.Metrics
	if cfg.Metrics.Endpoint != "" {
		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metric instruments: %w", err)
		}
	}

	shutdownTracing, err := otel.InitTracerProvider(ctx, cfg.Logging.Service, cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("tracing shutdown", "error", err)
		}
	}()

	fileCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer fileCache.Close()
	files := localfs.New(cfg.Workspace.BaseDir, fileCache, cfg.Cache.TTL)

	sandbox := docker.New(cfg.Sandbox)

	llm := litellm.NewClient(cfg.Provider.URL, cfg.Provider.APIKey)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	hub := ws.NewHub(store)

	// --- Services ---

	workspaceSvc := service.NewWorkspaceService(store, queue, hub, sandbox, files, cfg.Workspace)
	workspaceSvc.SetMetrics(metrics)
	conversationSvc := service.NewConversationService(store)
	sessionSvc := service.NewEditSessionService(store, queue, hub, llm, sandbox, files, cfg.Session, cfg.Provider.Model)
	sessionSvc.SetMetrics(metrics)

	// --- Trigger subscriptions ---

	subscriptions := []struct {
		subject string
		handler messagequeue.Handler
	}{
		{messagequeue.SubjectSessionStart, sessionSvc.HandleSessionStart},
		{messagequeue.SubjectSessionCancel, sessionSvc.HandleSessionCancel},
		{messagequeue.SubjectWorkspaceSetup, workspaceSvc.HandleWorkspaceSetup},
		{messagequeue.SubjectWorkspaceRebuild, workspaceSvc.HandleWorkspaceRebuild},
	}
	for _, sub := range subscriptions {
		cancel, err := queue.Subscribe(ctx, sub.subject, sub.handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
		defer cancel()
	}

	// --- HTTP ---

	handlers := &pchttp.Handlers{
		Workspaces:     workspaceSvc,
		Conversations:  conversationSvc,
		Sessions:       sessionSvc,
		WS:             hub.HandleWS,
		PingDB:         pool.Ping,
		QueueConnected: queue.IsConnected,
	}

	r := chi.NewRouter()
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(pchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(pchttp.RequestID)
	r.Use(pchttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	pchttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
