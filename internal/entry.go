// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/livetext/internal/api"
	"github.com/starford/livetext/internal/editor"
	"github.com/starford/livetext/internal/inbox"
	"github.com/starford/livetext/internal/index"
	"github.com/starford/livetext/internal/mcpserver"
	"github.com/starford/livetext/internal/metrics"
	"github.com/starford/livetext/internal/sse"
	"github.com/starford/livetext/internal/storage"
	"github.com/starford/livetext/internal/workspace"
)

// runtime holds the components shared by the HTTP and MCP front ends.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *index.DB
	svc    *workspace.Service
	inbox  *inbox.Ingester
	// events receives poll.completed; nil when serving MCP.
	events *sse.Broker
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newRuntime opens the index, builds the workspace and performs the
// startup inbox sync.
func newRuntime(ctx context.Context, app *application, logOut io.Writer, pub workspace.Publisher) (*runtime, error) {
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("mirror_dir", cfg.Mirror.Dir),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	for _, dir := range []string{cfg.Mirror.Dir, cfg.Inbox.Path} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	grammars := cfg.GrammarTable()

	store, err := storage.NewFS(cfg.Inbox.Path, grammars.Suffixes()...)
	if err != nil {
		return nil, fmt.Errorf("init inbox storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	launcher := app.launcher
	if launcher == nil && cfg.Editor.Command != "" {
		launcher = editor.NewCommand(cfg.Editor.Command, cfg.Editor.Args, cfg.Editor.BackgroundArgs, logger)
	}

	svcOpts := []workspace.Option{workspace.WithLogger(logger)}
	if launcher != nil {
		svcOpts = append(svcOpts, workspace.WithLauncher(launcher))
	}
	if pub != nil {
		svcOpts = append(svcOpts, workspace.WithPublisher(pub))
	}
	svc := workspace.NewService(db, grammars, workspace.Config{
		MirrorDir:        cfg.Mirror.Dir,
		Overwrite:        cfg.Mirror.Overwrite,
		MinOverrideSize:  cfg.Mirror.MinOverrideSize,
		MaxArtifactBytes: cfg.Workspace.MaxArtifactBytes,
		MirrorOptions:    cfg.Mirror.Options(logger),
	}, svcOpts...)

	ingester := inbox.New(svc, store, logger)
	if err := ingester.Sync(ctx); err != nil {
		logger.Warn("initial inbox sync failed", slog.String("error", err.Error()))
	}
	if n, err := svc.Prune(ctx); err != nil {
		logger.Warn("index prune failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("pruned stale index rows", slog.Int("count", n))
	}

	return &runtime{cfg: cfg, logger: logger, db: db, svc: svc, inbox: ingester}, nil
}

// pollLoop polls every live artifact each interval until ctx is done.
func (rt *runtime) pollLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := rt.svc.Poll(ctx)
			if ctx.Err() != nil {
				return
			}
			data := sse.PollEventData{Changed: changed}
			if err != nil {
				rt.logger.Warn("poll failed", slog.String("error", err.Error()))
				data.Error = err.Error()
			}
			if len(changed) > 0 {
				rt.logger.Info("edits adopted", slog.Any("artifacts", changed))
			}
			if rt.events != nil && (len(changed) > 0 || err != nil) {
				rt.events.Publish(sse.Event{Type: sse.EventPollCompleted, Data: data})
			}
		}
	}
}

// readyHandler reports whether the index is reachable, with the live
// artifact and event subscriber counts.
func (rt *runtime) readyHandler(w http.ResponseWriter, _ *http.Request) {
	status, code := "ok", http.StatusOK
	if err := rt.db.Ping(); err != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	body := readiness{Status: status, Artifacts: len(rt.svc.Names())}
	if rt.events != nil {
		body.SSEClients = rt.events.ClientCount()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

type readiness struct {
	Status     string `json:"status"`
	Artifacts  int    `json:"artifacts"`
	SSEClients int    `json:"sse_clients"`
}

// Run starts the HTTP server, the poll loop and the inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(2*time.Second, sse.WithHeartbeat(30*time.Second))
	defer broker.Close()

	rt, err := newRuntime(ctx, app, os.Stdout, broker)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.events = broker
	logger := rt.logger

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", rt.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rt.pollLoop(gCtx, cfg.Mirror.PollInterval.Std())
		return nil
	})

	if cfg.Inbox.Watch {
		g.Go(func() error {
			if err := rt.inbox.Watch(gCtx); err != nil {
				logger.Error("inbox watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the poll loop and watcher stop with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the workspace over MCP on stdin/stdout. Logs go to stderr
// because stdout carries the protocol. The poll loop runs alongside so edits
// are adopted between tool calls.
func RunMCP(ctx context.Context, version string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, app, os.Stderr, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go rt.pollLoop(ctx, app.config.Mirror.PollInterval.Std())

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc, version).ServeStdio()
}
