package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-pathways/internal/activity"
	"github.com/p-n-ai/pai-pathways/internal/ai"
	"github.com/p-n-ai/pai-pathways/internal/backend"
	"github.com/p-n-ai/pai-pathways/internal/curriculum"
	"github.com/p-n-ai/pai-pathways/internal/httpapi"
	"github.com/p-n-ai/pai-pathways/internal/platform/cache"
	"github.com/p-n-ai/pai-pathways/internal/platform/config"
	"github.com/p-n-ai/pai-pathways/internal/platform/database"
	"github.com/p-n-ai/pai-pathways/internal/resource"
	"github.com/p-n-ai/pai-pathways/internal/session"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	// No WriteTimeout: the stream endpoint holds connections open.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     app.mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"backend", cfg.Backend,
			"synthesis", cfg.Synthesis.Mode,
			"cache", cfg.Cache.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	// Closing sessions first releases stream subscribers so Shutdown
	// does not wait on open websockets.
	app.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired components and the resources to release on exit.
type app struct {
	mux      *http.ServeMux
	sessions *session.Manager
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// setup wires the backend, cache tier, synthesizer and HTTP surface.
func setup(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	var checks []checker

	loader, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		return nil, err
	}

	var (
		be      backend.Backend
		uploads backend.UploadReader
	)
	events := activity.Logger(activity.NopLogger{})
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks = append(checks, db)

		pg, err := backend.NewPostgresBackend(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		for _, p := range loader.AllPaths() {
			inserted, err := pg.SeedPath(ctx, p)
			if err != nil {
				a.close()
				return nil, fmt.Errorf("seeding path %s: %w", p.ID, err)
			}
			if inserted {
				slog.Info("learning path seeded", "path_id", p.ID)
			}
		}
		be, uploads = pg, pg
		events = activity.NewPostgresLogger(db.Pool)
	default:
		mem := backend.NewMemoryBackend(loader.AllPaths()...)
		be, uploads = mem, mem
	}

	storeOpts := []resource.Option{resource.WithEventLogger(events)}
	var budget ai.BudgetChecker = ai.NewInMemoryBudget(int64(cfg.AI.TokenBudget))

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		checks = append(checks, c)
		storeOpts = append(storeOpts, resource.WithSharedCache(resource.NewRedisCache(c.Client)))
		budget = ai.NewRedisBudget(c.Client, int64(cfg.AI.TokenBudget))
	}

	if cfg.Synthesis.Mode == config.SynthesisAI {
		router := newAIRouter(cfg.AI)
		opts := []resource.AIOption{resource.WithBudget(budget)}
		if cfg.AI.Model != "" {
			opts = append(opts, resource.WithModel(cfg.AI.Model))
		}
		storeOpts = append(storeOpts, resource.WithSynthesizer(resource.NewAISynthesizer(router, opts...)))
	}

	a.sessions = session.NewManager(be,
		session.WithEventLogger(events),
		session.WithStoreOptions(storeOpts...),
	)

	a.mux = newMux(checks...)
	httpapi.New(a.sessions,
		httpapi.WithMaxUploadBytes(int64(cfg.Upload.MaxBytes)),
		httpapi.WithUploads(uploads),
	).Register(a.mux)

	return a, nil
}

// newAIRouter registers every configured provider. Hosted providers come
// first so the local model is the last fallback.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL))
	}
	return router
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// checker is a dependency probed by /readyz.
type checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// newMux creates the HTTP router with health check endpoints.
func newMux(checks ...checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for _, c := range checks {
			if err := c.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", c.Name(), "error", err)
				failed[c.Name()] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
