// Package bunrui is the public API for embedding the bunrui categorization
// server.
//
//	app, err := bunrui.New(ctx,
//	    bunrui.WithVersion(version),
//	    bunrui.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph is one-way: bunrui (root) imports internal/*, but
// internal/* never imports bunrui (root).
package bunrui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashita-ai/bunrui/api"
	"github.com/ashita-ai/bunrui/internal/classifier"
	"github.com/ashita-ai/bunrui/internal/config"
	"github.com/ashita-ai/bunrui/internal/mcp"
	"github.com/ashita-ai/bunrui/internal/model"
	"github.com/ashita-ai/bunrui/internal/ratelimit"
	"github.com/ashita-ai/bunrui/internal/server"
	"github.com/ashita-ai/bunrui/internal/service/categories"
	"github.com/ashita-ai/bunrui/internal/service/summaries"
	"github.com/ashita-ai/bunrui/internal/service/usage"
	"github.com/ashita-ai/bunrui/internal/storage"
	"github.com/ashita-ai/bunrui/internal/storage/jsonfile"
	"github.com/ashita-ai/bunrui/internal/storage/memory"
	"github.com/ashita-ai/bunrui/internal/storage/rediscache"
	"github.com/ashita-ai/bunrui/internal/storage/sqlite"
	"github.com/ashita-ai/bunrui/internal/telemetry"
	"github.com/ashita-ai/bunrui/migrations"
)

const shutdownTimeout = 15 * time.Second

// backend is a storage implementation serving all three record types.
type backend interface {
	categories.Store
	summaries.Store
	usage.Store
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// App is the bunrui server lifecycle. Construct with New, run with Run.
type App struct {
	cfg          config.Config
	store        backend
	redis        *redis.Client // nil when REDIS_URL is unset
	limiter      ratelimit.Limiter
	resolver     *categories.Resolver
	summaries    *summaries.Ledger
	usage        *usage.Ledger
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, connects storage, runs migrations and wires all
// subsystems. It does not accept HTTP connections; call Run for that.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger.Info("bunrui starting", "version", version, "port", cfg.Port, "storage", cfg.Storage)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a := &App{cfg: cfg, otelShutdown: otelShutdown, logger: logger, version: version}
	if err := a.wire(ctx, o); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, o resolvedOptions) error {
	cfg, logger := a.cfg, a.logger

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.store = store

	var categoryStore categories.Store = store
	if cfg.RedisURL != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.redis = client
		categoryStore = rediscache.New(client, store, logger)
		logger.Info("redis category tier: enabled")
	}

	var usageStore usage.Store = store
	if cfg.UsageStore == config.UsageStoreFile {
		fileStore, err := jsonfile.OpenOS(cfg.UsageFile)
		if err != nil {
			return fmt.Errorf("usage file: %w", err)
		}
		usageStore = fileStore
		logger.Info("usage ledger: json file", "path", fileStore.Path())
	}

	var c classifier.Classifier
	if o.classifier != nil {
		c = o.classifier
		logger.Info("classifier: external")
	} else {
		c = newClassifier(cfg, logger)
	}

	precheck, err := categories.ParsePrecheck(cfg.DomainPrecheck)
	if err != nil {
		return err
	}
	resolverOpts := []categories.Option{
		categories.WithMemoTTL(cfg.MemoTTL),
		categories.WithParallelism(cfg.ClassifyParallelism),
		categories.WithTimeout(cfg.ClassifierTimeout),
	}
	if precheck != nil {
		resolverOpts = append(resolverOpts, categories.WithPrecheck(precheck))
	}
	a.resolver = categories.New(categoryStore, c, logger, resolverOpts...)
	a.summaries = summaries.New(store, logger)
	a.usage = usage.New(usageStore, logger)

	a.limiter = newLimiter(cfg, a.redis, logger)

	mcpSrv := mcp.New(a.resolver, a.summaries, a.usage, logger, a.version)

	a.srv = server.New(server.ServerConfig{
		Resolver:            a.resolver,
		Summaries:           a.summaries,
		Usage:               a.usage,
		Storage:             store,
		Logger:              logger,
		Limiter:             a.limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             a.version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})
	return nil
}

// openBackend connects the storage selected by BUNRUI_STORAGE. Postgres
// migrations run here so a fresh database is usable immediately.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("storage: memory, all data is lost on exit")
		return memory.New(), nil
	case config.StorageSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("storage: sqlite", "path", cfg.SQLitePath)
		return s, nil
	default:
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		db.RegisterPoolMetrics()
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("storage: postgres")
		return db, nil
	}
}

func newClassifier(cfg config.Config, logger *slog.Logger) classifier.Classifier {
	switch cfg.ResolvedClassifier() {
	case "openai":
		logger.Info("classifier: openai", "model", cfg.OpenAIModel)
		return classifier.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "ollama":
		logger.Info("classifier: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return classifier.NewOllamaClassifier(cfg.OllamaURL, cfg.OllamaModel)
	default:
		logger.Warn("classifier: none configured, unknown domains resolve to Uncategorized",
			"hint", "set OPENAI_API_KEY or OLLAMA_URL")
		return classifier.NoopClassifier{}
	}
}

// newLimiter shares buckets through Redis when it is configured so every
// instance enforces one budget per client.
func newLimiter(cfg config.Config, client *redis.Client, logger *slog.Logger) ratelimit.Limiter {
	switch {
	case !cfg.RateLimitEnabled:
		logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}
	case client != nil:
		logger.Info("rate limiting: redis", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
		return ratelimit.NewRedisLimiter(client, "bunrui:ratelimit:", cfg.RateLimitRPS, cfg.RateLimitBurst)
	default:
		logger.Info("rate limiting: memory", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
		return ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

// Categorize resolves domains the same way POST /get-category-mapping does.
func (a *App) Categorize(ctx context.Context, domains []string) map[string]string {
	return a.resolver.Resolve(ctx, domains)
}

// Usage returns a snapshot of the usage ledger.
func (a *App) Usage(ctx context.Context) (model.UsageLedger, error) {
	return a.usage.Dump(ctx)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. Resources are released before Run returns.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	a.close(shutdownCtx)
	return runErr
}

// Close releases storage, Redis and telemetry without starting the server.
// Used by one-shot commands.
func (a *App) Close(ctx context.Context) {
	a.close(ctx)
}

func (a *App) close(ctx context.Context) {
	if a.resolver != nil {
		a.resolver.Close()
	}
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Warn("storage close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
	a.logger.Info("bunrui stopped")
}
