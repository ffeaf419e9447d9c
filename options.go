package bunrui

import (
	"log/slog"

	"github.com/ashita-ai/bunrui/internal/config"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds overrides applied on top of the environment config.
type resolvedOptions struct {
	port        int
	storage     string
	databaseURL string
	sqlitePath  string
	logger      *slog.Logger
	version     string
	classifier  *classifierAdapter
}

func (o resolvedOptions) apply(cfg *config.Config) {
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.storage != "" {
		cfg.Storage = o.storage
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
}

// WithPort overrides the TCP port from config (BUNRUI_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithStorage overrides the storage backend (BUNRUI_STORAGE env var):
// "postgres", "sqlite" or "memory".
func WithStorage(kind string) Option {
	return func(o *resolvedOptions) { o.storage = kind }
}

// WithDatabaseURL overrides the Postgres connection string (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithSQLitePath overrides the SQLite database file (BUNRUI_SQLITE_PATH env var).
func WithSQLitePath(path string) Option {
	return func(o *resolvedOptions) { o.sqlitePath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithClassifier replaces the auto-detected classifier (OpenAI/Ollama/noop).
func WithClassifier(c Classifier) Option {
	return func(o *resolvedOptions) {
		if c != nil {
			o.classifier = &classifierAdapter{c: c}
		}
	}
}
