// Package testutil provides shared test infrastructure: a quiet logger and
// lazily started Postgres and Redis containers for integration tests.
//
// Containers start once per test binary on first use and are reaped by
// testcontainers when the binary exits. Tests that need them are skipped
// when no Docker provider is available.
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.NewTestDB(t)
//	    ...
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/bunrui/internal/storage"
	"github.com/ashita-ai/bunrui/migrations"
)

// TestContainer wraps a started container with the address used to reach it.
type TestContainer struct {
	Container testcontainers.Container
	// DSN is a Postgres connection string or a Redis host:port.
	DSN string
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

var (
	pgOnce      sync.Once
	pgContainer *TestContainer
	pgErr       error

	redisOnce      sync.Once
	redisContainer *TestContainer
	redisErr       error
)

// Postgres returns the shared Postgres container, starting it on first use.
func Postgres(t *testing.T) *TestContainer {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	pgOnce.Do(func() { pgContainer, pgErr = startPostgres(context.Background()) })
	if pgErr != nil {
		t.Fatalf("testutil: %v", pgErr)
	}
	return pgContainer
}

// Redis returns the shared Redis container, starting it on first use.
func Redis(t *testing.T) *TestContainer {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	redisOnce.Do(func() { redisContainer, redisErr = startRedis(context.Background()) })
	if redisErr != nil {
		t.Fatalf("testutil: %v", redisErr)
	}
	return redisContainer
}

// NewTestDB connects a storage.DB to the shared Postgres container and runs
// all migrations. The DB is closed when t finishes.
func NewTestDB(t *testing.T) *storage.DB {
	t.Helper()
	tc := Postgres(t)
	ctx := context.Background()

	db, err := storage.New(ctx, tc.DSN, TestLogger())
	if err != nil {
		t.Fatalf("testutil: create DB: %v", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		t.Fatalf("testutil: run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func startPostgres(ctx context.Context) (*TestContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "bunrui",
			"POSTGRES_PASSWORD": "bunrui",
			"POSTGRES_DB":       "bunrui",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}
	addr, err := endpoint(ctx, container, "5432")
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("postgres://bunrui:bunrui@%s/bunrui?sslmode=disable", addr)
	return &TestContainer{Container: container, DSN: dsn}, nil
}

func startRedis(ctx context.Context) (*TestContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start redis container: %w", err)
	}
	addr, err := endpoint(ctx, container, "6379")
	if err != nil {
		return nil, err
	}
	return &TestContainer{Container: container, DSN: addr}, nil
}

func endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("get container port: %w", err)
	}
	return host + ":" + mapped.Port(), nil
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
