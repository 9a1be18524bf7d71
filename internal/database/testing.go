package database

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/config"
)

const testImage = "postgres:15-alpine"

// StartTestPostgres runs a disposable PostgreSQL container and returns a
// config pointing at it. terminate stops the container.
func StartTestPostgres(ctx context.Context) (cfg *config.DatabaseConfig, terminate func(), err error) {
	pg, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(testImage),
		postgres.WithDatabase("shelfsync_test"),
		postgres.WithUsername("shelfsync"),
		postgres.WithPassword("shelfsync"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}
	terminate = func() { _ = pg.Terminate(context.WithoutCancel(ctx)) }

	host, err := pg.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &config.DatabaseConfig{
		Driver:       "postgres",
		Host:         host,
		Port:         port.Port(),
		User:         "shelfsync",
		Password:     "shelfsync",
		Name:         "shelfsync_test",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}, terminate, nil
}

// OpenTestDB starts a container, connects and applies migrations.
func OpenTestDB(ctx context.Context, logger *zap.Logger) (*DB, func(), error) {
	cfg, terminate, err := StartTestPostgres(ctx)
	if err != nil {
		return nil, nil, err
	}

	db, err := NewDB(cfg, logger)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		terminate()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close test database", zap.Error(err))
		}
		terminate()
	}
	return db, cleanup, nil
}
