package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/config"
)

func TestNewDB_Success(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	cfg, terminate, err := StartTestPostgres(ctx)
	require.NoError(t, err)
	defer terminate()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	db, err := NewDB(cfg, logger)

	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	// Verify connection is active
	err = db.PingContext(ctx)
	assert.NoError(t, err)

	// Verify connection pool settings
	stats := db.Stats()
	assert.Equal(t, 5, stats.MaxOpenConnections)

	assert.NoError(t, db.Health(ctx))
}

func TestNewDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:         "nonexistent-host-12345",
		Port:         "5432",
		User:         "testuser",
		Password:     "testpass",
		Name:         "testdb",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	db, err := NewDB(cfg, zap.NewNop())

	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestDBHealth_ClosedConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	cfg, terminate, err := StartTestPostgres(ctx)
	require.NoError(t, err)
	defer terminate()

	db, err := NewDB(cfg, zap.NewNop())
	require.NoError(t, err)

	// Close the connection
	require.NoError(t, db.Close())

	// Health check should fail on closed connection
	err = db.Health(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database health check failed")
}

func TestRunMigrations_CreatesTablesIdempotently(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	cfg, terminate, err := StartTestPostgres(ctx)
	require.NoError(t, err)
	defer terminate()

	db, err := NewDB(cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.RunMigrations())
	assert.NoError(t, db.RunMigrations(), "Running migrations twice should not error (ErrNoChange is handled)")

	// Verify tables were created
	var tableCount int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_name IN ('records', 'board_games', 'books', 'sync_status')
	`).Scan(&tableCount)

	require.NoError(t, err)
	assert.Equal(t, 4, tableCount, "All 4 tables should be created")

	// Verify migration tracking table exists
	var migrationTableExists bool
	err = db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = 'schema_migrations'
		)
	`).Scan(&migrationTableExists)

	require.NoError(t, err)
	assert.True(t, migrationTableExists, "Migration tracking table should exist")
}
