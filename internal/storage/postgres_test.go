package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"dipsim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestPool starts a PostgreSQL container and applies the schema.
func setupTestPool(t *testing.T) *Pool {
	t.Helper()
	if os.Getenv("DIPSIM_INTEGRATION") != "1" {
		t.Skip("set DIPSIM_INTEGRATION=1 to run postgres integration tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")
	require.NoError(t, pool.Migrate(ctx))
	require.NoError(t, pool.Migrate(ctx), "schema must be idempotent")

	t.Cleanup(func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
	return pool
}

func TestPostgresSink(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	sink := NewPostgresSink(pool)
	run := testRun("run-pg", 7)

	require.NoError(t, sink.WriteEvents(ctx, run, testEvents()))
	require.NoError(t, sink.WriteEvents(ctx, run, testEvents()))
	require.NoError(t, sink.WriteDCA(ctx, run, []models.DCAPurchase{
		{Symbol: "SPLG", Strategy: models.StrategyDCAWeekly, Date: day("2024-01-02"), BuyPrice: 58, SharesPurchased: 0.431034,
			DollarsInvested: 25, CumulativeShares: 0.431034, CumulativeInvested: 25, CumulativeValue: 25.1, Close: 58.2},
	}))

	n, err := pool.CountRows(ctx, "dip_events", run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = pool.CountRows(ctx, "dca_purchases", run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var seq int64
	require.NoError(t, pool.QueryRow(ctx, "SELECT seq FROM runs WHERE run_id = $1", run.ID).Scan(&seq))
	assert.Equal(t, int64(7), seq)
}
