package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/storage"
	"solana-moonscan/internal/storage/postgres"
)

// setupTestDB starts a PostgreSQL container and applies the embedded schema.
func setupTestDB(t *testing.T) *postgres.Pool {
	t.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") != "" {
		t.Skip("SKIP_DOCKER_TESTS set")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, pool.Migrate(ctx), "failed to apply migrations")
	// The schema is idempotent; re-applying at boot must be safe.
	require.NoError(t, pool.Migrate(ctx), "failed to re-apply migrations")

	t.Cleanup(func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return pool
}

func testPair(id string) *domain.TokenPair {
	return &domain.TokenPair{
		PairID:      id,
		Exchange:    domain.ExchangeRaydium,
		PoolAddress: "pool-" + id,
		BaseMint:    "base-" + id,
		QuoteMint:   "So11111111111111111111111111111111111111112",
		TxSignature: "sig-" + id,
		Slot:        12345,
		CreatedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHistoryStorePostgres(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewHistoryStore(pool)
	ctx := context.Background()

	t.Run("pair round trip", func(t *testing.T) {
		p := testPair("pg-p1")
		require.NoError(t, store.InsertPair(ctx, p))

		got, err := store.GetPair(ctx, "pg-p1")
		require.NoError(t, err)
		assert.Equal(t, p.Exchange, got.Exchange)
		assert.Equal(t, p.PoolAddress, got.PoolAddress)
		assert.Equal(t, p.Slot, got.Slot)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("duplicate pair", func(t *testing.T) {
		p := testPair("pg-dup")
		require.NoError(t, store.InsertPair(ctx, p))
		assert.ErrorIs(t, store.InsertPair(ctx, p), storage.ErrDuplicateKey)
	})

	t.Run("pair not found", func(t *testing.T) {
		_, err := store.GetPair(ctx, "pg-missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("evaluations ordered", func(t *testing.T) {
		base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		for _, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
			err := store.InsertEvaluation(ctx, &storage.Evaluation{
				PairID:       "pg-evals",
				CapturedAt:   base.Add(offset),
				LiquidityUSD: 5000,
				VolumeUSD:    7500,
				BuyCount:     80,
				SellCount:    20,
				HolderCount:  150,
				TopTenShare:  0.25,
				DevShare:     0.02,
				Score:        82.5,
				Raw:          55,
				Rating:       "very strong",
				Passed:       true,
				RedFlags:     nil,
			})
			require.NoError(t, err)
		}

		evals, err := store.GetEvaluations(ctx, "pg-evals")
		require.NoError(t, err)
		require.Len(t, evals, 3)
		for i := 1; i < len(evals); i++ {
			assert.False(t, evals[i].CapturedAt.Before(evals[i-1].CapturedAt))
		}
		assert.Equal(t, 82.5, evals[0].Score)
		assert.Equal(t, "very strong", evals[0].Rating)
	})

	t.Run("red flags round trip", func(t *testing.T) {
		err := store.InsertEvaluation(ctx, &storage.Evaluation{
			PairID:     "pg-flags",
			CapturedAt: time.Now().UTC(),
			Rating:     "weak",
			RedFlags:   []string{"mint_authority", "dev_share"},
		})
		require.NoError(t, err)

		evals, err := store.GetEvaluations(ctx, "pg-flags")
		require.NoError(t, err)
		require.Len(t, evals, 1)
		assert.Equal(t, []string{"mint_authority", "dev_share"}, evals[0].RedFlags)
	})

	t.Run("alert batch is atomic", func(t *testing.T) {
		completed := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)
		first := []domain.AlertRecord{{
			RecordID: "pg-r1", PairID: "pg-alerts", Channel: "telegram",
			Attempts: 1, Status: domain.DeliveryDelivered,
			PayloadDigest: "digest", CompletedAt: completed,
		}}
		require.NoError(t, store.InsertAlerts(ctx, first))

		batch := []domain.AlertRecord{
			{RecordID: "pg-r2", PairID: "pg-alerts", Channel: "discord",
				Attempts: 1, Status: domain.DeliveryDelivered,
				PayloadDigest: "digest", CompletedAt: completed.Add(time.Minute)},
			{RecordID: "pg-r1", PairID: "pg-alerts", Channel: "telegram",
				Attempts: 1, Status: domain.DeliveryDelivered,
				PayloadDigest: "digest", CompletedAt: completed},
		}
		assert.ErrorIs(t, store.InsertAlerts(ctx, batch), storage.ErrDuplicateKey)

		alerts, err := store.GetAlerts(ctx, "pg-alerts")
		require.NoError(t, err)
		assert.Len(t, alerts, 1, "failed batch must insert nothing")
	})
}
