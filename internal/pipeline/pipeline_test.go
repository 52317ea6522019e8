package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-moonscan/internal/aggregator"
	"solana-moonscan/internal/alert"
	"solana-moonscan/internal/config"
	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/storage/memory"
	"solana-moonscan/internal/validation"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// stubSnapshotter returns canned snapshots per pair, optionally failing a
// number of times first.
type stubSnapshotter struct {
	snap      *domain.MetricsSnapshot
	err       error
	failTimes int
	calls     atomic.Int64
}

func (s *stubSnapshotter) Snapshot(_ context.Context, pair *domain.TokenPair) (*domain.MetricsSnapshot, error) {
	n := s.calls.Add(1)
	if s.err != nil && n <= int64(s.failTimes) {
		return nil, s.err
	}
	snap := *s.snap
	snap.Pair = pair
	return &snap, nil
}

// countingChannel records deliveries.
type countingChannel struct {
	name  string
	calls atomic.Int64
}

func (c *countingChannel) Name() string { return c.name }

func (c *countingChannel) Deliver(context.Context, *alert.Payload, []byte) error {
	c.calls.Add(1)
	return nil
}

func testValidationConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MaxTopTenShare:        0.30,
		MaxDevShare:           0.05,
		MinLiquidityUSD:       500,
		MinLPLock:             30 * 24 * time.Hour,
		MaxLiquidityWithdrawn: 0.30,
	}
}

func testAlertsConfig() config.AlertsConfig {
	return config.AlertsConfig{
		ScoreThreshold:    70,
		RequireValidation: true,
		DedupWindow:       time.Hour,
		MaxAttempts:       1,
		RetryDelay:        time.Millisecond,
	}
}

// healthySnapshot scores 55 raw; at under 15 minutes of age the final score
// is 82.5 ("very strong") and every check passes.
func healthySnapshot() *domain.MetricsSnapshot {
	return &domain.MetricsSnapshot{
		CapturedAt:         testNow,
		LiquidityUSD:       6000,
		VolumeUSD:          9000,
		BuyCount:           80,
		SellCount:          20,
		HolderCount:        150,
		TopTenShare:        0.25,
		DevShare:           0.02,
		MintAuthority:      false,
		FreezeAuthority:    false,
		LPLock:             domain.LPLock{Burned: true},
		SocialMentionDelta: 10,
		LiquidityWithdrawn: 0,
	}
}

func discoveredPair(id string, age time.Duration) domain.TokenPair {
	return domain.TokenPair{
		PairID:      id,
		Exchange:    domain.ExchangeRaydium,
		PoolAddress: "pool-" + id,
		BaseMint:    "base-" + id,
		QuoteMint:   "So11111111111111111111111111111111111111112",
		TxSignature: "sig-" + id,
		Slot:        100,
		CreatedAt:   testNow.Add(-age),
	}
}

func runPairs(t *testing.T, r *Runner, pairs ...domain.TokenPair) {
	t.Helper()
	ch := make(chan domain.TokenPair, len(pairs))
	for _, p := range pairs {
		ch <- p
	}
	close(ch)
	r.Run(context.Background(), ch)
}

func TestRunnerAlertsStrongYoungPair(t *testing.T) {
	telegram := &countingChannel{name: "telegram"}
	discord := &countingChannel{name: "discord"}
	dispatcher, err := alert.New(testAlertsConfig(),
		alert.WithChannels(telegram, discord),
		alert.WithClock(domain.FixedClock{T: testNow}))
	require.NoError(t, err)

	history := memory.NewHistoryStore()
	r := New(Options{
		Workers:          2,
		SnapshotAttempts: 3,
		Snapshotter:      &stubSnapshotter{snap: healthySnapshot()},
		Validator:        validation.New(testValidationConfig()),
		Alerts:           dispatcher,
		History:          history,
		Clock:            domain.FixedClock{T: testNow},
	})

	runPairs(t, r, discoveredPair("p1", 10*time.Minute))

	assert.Equal(t, int64(1), telegram.calls.Load())
	assert.Equal(t, int64(1), discord.calls.Load())

	ctx := context.Background()
	_, err = history.GetPair(ctx, "p1")
	require.NoError(t, err)

	evals, err := history.GetEvaluations(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, 82.5, evals[0].Score)
	assert.Equal(t, "very strong", evals[0].Rating)
	assert.True(t, evals[0].Passed)
	assert.Empty(t, evals[0].RedFlags)

	records, err := history.GetAlerts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, domain.DeliveryDelivered, rec.Status)
	}
}

func TestRunnerSuppressesMintAuthorityPair(t *testing.T) {
	telegram := &countingChannel{name: "telegram"}
	dispatcher, err := alert.New(testAlertsConfig(),
		alert.WithChannels(telegram),
		alert.WithClock(domain.FixedClock{T: testNow}))
	require.NoError(t, err)

	snap := healthySnapshot()
	snap.MintAuthority = true

	history := memory.NewHistoryStore()
	r := New(Options{
		Workers:          1,
		SnapshotAttempts: 3,
		Snapshotter:      &stubSnapshotter{snap: snap},
		Validator:        validation.New(testValidationConfig()),
		Alerts:           dispatcher,
		History:          history,
		Clock:            domain.FixedClock{T: testNow},
	})

	runPairs(t, r, discoveredPair("p1", 10*time.Minute))

	assert.Zero(t, telegram.calls.Load(), "failed validation must suppress alerts")

	evals, err := history.GetEvaluations(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.False(t, evals[0].Passed)
	assert.Equal(t, []string{"mint_authority"}, evals[0].RedFlags, "exactly one check fails")

	records, err := history.GetAlerts(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunnerRetriesCriticalSnapshotFailure(t *testing.T) {
	telegram := &countingChannel{name: "telegram"}
	dispatcher, err := alert.New(testAlertsConfig(),
		alert.WithChannels(telegram),
		alert.WithClock(domain.FixedClock{T: testNow}))
	require.NoError(t, err)

	snapper := &stubSnapshotter{
		snap:      healthySnapshot(),
		err:       &aggregator.FetchError{Field: "mint", Err: errors.New("rpc exhausted")},
		failTimes: 2,
	}
	r := New(Options{
		Workers:          1,
		SnapshotAttempts: 3,
		Snapshotter:      snapper,
		Validator:        validation.New(testValidationConfig()),
		Alerts:           dispatcher,
		Clock:            domain.FixedClock{T: testNow},
	})

	runPairs(t, r, discoveredPair("p1", 10*time.Minute))

	assert.Equal(t, int64(3), snapper.calls.Load())
	assert.Equal(t, int64(1), telegram.calls.Load(), "third attempt succeeds and alerts")
}

func TestRunnerDropsPairAfterExhaustedAttempts(t *testing.T) {
	telegram := &countingChannel{name: "telegram"}
	dispatcher, err := alert.New(testAlertsConfig(),
		alert.WithChannels(telegram),
		alert.WithClock(domain.FixedClock{T: testNow}))
	require.NoError(t, err)

	snapper := &stubSnapshotter{
		snap:      healthySnapshot(),
		err:       &aggregator.FetchError{Field: "liquidity", Err: errors.New("rpc exhausted")},
		failTimes: 100,
	}
	history := memory.NewHistoryStore()
	r := New(Options{
		Workers:          1,
		SnapshotAttempts: 2,
		Snapshotter:      snapper,
		Validator:        validation.New(testValidationConfig()),
		Alerts:           dispatcher,
		History:          history,
		Clock:            domain.FixedClock{T: testNow},
	})

	runPairs(t, r, discoveredPair("p1", 10*time.Minute))

	assert.Equal(t, int64(2), snapper.calls.Load())
	assert.Zero(t, telegram.calls.Load())

	// The discovery is still recorded; the evaluation is not.
	_, err = history.GetPair(context.Background(), "p1")
	require.NoError(t, err)
	evals, err := history.GetEvaluations(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, evals)
}

func TestRunnerDoesNotRetryNonCriticalError(t *testing.T) {
	snapper := &stubSnapshotter{
		snap:      healthySnapshot(),
		err:       errors.New("plain failure"),
		failTimes: 100,
	}
	dispatcher, err := alert.New(testAlertsConfig(), alert.WithChannels(&countingChannel{name: "a"}))
	require.NoError(t, err)

	r := New(Options{
		Workers:          1,
		SnapshotAttempts: 5,
		Snapshotter:      snapper,
		Validator:        validation.New(testValidationConfig()),
		Alerts:           dispatcher,
		Clock:            domain.FixedClock{T: testNow},
	})

	runPairs(t, r, discoveredPair("p1", 10*time.Minute))

	assert.Equal(t, int64(1), snapper.calls.Load(), "non-fetch errors are terminal")
}

func TestRunnerProcessesAllPairsAcrossWorkers(t *testing.T) {
	telegram := &countingChannel{name: "telegram"}
	dispatcher, err := alert.New(testAlertsConfig(),
		alert.WithChannels(telegram),
		alert.WithClock(domain.FixedClock{T: testNow}))
	require.NoError(t, err)

	snapper := &stubSnapshotter{snap: healthySnapshot()}
	history := memory.NewHistoryStore()
	r := New(Options{
		Workers:          4,
		SnapshotAttempts: 1,
		Snapshotter:      snapper,
		Validator:        validation.New(testValidationConfig()),
		Alerts:           dispatcher,
		History:          history,
		Clock:            domain.FixedClock{T: testNow},
	})

	pairs := make([]domain.TokenPair, 0, 8)
	for i := 0; i < 8; i++ {
		pairs = append(pairs, discoveredPair(string(rune('a'+i)), 10*time.Minute))
	}
	runPairs(t, r, pairs...)

	assert.Equal(t, int64(8), snapper.calls.Load())
	assert.Equal(t, int64(8), telegram.calls.Load())
	for i := 0; i < 8; i++ {
		_, err := history.GetPair(context.Background(), string(rune('a'+i)))
		assert.NoError(t, err)
	}
}
