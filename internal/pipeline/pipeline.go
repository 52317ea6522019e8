// Package pipeline wires discovery to alerting: it drains the monitor's pair
// channel through a worker pool, builds a snapshot for each pair, runs the
// score and validator engines, and hands qualifying results to the
// dispatcher.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-moonscan/internal/aggregator"
	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/observability"
	"solana-moonscan/internal/scoring"
	"solana-moonscan/internal/storage"
)

// snapshotRetryDelay is the initial backoff between snapshot attempts for
// the same pair. Doubles per attempt.
const snapshotRetryDelay = 500 * time.Millisecond

// Snapshotter builds a metrics snapshot for a pair.
type Snapshotter interface {
	Snapshot(ctx context.Context, pair *domain.TokenPair) (*domain.MetricsSnapshot, error)
}

// Validator runs the hard-gate checks against a snapshot.
type Validator interface {
	Validate(s *domain.MetricsSnapshot) domain.ValidationResult
}

// AlertSink receives every scored and validated pair.
type AlertSink interface {
	Dispatch(ctx context.Context, pair *domain.TokenPair, score *domain.ScoreResult, validation *domain.ValidationResult) []domain.AlertRecord
}

// Runner is the discovery-to-alert worker pool.
type Runner struct {
	workers  int
	attempts int

	snapshotter Snapshotter
	validator   Validator
	alerts      AlertSink
	history     storage.HistoryStore // nil when history is disabled

	clock   domain.Clock
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Options for creating a Runner.
type Options struct {
	// Workers is the number of pairs processed concurrently.
	Workers int

	// SnapshotAttempts is how many times a critically failed snapshot is
	// retried before the pair is dropped.
	SnapshotAttempts int

	// Required stages.
	Snapshotter Snapshotter
	Validator   Validator
	Alerts      AlertSink

	// Optional write-through history store.
	History storage.HistoryStore

	Clock   domain.Clock
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// New creates a Runner.
func New(opts Options) *Runner {
	r := &Runner{
		workers:     opts.Workers,
		attempts:    opts.SnapshotAttempts,
		snapshotter: opts.Snapshotter,
		validator:   opts.Validator,
		alerts:      opts.Alerts,
		history:     opts.History,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.attempts <= 0 {
		r.attempts = 1
	}
	if r.clock == nil {
		r.clock = domain.RealClock{}
	}
	return r
}

// Run drains pairs until the channel closes or ctx is cancelled. Workers
// finish the pair they hold before returning.
func (r *Runner) Run(ctx context.Context, pairs <-chan domain.TokenPair) {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range pairs {
				r.process(ctx, pair)
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func (r *Runner) process(ctx context.Context, pair domain.TokenPair) {
	if r.metrics != nil {
		r.metrics.PairsInFlight.Inc()
		defer r.metrics.PairsInFlight.Dec()
	}
	start := time.Now()

	r.recordPair(ctx, &pair)

	snap, err := r.snapshotWithRetry(ctx, &pair)
	if err != nil {
		if r.metrics != nil {
			r.metrics.SnapshotsDropped.Inc()
			r.metrics.PairsProcessed.WithLabelValues("dropped").Inc()
		}
		r.log.Warn().Err(err).
			Str("pair_id", pair.PairID).
			Int("attempts", r.attempts).
			Msg("pair dropped: snapshot could not be built")
		return
	}

	age := pair.Age(r.clock.Now())
	score := scoring.Score(snap, age)
	validation := r.validator.Validate(snap)

	if r.metrics != nil {
		r.metrics.ScoreDistribution.Observe(score.Score)
		for _, check := range validation.Checks {
			result := "pass"
			if !check.Passed {
				result = "fail"
			}
			r.metrics.ValidationChecks.WithLabelValues(check.Name, result).Inc()
		}
	}
	r.log.Info().
		Str("pair_id", pair.PairID).
		Float64("score", score.Score).
		Str("rating", string(score.Rating)).
		Bool("passed", validation.Passed).
		Strs("red_flags", validation.RedFlags).
		Msg("pair evaluated")

	records := r.alerts.Dispatch(ctx, &pair, &score, &validation)

	r.recordEvaluation(ctx, snap, &score, &validation, records)

	if r.metrics != nil {
		r.metrics.PairsProcessed.WithLabelValues("processed").Inc()
		r.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}
}

// snapshotWithRetry retries critical snapshot failures with doubling backoff.
// Non-critical failures never surface here: the aggregator degrades those to
// neutral defaults.
func (r *Runner) snapshotWithRetry(ctx context.Context, pair *domain.TokenPair) (*domain.MetricsSnapshot, error) {
	delay := snapshotRetryDelay
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		snap, err := r.snapshotter.Snapshot(ctx, pair)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if !aggregator.IsFetchError(err) {
			return nil, err
		}
		if attempt == r.attempts {
			break
		}
		r.log.Debug().Err(err).
			Str("pair_id", pair.PairID).
			Int("attempt", attempt).
			Msg("snapshot attempt failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return nil, lastErr
}

func (r *Runner) recordPair(ctx context.Context, pair *domain.TokenPair) {
	if r.history == nil {
		return
	}
	err := r.history.InsertPair(ctx, pair)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		r.log.Error().Err(err).Str("pair_id", pair.PairID).Msg("history: insert pair failed")
	}
}

func (r *Runner) recordEvaluation(ctx context.Context, snap *domain.MetricsSnapshot, score *domain.ScoreResult, validation *domain.ValidationResult, records []domain.AlertRecord) {
	if r.history == nil {
		return
	}
	if err := r.history.InsertEvaluation(ctx, storage.NewEvaluation(snap, score, validation)); err != nil {
		r.log.Error().Err(err).Str("pair_id", snap.Pair.PairID).Msg("history: insert evaluation failed")
	}
	if len(records) == 0 {
		return
	}
	if err := r.history.InsertAlerts(ctx, records); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		r.log.Error().Err(err).Str("pair_id", snap.Pair.PairID).Msg("history: insert alerts failed")
	}
}
