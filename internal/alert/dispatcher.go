// Package alert turns qualifying score/validation results into channel
// deliveries: Telegram, Discord, and signed generic webhooks.
package alert

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-moonscan/internal/config"
	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/idhash"
	"solana-moonscan/internal/observability"
)

// maxDedupEntries bounds the alerted-pair map independently of the time
// window.
const maxDedupEntries = 8192

// Dispatcher fans qualifying alerts out to every enabled channel.
type Dispatcher struct {
	cfg      config.AlertsConfig
	channels []Channel

	mu      sync.Mutex
	alerted map[string]time.Time // pairID -> first alert time

	httpClient *http.Client

	clock   domain.Clock
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock overrides the wall clock.
func WithClock(clock domain.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// WithChannels replaces the config-derived channel set.
func WithChannels(channels ...Channel) Option {
	return func(d *Dispatcher) { d.channels = channels }
}

// WithHTTPClient sets the http.Client shared by config-derived channels.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = client }
}

// New creates a Dispatcher with the channels enabled in cfg. A webhook
// channel without a signing secret is a fatal configuration error.
func New(cfg config.AlertsConfig, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:     cfg,
		alerted: make(map[string]time.Time),
		clock:   domain.RealClock{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.channels == nil {
		if cfg.Telegram.Enabled {
			d.channels = append(d.channels, NewTelegramChannel(cfg.Telegram, d.httpClient))
		}
		if cfg.Discord.Enabled {
			d.channels = append(d.channels, NewDiscordChannel(cfg.Discord, d.httpClient))
		}
		if cfg.Webhook.Enabled {
			ch, err := NewWebhookChannel(cfg.Webhook, d.httpClient)
			if err != nil {
				return nil, err
			}
			d.channels = append(d.channels, ch)
		}
	}
	return d, nil
}

// Dispatch evaluates the alert policy and, for a first qualifying evaluation
// of a pair, delivers to every enabled channel concurrently. Repeat
// qualifying evaluations inside the dedup window yield a single
// skipped-duplicate record. Non-qualifying evaluations yield no records.
func (d *Dispatcher) Dispatch(ctx context.Context, pair *domain.TokenPair, score *domain.ScoreResult, validation *domain.ValidationResult) []domain.AlertRecord {
	if score.Score < d.cfg.ScoreThreshold {
		return nil
	}
	if d.cfg.RequireValidation && !validation.Passed {
		d.log.Debug().Str("pair_id", pair.PairID).
			Strs("red_flags", validation.RedFlags).
			Msg("qualifying score suppressed by validation")
		return nil
	}

	now := d.clock.Now()
	if !d.markAlerted(pair.PairID, now) {
		if d.metrics != nil {
			d.metrics.AlertsSkipped.Inc()
		}
		return []domain.AlertRecord{{
			RecordID:    uuid.NewString(),
			PairID:      pair.PairID,
			Status:      domain.DeliverySkippedDuplicate,
			CompletedAt: now,
		}}
	}

	payload := buildPayload(pair, score, validation, now)
	body, err := payload.Canonical()
	if err != nil {
		d.log.Error().Err(err).Str("pair_id", pair.PairID).Msg("payload serialization failed")
		return nil
	}
	digest := idhash.ComputeAlertDigest(body)

	records := make([]domain.AlertRecord, len(d.channels))
	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			records[i] = d.deliverWithRetry(ctx, ch, payload, body, digest)
		}(i, ch)
	}
	wg.Wait()

	sort.Slice(records, func(i, j int) bool { return records[i].Channel < records[j].Channel })
	return records
}

// markAlerted records the pair unless it was already alerted inside the
// window. Expired and excess entries are pruned in place.
func (d *Dispatcher) markAlerted(pairID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.alerted[pairID]; ok && now.Sub(at) < d.cfg.DedupWindow {
		return false
	}

	for id, at := range d.alerted {
		if now.Sub(at) >= d.cfg.DedupWindow {
			delete(d.alerted, id)
		}
	}
	if len(d.alerted) >= maxDedupEntries {
		// Window misconfiguration pressure valve: drop the oldest entry.
		var oldestID string
		var oldest time.Time
		for id, at := range d.alerted {
			if oldestID == "" || at.Before(oldest) {
				oldestID, oldest = id, at
			}
		}
		delete(d.alerted, oldestID)
	}

	d.alerted[pairID] = now
	return true
}

// deliverWithRetry drives one channel's bounded retry loop.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, ch Channel, payload *Payload, body []byte, digest string) domain.AlertRecord {
	record := domain.AlertRecord{
		RecordID:      uuid.NewString(),
		PairID:        payload.PairID,
		Channel:       ch.Name(),
		PayloadDigest: digest,
	}

	maxAttempts := d.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := d.cfg.RetryDelay

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		record.Attempts = attempt
		if lastErr = ch.Deliver(ctx, payload, body); lastErr == nil {
			break
		}
		d.log.Warn().Err(lastErr).
			Str("pair_id", payload.PairID).
			Str("channel", ch.Name()).
			Int("attempt", attempt).
			Msg("alert delivery failed")
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				attempt = maxAttempts // no more attempts after cancellation
			case <-time.After(delay):
				delay *= 2
			}
		}
	}

	record.CompletedAt = d.clock.Now()
	if lastErr == nil {
		record.Status = domain.DeliveryDelivered
		d.log.Info().Str("pair_id", payload.PairID).Str("channel", ch.Name()).
			Float64("score", payload.Score).Msg("alert delivered")
	} else {
		record.Status = domain.DeliveryFailed
		record.LastError = lastErr.Error()
	}

	if d.metrics != nil {
		d.metrics.AlertsDispatched.WithLabelValues(ch.Name(), string(record.Status)).Inc()
		d.metrics.AlertLatency.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())
	}
	return record
}
