// Package monitor discovers newly created trading pairs by watching DEX
// program activity, over WebSocket log subscriptions with a polling fallback.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-moonscan/internal/config"
	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/gateway"
	"solana-moonscan/internal/observability"
)

// Monitor watches the configured exchanges and emits exactly one discovery
// event per distinct new pair.
type Monitor struct {
	cfg        config.MonitorConfig
	chain      gateway.ChainReader
	wsEndpoint string
	wsConfig   wsConfig

	pairs    chan domain.TokenPair
	sigs     *dedupWindow // transaction signatures already processed
	seen     *dedupWindow // pair IDs already emitted
	watchers []*watcher

	clock   domain.Clock
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithClock overrides the wall clock.
func WithClock(clock domain.Clock) Option {
	return func(m *Monitor) { m.clock = clock }
}

// WithWebsocketEndpoint sets the ws:// or wss:// endpoint used for log
// subscriptions. Without one the monitor polls via the gateway.
func WithWebsocketEndpoint(endpoint string) Option {
	return func(m *Monitor) { m.wsEndpoint = endpoint }
}

// New creates a Monitor over the configured exchange list.
func New(cfg config.MonitorConfig, chain gateway.ChainReader, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		cfg:      cfg,
		chain:    chain,
		wsConfig: defaultWSConfig(),
		pairs:    make(chan domain.TokenPair, 256),
		sigs:     newDedupWindow(cfg.DedupWindow),
		seen:     newDedupWindow(cfg.DedupWindow),
		clock:    domain.RealClock{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, name := range cfg.Exchanges {
		spec, ok := programFor(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown exchange %q", config.ErrInvalidConfig, name)
		}
		m.watchers = append(m.watchers, newWatcher(m, spec))
	}
	if len(m.watchers) == 0 {
		return nil, fmt.Errorf("%w: monitor requires at least one exchange", config.ErrInvalidConfig)
	}
	return m, nil
}

// Pairs returns the discovery stream. The channel closes when Run returns.
func (m *Monitor) Pairs() <-chan domain.TokenPair { return m.pairs }

// Run blocks until ctx is cancelled, then shuts every watcher down and
// closes the discovery stream.
func (m *Monitor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, w := range m.watchers {
		wg.Add(1)
		go func(w *watcher) {
			defer wg.Done()
			w.run(ctx)
		}(w)
	}
	wg.Wait()
	close(m.pairs)
	return ctx.Err()
}

// emit delivers a pair downstream unless it was already seen in the window.
func (m *Monitor) emit(ctx context.Context, pair *domain.TokenPair) {
	if m.seen.Observe(pair.PairID) {
		if m.metrics != nil {
			m.metrics.EventsDeduped.Inc()
		}
		return
	}
	if m.cfg.MaxPairAge > 0 && pair.Age(m.clock.Now()) > m.cfg.MaxPairAge {
		return
	}

	select {
	case m.pairs <- *pair:
		if m.metrics != nil {
			m.metrics.PairsDiscovered.WithLabelValues(string(pair.Exchange)).Inc()
		}
		m.log.Info().
			Str("pair_id", pair.PairID).
			Str("exchange", string(pair.Exchange)).
			Str("pool", pair.PoolAddress).
			Str("base_mint", pair.BaseMint).
			Msg("pair discovered")
	case <-ctx.Done():
	}
}

// watcher runs the subscription lifecycle for one exchange.
type watcher struct {
	m      *Monitor
	spec   programSpec
	parser *Parser
	state  ConnState
	mu     sync.Mutex
	log    zerolog.Logger
}

func newWatcher(m *Monitor, spec programSpec) *watcher {
	w := &watcher{
		m:      m,
		spec:   spec,
		parser: NewParser(spec),
		state:  StateDisconnected,
		log:    m.log.With().Str("exchange", string(spec.Exchange)).Logger(),
	}
	w.publishState()
	return w
}

// State returns the current subscription state.
func (w *watcher) State() ConnState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *watcher) setState(next ConnState) {
	w.mu.Lock()
	if !canTransition(w.state, next) {
		w.mu.Unlock()
		w.log.Error().
			Stringer("from", w.state).
			Stringer("to", next).
			Msg("illegal subscription state transition")
		return
	}
	prev := w.state
	w.state = next
	w.mu.Unlock()

	w.publishState()
	w.log.Debug().Stringer("from", prev).Stringer("to", next).Msg("subscription state change")
}

func (w *watcher) publishState() {
	if w.m.metrics != nil {
		w.m.metrics.ConnectionState.WithLabelValues(string(w.spec.Exchange)).Set(float64(w.State()))
	}
}

func (w *watcher) run(ctx context.Context) {
	defer func() {
		w.setState(StateShuttingDown)
		w.setState(StateDisconnected)
	}()

	if w.m.cfg.EnableWebsocket && w.m.wsEndpoint != "" {
		w.runStreaming(ctx)
		return
	}
	w.runPolling(ctx)
}

// runStreaming keeps a logsSubscribe session alive, reconnecting with capped
// exponential backoff. Signatures already processed before a reconnect are
// dropped by the dedup window, so nothing is delivered twice.
func (w *watcher) runStreaming(ctx context.Context) {
	const maxDelay = 30 * time.Second
	delay := time.Second

	for ctx.Err() == nil {
		w.setState(StateConnecting)
		session, err := dialLogsSession(ctx, w.m.wsEndpoint, w.spec.ProgramID, w.m.wsConfig)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn().Err(err).Dur("retry_in", delay).Msg("websocket connect failed")
			w.setState(StateReconnecting)
			if w.m.metrics != nil {
				w.m.metrics.WSReconnects.WithLabelValues(string(w.spec.Exchange)).Inc()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		w.setState(StateSubscribed)
		delay = time.Second

		w.consume(ctx, session)
		session.Close()
		if ctx.Err() != nil {
			return
		}

		w.log.Warn().Err(session.Err()).Msg("websocket session ended, reconnecting")
		w.setState(StateReconnecting)
		if w.m.metrics != nil {
			w.m.metrics.WSReconnects.WithLabelValues(string(w.spec.Exchange)).Inc()
		}
	}
}

// consume drains one session's notifications until it ends or ctx cancels.
func (w *watcher) consume(ctx context.Context, session *wsSession) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if ev.Err != nil {
				continue // failed transactions never create pools
			}
			w.handleSignature(ctx, ev.Signature)
		}
	}
}

// runPolling periodically lists recent program signatures via the gateway.
// Polling and streaming feed the same discovery path.
func (w *watcher) runPolling(ctx context.Context) {
	w.setState(StateConnecting)
	w.setState(StateSubscribed)

	ticker := time.NewTicker(w.m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *watcher) pollOnce(ctx context.Context) {
	sigs, err := w.m.chain.GetSignaturesForAddress(ctx, w.spec.ProgramID, &gateway.SignaturesOpts{Limit: 100})
	if err != nil {
		w.log.Warn().Err(err).Msg("poll signatures failed")
		return
	}

	// Oldest first, so discovery order follows chain order.
	for i := len(sigs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return
		}
		if sigs[i].Err != nil {
			continue
		}
		w.handleSignature(ctx, sigs[i].Signature)
	}
}

// handleSignature fetches and parses one transaction, emitting a discovery
// event if it initialized a pool.
func (w *watcher) handleSignature(ctx context.Context, sig string) {
	if sig == "" || w.m.sigs.Observe(sig) {
		return
	}

	tx, err := w.m.chain.GetTransaction(ctx, sig)
	if err != nil {
		w.log.Warn().Err(err).Str("signature", sig).Msg("fetch transaction failed")
		return
	}
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil || tx.Message == nil {
		return
	}

	blockTime := w.m.clock.Now()
	if tx.BlockTime > 0 {
		blockTime = time.Unix(tx.BlockTime, 0).UTC()
	}

	pair := w.parser.ParsePoolInit(tx.Meta.LogMessages, tx.Message.AccountKeys, sig, tx.Slot, blockTime)
	if pair == nil {
		return
	}
	w.m.emit(ctx, pair)
}
