// Package aggregator builds point-in-time metric snapshots for discovered
// pairs by batching the required on-chain reads through the gateway.
package aggregator

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-moonscan/internal/config"
	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/gateway"
	"solana-moonscan/internal/observability"
)

// lpBurnDustThreshold is the LP supply (ui amount) below which the LP is
// considered burned.
const lpBurnDustThreshold = 1e-6

var rayLogPattern = regexp.MustCompile(`ray_log: ([A-Za-z0-9+/=]+)`)

// Aggregator produces MetricsSnapshots. Safe for concurrent use.
type Aggregator struct {
	cfg    config.AggregatorConfig
	chain  gateway.ChainReader
	market MarketDataSource
	peaks  *peakTracker

	clock   domain.Clock
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithClock overrides the wall clock.
func WithClock(clock domain.Clock) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// WithMarketData sets the off-chain enrichment source.
func WithMarketData(source MarketDataSource) Option {
	return func(a *Aggregator) { a.market = source }
}

// New creates an Aggregator reading through the given gateway.
func New(cfg config.AggregatorConfig, chain gateway.ChainReader, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:    cfg,
		chain:  chain,
		market: NoopMarketData{},
		peaks:  newPeakTracker(4096),
		clock:  domain.RealClock{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Snapshot reads the pair's current on-chain state. Critical reads
// (liquidity, token authorities) fail the whole snapshot with *FetchError;
// non-critical fields default to zero and the snapshot still completes.
func (a *Aggregator) Snapshot(ctx context.Context, pair *domain.TokenPair) (*domain.MetricsSnapshot, error) {
	start := a.clock.Now()

	var (
		mint    *mintInfo
		liq     liquidityState
		holders []holderBalance
		buys    int
		sells   int
		market  MarketData
	)

	g, gctx := errgroup.WithContext(ctx)
	concurrency := a.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g.SetLimit(concurrency)

	// Critical: token authorities and supply.
	g.Go(func() error {
		info, err := a.fetchMint(gctx, pair.BaseMint)
		if err != nil {
			return &FetchError{Field: "mint", Err: err}
		}
		mint = info
		return nil
	})

	// Critical: pool liquidity.
	g.Go(func() error {
		state, err := a.fetchLiquidity(gctx, pair)
		if err != nil {
			return &FetchError{Field: "liquidity", Err: err}
		}
		liq = state
		return nil
	})

	// Non-critical: holder distribution.
	g.Go(func() error {
		balances, err := a.chain.GetTokenLargestAccounts(gctx, pair.BaseMint)
		if err != nil {
			a.log.Debug().Err(err).Str("pair_id", pair.PairID).Msg("largest accounts unavailable")
			return nil
		}
		for _, b := range balances {
			raw, err := strconv.ParseUint(b.Amount, 10, 64)
			if err != nil {
				continue
			}
			holders = append(holders, holderBalance{Address: b.Address, Amount: raw})
		}
		return nil
	})

	// Non-critical: buy/sell counts from a bounded sample of recent txs.
	g.Go(func() error {
		b, s, err := a.countSwaps(gctx, pair.PoolAddress)
		if err != nil {
			a.log.Debug().Err(err).Str("pair_id", pair.PairID).Msg("swap counting unavailable")
			return nil
		}
		buys, sells = b, s
		return nil
	})

	// Non-critical: off-chain enrichment.
	g.Go(func() error {
		md, err := a.market.Fetch(gctx, pair)
		if err != nil {
			a.log.Debug().Err(err).Str("pair_id", pair.PairID).Msg("market data unavailable")
			return nil
		}
		market = md
		return nil
	})

	if err := g.Wait(); err != nil {
		if a.metrics != nil {
			reason := "unknown"
			if f, ok := err.(*FetchError); ok {
				reason = f.Field
			}
			a.metrics.SnapshotsFailed.WithLabelValues(reason).Inc()
		}
		return nil, err
	}

	snap := &domain.MetricsSnapshot{
		Pair:               pair,
		CapturedAt:         start,
		LiquidityUSD:       liq.USD,
		VolumeUSD:          market.Volume24hUSD,
		BuyCount:           buys,
		SellCount:          sells,
		HolderCount:        market.HolderCount,
		MintAuthority:      mint.MintAuthority,
		FreezeAuthority:    mint.FreezeAuthority,
		SocialMentionDelta: market.SocialMentionDelta,
		LPLock: domain.LPLock{
			LockedUntil: market.LPLockedUntil,
			Burned:      liq.LPBurned,
		},
	}

	snap.TopTenShare, snap.DevShare = holderShares(holders, mint.Supply, liq.BaseVault)
	snap.LiquidityWithdrawn = a.peaks.Update(pair.PairID, liq.USD)

	if snap.HolderCount == 0 {
		// Without an enrichment source the largest-accounts read is still
		// a usable lower bound on the holder count.
		snap.HolderCount = len(holders)
	}

	if a.metrics != nil {
		a.metrics.SnapshotsBuilt.Inc()
		a.metrics.SnapshotDuration.Observe(a.clock.Now().Sub(start).Seconds())
	}
	return snap, nil
}

func (a *Aggregator) fetchMint(ctx context.Context, mint string) (*mintInfo, error) {
	acct, err := a.chain.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("mint account %s not found", mint)
	}
	return parseMintAccount(acct.Data)
}

// liquidityState is the outcome of the pool liquidity read.
type liquidityState struct {
	USD       float64
	BaseVault string // excluded from holder share computation
	LPBurned  bool
}

// fetchLiquidity reads the SOL side of the pool and converts it to USD.
// Raydium pools hold their funds in token vaults referenced from the pool
// state; bonding-curve pools hold lamports on the pool account itself.
func (a *Aggregator) fetchLiquidity(ctx context.Context, pair *domain.TokenPair) (liquidityState, error) {
	acct, err := a.chain.GetAccountInfo(ctx, pair.PoolAddress)
	if err != nil {
		return liquidityState{}, err
	}
	if acct == nil {
		return liquidityState{}, fmt.Errorf("pool account %s not found", pair.PoolAddress)
	}

	var state liquidityState

	solSide := float64(acct.Lamports) / 1e9
	if pair.Exchange == domain.ExchangeRaydium {
		pool, err := parseRaydiumPool(acct.Data)
		if err != nil {
			return liquidityState{}, err
		}
		state.BaseVault = pool.BaseVault

		vault, err := a.chain.GetAccountInfo(ctx, pool.QuoteVault)
		if err != nil {
			return liquidityState{}, err
		}
		if vault == nil {
			return liquidityState{}, fmt.Errorf("quote vault %s not found", pool.QuoteVault)
		}
		amount, err := parseTokenAccountAmount(vault.Data)
		if err != nil {
			return liquidityState{}, err
		}
		solSide = float64(amount) / 1e9

		// LP burn check: supply near zero means the LP tokens are gone.
		if supply, err := a.chain.GetTokenSupply(ctx, pool.LPMint); err == nil && supply != nil {
			state.LPBurned = supply.UIAmount < lpBurnDustThreshold
		}
	}

	// Both sides of the pool count toward liquidity.
	state.USD = 2 * solSide * a.cfg.SOLPriceUSD
	return state, nil
}

// countSwaps classifies a bounded sample of the pool's recent transactions.
func (a *Aggregator) countSwaps(ctx context.Context, pool string) (buys, sells int, err error) {
	limit := a.cfg.TxSampleLimit
	if limit <= 0 {
		limit = 50
	}

	sigs, err := a.chain.GetSignaturesForAddress(ctx, pool, &gateway.SignaturesOpts{Limit: limit})
	if err != nil {
		return 0, 0, err
	}

	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		tx, err := a.chain.GetTransaction(ctx, sig.Signature)
		if err != nil || tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
			continue
		}
		switch classifySwap(tx.Meta.LogMessages) {
		case swapBuy:
			buys++
		case swapSell:
			sells++
		}
	}
	return buys, sells, nil
}

type swapDirection int

const (
	swapNone swapDirection = iota
	swapBuy
	swapSell
)

// classifySwap determines the trade direction from transaction logs.
// pump.fun logs the instruction name; Raydium encodes it in the ray_log
// discriminator (0x09 swapBaseIn, 0x0b swapBaseOut).
func classifySwap(logs []string) swapDirection {
	for _, log := range logs {
		if strings.Contains(log, "Instruction: Buy") {
			return swapBuy
		}
		if strings.Contains(log, "Instruction: Sell") {
			return swapSell
		}
		if m := rayLogPattern.FindStringSubmatch(log); m != nil {
			data, err := base64.StdEncoding.DecodeString(m[1])
			if err != nil || len(data) == 0 {
				continue
			}
			switch data[0] {
			case 0x09:
				return swapBuy
			case 0x0b:
				return swapSell
			}
		}
	}
	return swapNone
}

// holderBalance is one holder's raw token amount.
type holderBalance struct {
	Address string
	Amount  uint64
}

// holderShares computes the top-ten and single-largest holder shares of
// supply. The pool's own token vault is excluded; when it is unknown the
// largest balance is assumed to be the vault.
func holderShares(balances []holderBalance, supply uint64, vault string) (topTen, dev float64) {
	if supply == 0 || len(balances) == 0 {
		return 0, 0
	}

	sorted := append([]holderBalance(nil), balances...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })

	var held []holderBalance
	vaultSkipped := false
	for _, b := range sorted {
		if vault != "" && b.Address == vault {
			continue
		}
		if vault == "" && !vaultSkipped {
			vaultSkipped = true
			continue
		}
		held = append(held, b)
	}
	if len(held) == 0 {
		return 0, 0
	}

	var top uint64
	for i, b := range held {
		if i >= 10 {
			break
		}
		top += b.Amount
	}

	topTen = float64(top) / float64(supply)
	dev = float64(held[0].Amount) / float64(supply)
	if topTen > 1 {
		topTen = 1
	}
	if dev > 1 {
		dev = 1
	}
	return topTen, dev
}
