package domain

import "time"

// LPLock describes the lock state of a pool's LP tokens.
type LPLock struct {
	LockedUntil time.Time // zero when not locked
	Burned      bool      // LP tokens sent to the burn address
}

// LockedFor reports how long the lock extends past now. Zero when unlocked.
func (l LPLock) LockedFor(now time.Time) time.Duration {
	if l.LockedUntil.Before(now) {
		return 0
	}
	return l.LockedUntil.Sub(now)
}

// MetricsSnapshot is a point-in-time view of a pair's on-chain state.
// Immutable once built: owned by the aggregator, passed read-only to the
// score and validator engines.
//
// Invariants: all share fields are fractions in [0,1]; liquidity and volume
// are non-negative.
type MetricsSnapshot struct {
	Pair       *TokenPair
	CapturedAt time.Time

	// Liquidity, quote-denominated (USD).
	LiquidityUSD float64
	// Volume since pair creation (USD), capped at the last 24h.
	VolumeUSD float64

	// Transaction counts over the observed window.
	BuyCount  int
	SellCount int

	// Holder distribution.
	HolderCount int
	TopTenShare float64 // share of supply held by the 10 largest accounts
	DevShare    float64 // share of supply held by the deployer wallet

	// Token authority flags. True means the authority is still present.
	MintAuthority   bool
	FreezeAuthority bool

	LPLock LPLock

	// Social mention delta since discovery. Neutral default is zero.
	SocialMentionDelta int

	// Fraction of peak observed liquidity that has been withdrawn, in [0,1].
	// Zero when liquidity never dropped.
	LiquidityWithdrawn float64
}

// TxCount returns total observed transactions.
func (s *MetricsSnapshot) TxCount() int {
	return s.BuyCount + s.SellCount
}
