// Package scoring computes the composite moon score for a pair snapshot.
// Score is a pure function: no I/O, no clock, no shared state.
package scoring

import (
	"fmt"
	"math"
	"time"

	"solana-moonscan/internal/domain"
)

// Age multiplier boundaries. Fresh pools get boosted, established ones are
// scored at face value.
const (
	freshBoostAge  = 15 * time.Minute
	recentBoostAge = 30 * time.Minute
	timingTaperAge = 45 * time.Minute

	freshMultiplier  = 1.5
	recentMultiplier = 1.2
)

// Sub-score normalization constants.
const (
	// volumeLiquidityCeiling is the volume/liquidity ratio treated as
	// maximal churn.
	volumeLiquidityCeiling = 5.0
	// socialMentionCeiling is the mention delta scoring 100.
	socialMentionCeiling = 50.0
	// holderCountCeiling is the holder count scoring 100.
	holderCountCeiling = 500.0
	// txActivityCeiling is the transaction count granting the full
	// technical-pattern bonus.
	txActivityCeiling = 100.0

	// devSharePenaltyFloor is the dev share (percent) above which the
	// dev-behavior sub-score starts to drop.
	devSharePenaltyFloor = 5.0
	devSharePenaltyRate  = 5.0
	devSharePenaltyCap   = 50.0
	mintAuthorityPenalty = 30.0
	freezeAuthPenalty    = 20.0
)

// component is one named term of the composite formula.
type component struct {
	Name     string
	Weight   float64
	SubScore func(s *domain.MetricsSnapshot, age time.Duration) float64
}

// components is the fixed weight table. Order fixes the component order in
// every ScoreResult.
var components = []component{
	{"buy_pressure", 0.25, buyPressure},
	{"volume_liquidity_ratio", 0.20, volumeLiquidityRatio},
	{"social_momentum", 0.15, socialMomentum},
	{"holder_growth", 0.15, holderGrowth},
	{"dev_behavior", 0.10, devBehavior},
	{"technical_pattern", 0.10, technicalPattern},
	{"market_timing", 0.05, marketTiming},
}

// ValidateWeights confirms the weight table sums to 1.0. Called once at
// startup; a broken table is a programming error worth refusing to run with.
func ValidateWeights() error {
	sum := 0.0
	for _, c := range components {
		sum += c.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("score weights sum to %v, want 1.0", sum)
	}
	return nil
}

// Score computes the composite score for a snapshot at the given pair age.
// Zero-liquidity and zero-transaction snapshots are valid inputs and produce
// a valid, typically low, score.
func Score(s *domain.MetricsSnapshot, age time.Duration) domain.ScoreResult {
	result := domain.ScoreResult{
		PairID:        s.Pair.PairID,
		AgeMultiplier: ageMultiplier(age),
		Components:    make([]domain.ComponentContribution, 0, len(components)),
	}

	for _, c := range components {
		sub := clamp(c.SubScore(s, age), 0, 100)
		weighted := sub * c.Weight
		result.Raw += weighted
		result.Components = append(result.Components, domain.ComponentContribution{
			Name:     c.Name,
			SubScore: sub,
			Weight:   c.Weight,
			Weighted: weighted,
		})
	}

	result.Score = clamp(result.Raw*result.AgeMultiplier, 0, 100)
	result.Rating = domain.RatingForScore(result.Score)
	return result
}

// ageMultiplier is a step function on the pair age.
func ageMultiplier(age time.Duration) float64 {
	switch {
	case age < freshBoostAge:
		return freshMultiplier
	case age < recentBoostAge:
		return recentMultiplier
	default:
		return 1.0
	}
}

// buyPressure is the buy fraction of observed transactions. Zero activity
// means zero pressure, not neutral pressure.
func buyPressure(s *domain.MetricsSnapshot, _ time.Duration) float64 {
	total := s.BuyCount + s.SellCount
	if total == 0 {
		return 0
	}
	return float64(s.BuyCount) / float64(total) * 100
}

// volumeLiquidityRatio rewards turnover relative to pool depth. The ratio is
// normalized and clamped before weighting so one outlier metric cannot
// dominate the composite.
func volumeLiquidityRatio(s *domain.MetricsSnapshot, _ time.Duration) float64 {
	if s.LiquidityUSD <= 0 {
		return 0
	}
	ratio := s.VolumeUSD / s.LiquidityUSD
	return clamp(ratio/volumeLiquidityCeiling, 0, 1) * 100
}

func socialMomentum(s *domain.MetricsSnapshot, _ time.Duration) float64 {
	return clamp(float64(s.SocialMentionDelta)/socialMentionCeiling, 0, 1) * 100
}

func holderGrowth(s *domain.MetricsSnapshot, _ time.Duration) float64 {
	return clamp(float64(s.HolderCount)/holderCountCeiling, 0, 1) * 100
}

// devBehavior starts perfect and drops for concentrated dev holdings and
// retained authorities.
func devBehavior(s *domain.MetricsSnapshot, _ time.Duration) float64 {
	score := 100.0

	devPct := s.DevShare * 100
	if devPct > devSharePenaltyFloor {
		penalty := (devPct - devSharePenaltyFloor) * devSharePenaltyRate
		if penalty > devSharePenaltyCap {
			penalty = devSharePenaltyCap
		}
		score -= penalty
	}
	if s.MintAuthority {
		score -= mintAuthorityPenalty
	}
	if s.FreezeAuthority {
		score -= freezeAuthPenalty
	}
	return score
}

// technicalPattern is a neutral 50 plus an activity bonus.
func technicalPattern(s *domain.MetricsSnapshot, _ time.Duration) float64 {
	return 50 + clamp(float64(s.TxCount())/txActivityCeiling, 0, 1)*20
}

// marketTiming favors young pools with real liquidity behind them. The age
// bonus tapers between 30 and 45 minutes; the depth bonus needs strictly more
// than 5k in the pool.
func marketTiming(s *domain.MetricsSnapshot, age time.Duration) float64 {
	score := 50.0
	switch {
	case age < recentBoostAge:
		score += 30
	case age < timingTaperAge:
		score += 15
	}
	switch {
	case s.LiquidityUSD > 10000:
		score += 20
	case s.LiquidityUSD > 5000:
		score += 10
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
