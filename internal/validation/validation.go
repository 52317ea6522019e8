// Package validation runs the safety checklist for a pair snapshot. Checks
// are independent pure predicates: each reads its own slice of the snapshot,
// so one bad input fails exactly one check.
package validation

import (
	"fmt"

	"solana-moonscan/internal/config"
	"solana-moonscan/internal/domain"
)

// Check names, stable across config changes. They appear in alert payloads
// and metrics labels.
const (
	CheckMintAuthority   = "mint_authority"
	CheckFreezeAuthority = "freeze_authority"
	CheckTopTenShare     = "top_ten_share"
	CheckDevShare        = "dev_share"
	CheckLiquidity       = "liquidity"
	CheckLPLock          = "lp_lock"
	CheckHoneypot        = "honeypot"
	CheckRugPull         = "rug_pull"
)

// Check is one named predicate over a snapshot. Passed=false flags the pair.
type Check struct {
	Name      string
	Predicate func(cfg config.ValidationConfig, s *domain.MetricsSnapshot) (passed bool, detail string)
}

// Registry is the checklist in evaluation order. Adding a check is a data
// change here, not a control-flow change in the engine.
var Registry = []Check{
	{CheckMintAuthority, checkMintAuthority},
	{CheckFreezeAuthority, checkFreezeAuthority},
	{CheckTopTenShare, checkTopTenShare},
	{CheckDevShare, checkDevShare},
	{CheckLiquidity, checkLiquidity},
	{CheckLPLock, checkLPLock},
	{CheckHoneypot, checkHoneypot},
	{CheckRugPull, checkRugPull},
}

// Engine evaluates the registry against configured thresholds.
type Engine struct {
	cfg    config.ValidationConfig
	checks []Check
}

// New creates an Engine using the full check registry.
func New(cfg config.ValidationConfig) *Engine {
	return &Engine{cfg: cfg, checks: Registry}
}

// Validate runs every check. The verdict passes only when all checks pass;
// every individual result is retained and failed checks become red flags.
func (e *Engine) Validate(s *domain.MetricsSnapshot) domain.ValidationResult {
	result := domain.ValidationResult{
		PairID: s.Pair.PairID,
		Passed: true,
		Checks: make([]domain.CheckResult, 0, len(e.checks)),
	}

	for _, check := range e.checks {
		passed, detail := check.Predicate(e.cfg, s)
		result.Checks = append(result.Checks, domain.CheckResult{
			Name:   check.Name,
			Passed: passed,
			Detail: detail,
		})
		if !passed {
			result.Passed = false
			result.RedFlags = append(result.RedFlags, check.Name)
		}
	}
	return result
}

func checkMintAuthority(_ config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	if s.MintAuthority {
		return false, "mint authority still enabled"
	}
	return true, "mint authority disabled"
}

func checkFreezeAuthority(_ config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	if s.FreezeAuthority {
		return false, "freeze authority still enabled"
	}
	return true, "freeze authority disabled"
}

func checkTopTenShare(cfg config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	detail := fmt.Sprintf("top-10 holders own %.1f%% (ceiling %.1f%%)",
		s.TopTenShare*100, cfg.MaxTopTenShare*100)
	return s.TopTenShare <= cfg.MaxTopTenShare, detail
}

func checkDevShare(cfg config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	detail := fmt.Sprintf("dev wallet owns %.1f%% (ceiling %.1f%%)",
		s.DevShare*100, cfg.MaxDevShare*100)
	return s.DevShare <= cfg.MaxDevShare, detail
}

func checkLiquidity(cfg config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	detail := fmt.Sprintf("liquidity $%.0f (floor $%.0f)", s.LiquidityUSD, cfg.MinLiquidityUSD)
	return s.LiquidityUSD >= cfg.MinLiquidityUSD, detail
}

// checkLPLock passes when the LP is burned or locked long enough past the
// snapshot time.
func checkLPLock(cfg config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	if s.LPLock.Burned {
		return true, "LP tokens burned"
	}
	locked := s.LPLock.LockedFor(s.CapturedAt)
	detail := fmt.Sprintf("LP locked for %s (minimum %s)", locked, cfg.MinLPLock)
	return locked >= cfg.MinLPLock, detail
}

// checkHoneypot flags pools where buys go through but no sell ever has.
func checkHoneypot(_ config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	if s.BuyCount > 0 && s.SellCount == 0 {
		return false, fmt.Sprintf("%d buys and zero sells", s.BuyCount)
	}
	return true, "sell transactions observed"
}

// checkRugPull flags pools that lost a large fraction of their peak
// liquidity.
func checkRugPull(cfg config.ValidationConfig, s *domain.MetricsSnapshot) (bool, string) {
	detail := fmt.Sprintf("%.0f%% of peak liquidity withdrawn (ceiling %.0f%%)",
		s.LiquidityWithdrawn*100, cfg.MaxLiquidityWithdrawn*100)
	return s.LiquidityWithdrawn <= cfg.MaxLiquidityWithdrawn, detail
}
