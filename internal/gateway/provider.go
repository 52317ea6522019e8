package gateway

import (
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"solana-moonscan/internal/config"
)

// provider is one prioritized RPC endpoint with its own rate limiter and
// health state. All fields are internally synchronized; callers never lock.
type provider struct {
	name    string
	url     string
	apiKey  string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newProvider(cfg config.ProviderConfig) *provider {
	// Unlimited when no ceiling is configured.
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
		burst = cfg.RequestsPerMinute
	}

	settings := gobreaker.Settings{
		Name:     cfg.Name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// RPC-level errors come from the chain, not the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	}

	return &provider{
		name:    cfg.Name,
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// healthy reports whether the provider's breaker admits requests.
func (p *provider) healthy() bool {
	return p.breaker.State() != gobreaker.StateOpen
}
