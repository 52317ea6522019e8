package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"solana-moonscan/internal/config"
	"solana-moonscan/internal/domain"
)

// MarketData is the off-chain enrichment for one pair. All fields are
// non-critical: zero values are the neutral defaults.
type MarketData struct {
	HolderCount        int
	SocialMentionDelta int
	Volume24hUSD       float64
	LPLockedUntil      time.Time
}

// MarketDataSource supplies off-chain metrics (holder counts, social
// mentions, traded volume, LP lock terms) for a pair.
type MarketDataSource interface {
	Fetch(ctx context.Context, pair *domain.TokenPair) (MarketData, error)
}

// NoopMarketData returns neutral values for every pair. Used when no
// enrichment API is configured.
type NoopMarketData struct{}

func (NoopMarketData) Fetch(context.Context, *domain.TokenPair) (MarketData, error) {
	return MarketData{}, nil
}

const defaultMarketTimeout = 10 * time.Second

// HTTPMarketData reads enrichment from a Solscan-style token-meta endpoint:
// GET {base_url}/token/meta?token={mint} with the API key in the "token"
// header. Missing fields decode to their neutral zero values.
type HTTPMarketData struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPMarketData creates a source against the configured enrichment API.
func NewHTTPMarketData(cfg config.MarketDataConfig) *HTTPMarketData {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMarketTimeout
	}
	return &HTTPMarketData{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// tokenMeta is the enrichment API response for one mint.
type tokenMeta struct {
	Holder        int     `json:"holder"`
	Volume24h     float64 `json:"volume_24h"`
	Mentions24h   int     `json:"mentions_24h"`
	LPLockedUntil int64   `json:"lp_locked_until"` // unix seconds, 0 when unlocked
}

func (s *HTTPMarketData) Fetch(ctx context.Context, pair *domain.TokenPair) (MarketData, error) {
	url := fmt.Sprintf("%s/token/meta?token=%s", s.baseURL, pair.BaseMint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return MarketData{}, fmt.Errorf("create token meta request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("token", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return MarketData{}, fmt.Errorf("fetch token meta: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MarketData{}, fmt.Errorf("token meta for %s: unexpected status %d", pair.BaseMint, resp.StatusCode)
	}

	var meta tokenMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return MarketData{}, fmt.Errorf("decode token meta: %w", err)
	}

	md := MarketData{
		HolderCount:        meta.Holder,
		SocialMentionDelta: meta.Mentions24h,
		Volume24hUSD:       meta.Volume24h,
	}
	if meta.LPLockedUntil > 0 {
		md.LPLockedUntil = time.Unix(meta.LPLockedUntil, 0).UTC()
	}
	return md, nil
}
