// Package gateway unifies prioritized RPC providers behind a single call
// interface. It owns retry, rate limiting, provider failover, and the global
// in-flight ceiling.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"

	"solana-moonscan/internal/config"
	"solana-moonscan/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Caller is the single method-call interface the gateway exposes.
type Caller interface {
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error
}

// Gateway is a prioritized multi-provider JSON-RPC 2.0 client.
type Gateway struct {
	providers   []*provider
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	callTimeout time.Duration
	inflight    *semaphore.Weighted
	requestID   atomic.Uint64

	metrics *observability.Metrics
	log     zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) { g.client = client }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a Gateway over the configured provider list, in priority order.
func New(providers []config.ProviderConfig, cfg config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: gateway requires at least one provider", config.ErrInvalidConfig)
	}

	g := &Gateway{
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		callTimeout: DefaultTimeout,
		log:         zerolog.Nop(),
	}

	if cfg.MaxRetries > 0 {
		g.maxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		g.retryDelay = cfg.RetryDelay
	}
	if cfg.MaxDelay > 0 {
		g.maxDelay = cfg.MaxDelay
	}
	if cfg.CallTimeout > 0 {
		g.callTimeout = cfg.CallTimeout
		g.client.Timeout = cfg.CallTimeout
	}
	inflight := int64(cfg.MaxInflight)
	if inflight <= 0 {
		inflight = 10
	}
	g.inflight = semaphore.NewWeighted(inflight)

	for _, pc := range providers {
		g.providers = append(g.providers, newProvider(pc))
	}

	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Call performs a JSON-RPC call against the provider chain. Each provider is
// retried on transient failure with exponential backoff and jitter; on
// exhausting retries the call fails over to the next provider in priority
// order. When every provider has failed the call returns *ExhaustedError.
//
// Calls beyond the configured in-flight ceiling queue on the semaphore.
func (g *Gateway) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if err := g.inflight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.inflight.Release(1)

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	reqID := g.requestID.Add(1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	perProvider := make(map[string]error, len(g.providers))
	var last *provider

	for _, p := range g.providers {
		if !p.healthy() {
			perProvider[p.name] = fmt.Errorf("circuit open")
			continue
		}
		if last != nil && g.metrics != nil {
			g.metrics.RPCFailovers.WithLabelValues(last.name, p.name).Inc()
		}
		last = p

		err := g.callProvider(ctx, p, method, body, result)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			// RPC-level errors and cancellation are not provider faults.
			return err
		}
		perProvider[p.name] = err
		g.log.Warn().Str("provider", p.name).Str("method", method).Err(err).
			Msg("provider exhausted retries, failing over")
	}

	if g.metrics != nil {
		g.metrics.RPCExhausted.Inc()
	}
	return &ExhaustedError{Method: method, Errs: perProvider}
}

// callProvider runs the retry loop for one provider. It returns nil on
// success, a *TransientError when the provider should be failed over, or a
// terminal error (RPC error, context cancellation) otherwise.
func (g *Gateway) callProvider(ctx context.Context, p *provider, method string, body []byte, result interface{}) error {
	delay := g.retryDelay
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter(delay)):
			}
			delay = time.Duration(float64(delay) * g.backoffMult)
			if delay > g.maxDelay {
				delay = g.maxDelay
			}
		}

		// Token bucket wait is bounded by the per-call timeout via ctx.
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, g.doRequest(ctx, p, method, body, result)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Provider health tripped mid-call; fail over immediately.
			return &TransientError{Err: err}
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
	}

	return &TransientError{Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// doRequest performs one HTTP round trip and decodes the JSON-RPC envelope.
func (g *Gateway) doRequest(ctx context.Context, p *provider, method string, body []byte, result interface{}) error {
	start := time.Now()
	status := "success"
	defer func() {
		if g.metrics != nil {
			g.metrics.RPCRequests.WithLabelValues(p.name, method, status).Inc()
			g.metrics.RPCCallLatency.WithLabelValues(p.name, method).Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		status = "error"
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		status = "error"
		return &TransientError{Err: fmt.Errorf("http request: %w", err)}
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		status = "error"
		return &TransientError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		status = "rate_limited"
		return &TransientError{Err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		status = "error"
		return &TransientError{Err: fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		status = "error"
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		status = "error"
		return &TransientError{Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	if rpcResp.Error != nil {
		// RPC errors are not retried.
		status = "rpc_error"
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			status = "error"
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// jitter spreads a backoff delay over [d/2, d) to avoid retry alignment
// across concurrent calls.
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
