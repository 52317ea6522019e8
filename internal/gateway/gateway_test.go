package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-moonscan/internal/config"
	"solana-moonscan/internal/observability"
)

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		CallTimeout: 5 * time.Second,
		MaxInflight: 4,
	}
}

func rpcResult(t *testing.T, w http.ResponseWriter, r *http.Request, result interface{}) {
	t.Helper()
	var req rpcRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: raw}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestCallDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		rpcResult(t, w, r, int64(123456789))
	}))
	defer srv.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL, APIKey: "sekret"},
	}, testGatewayConfig())
	require.NoError(t, err)

	slot, err := g.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), slot)
}

func TestCallFailsOverToSecondProvider(t *testing.T) {
	var primaryHits atomic.Int64
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, r, int64(42))
	}))
	defer backup.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: primary.URL},
		{Name: "backup", URL: backup.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	slot, err := g.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), slot)
	// Initial attempt plus one retry before failing over.
	assert.Equal(t, int64(2), primaryHits.Load())
}

func TestCallExhaustsAllProviders(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "a", URL: down.URL},
		{Name: "b", URL: down.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	err = g.Call(context.Background(), "getSlot", nil, nil)
	require.Error(t, err)
	require.True(t, IsExhausted(err))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "getSlot", exhausted.Method)
	assert.Len(t, exhausted.Errs, 2)
	assert.Contains(t, exhausted.Errs, "a")
	assert.Contains(t, exhausted.Errs, "b")
}

func TestCallRPCErrorNotRetried(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32602, Message: "invalid params"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL},
		{Name: "backup", URL: srv.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	err = g.Call(context.Background(), "getSlot", nil, nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	// No retry and no failover for chain-side errors.
	assert.Equal(t, int64(1), hits.Load())
}

func TestCallRetriesRateLimited(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		rpcResult(t, w, r, int64(7))
	}))
	defer srv.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	slot, err := g.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), slot)
	assert.Equal(t, int64(2), hits.Load())
}

func TestCallContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only detects client disconnects (and cancels the
		// request context) once the request body has been consumed.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = g.Call(ctx, "getSlot", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || IsExhausted(err))
}

func TestNewRequiresProviders(t *testing.T) {
	_, err := New(nil, testGatewayConfig())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestGetAccountInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, r, map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   uint64(2039280),
				"owner":      "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
				"data":       []string{"AQID", "base64"},
				"executable": false,
				"rentEpoch":  uint64(361),
			},
		})
	}))
	defer srv.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	info, err := g.GetAccountInfo(context.Background(), "some-pubkey")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint64(2039280), info.Lamports)
	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", info.Owner)
	assert.Equal(t, "AQID", info.Data)
}

func TestGetAccountInfoMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, r, map[string]interface{}{"value": nil})
	}))
	defer srv.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	info, err := g.GetAccountInfo(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestGetSignaturesForAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Params, 2)
		opts, ok := req.Params[1].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(25), opts["limit"])

		raw, err := json.Marshal([]map[string]interface{}{
			{"signature": "sigA", "slot": 100, "blockTime": 1700000000},
			{"signature": "sigB", "slot": 99, "blockTime": nil},
		})
		require.NoError(t, err)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: raw}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL},
	}, testGatewayConfig())
	require.NoError(t, err)

	sigs, err := g.GetSignaturesForAddress(context.Background(), "addr", &SignaturesOpts{Limit: 25})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "sigA", sigs[0].Signature)
	assert.Equal(t, int64(100), sigs[0].Slot)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Equal(t, int64(1700000000), *sigs[0].BlockTime)
	assert.Nil(t, sigs[1].BlockTime)
}

func TestCallRecordsRequestAndFailoverMetrics(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, r, int64(42))
	}))
	defer backup.Close()

	m := observability.NewMetrics("test", prometheus.NewRegistry())
	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: primary.URL},
		{Name: "backup", URL: backup.URL},
	}, testGatewayConfig(), WithMetrics(m))
	require.NoError(t, err)

	_, err = g.GetSlot(context.Background())
	require.NoError(t, err)

	// Initial attempt plus one retry on the primary, then one successful
	// call on the backup.
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("primary", "getSlot", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("backup", "getSlot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCFailovers.WithLabelValues("primary", "backup")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RPCExhausted))
}

func TestCallExhaustionIncrementsMetric(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	m := observability.NewMetrics("test", prometheus.NewRegistry())
	g, err := New([]config.ProviderConfig{
		{Name: "only", URL: down.URL},
	}, testGatewayConfig(), WithMetrics(m))
	require.NoError(t, err)

	err = g.Call(context.Background(), "getSlot", nil, nil)
	require.True(t, IsExhausted(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCExhausted))
}

func TestCallHonorsInflightCeiling(t *testing.T) {
	var current, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		rpcResult(t, w, r, int64(1))
	}))
	defer srv.Close()

	cfg := testGatewayConfig()
	cfg.MaxInflight = 1
	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL},
	}, cfg)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.GetSlot(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), peak.Load(), "calls beyond the ceiling must queue")
}

func TestCallEnforcesProviderRateLimit(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		rpcResult(t, w, r, int64(1))
	}))
	defer srv.Close()

	// One token per minute: the first call consumes the bucket, the second
	// cannot be admitted before its deadline.
	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: srv.URL, RequestsPerMinute: 1},
	}, testGatewayConfig())
	require.NoError(t, err)

	_, err = g.GetSlot(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.GetSlot(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load(), "rate-limited call must not reach the provider")
}

func TestSkipsOpenCircuit(t *testing.T) {
	var primaryHits atomic.Int64
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, r, int64(1))
	}))
	defer backup.Close()

	cfg := testGatewayConfig()
	cfg.MaxRetries = 2
	g, err := New([]config.ProviderConfig{
		{Name: "primary", URL: primary.URL},
		{Name: "backup", URL: backup.URL},
	}, cfg)
	require.NoError(t, err)

	// Two calls: 3 attempts each pushes the primary past its failure
	// threshold and opens the breaker.
	for i := 0; i < 2; i++ {
		_, err := g.GetSlot(context.Background())
		require.NoError(t, err)
	}
	require.False(t, g.providers[0].healthy())

	hitsBefore := primaryHits.Load()
	_, err = g.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hitsBefore, primaryHits.Load(), "open circuit must be skipped")
}
