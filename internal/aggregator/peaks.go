package aggregator

import "sync"

// peakTracker remembers the highest liquidity observed per pair, bounded so
// long-running scans do not grow without limit.
type peakTracker struct {
	mu    sync.Mutex
	peaks map[string]float64
	order []string
	head  int
	cap   int
}

func newPeakTracker(capacity int) *peakTracker {
	if capacity <= 0 {
		capacity = 4096
	}
	return &peakTracker{
		peaks: make(map[string]float64, capacity),
		order: make([]string, capacity),
		cap:   capacity,
	}
}

// Update records the current liquidity and returns the withdrawn fraction
// relative to the peak, in [0,1].
func (t *peakTracker) Update(pairID string, liquidity float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	peak, ok := t.peaks[pairID]
	if !ok {
		if evicted := t.order[t.head]; evicted != "" {
			delete(t.peaks, evicted)
		}
		t.order[t.head] = pairID
		t.head = (t.head + 1) % t.cap
		t.peaks[pairID] = liquidity
		return 0
	}

	if liquidity >= peak {
		t.peaks[pairID] = liquidity
		return 0
	}
	if peak <= 0 {
		return 0
	}
	return (peak - liquidity) / peak
}
