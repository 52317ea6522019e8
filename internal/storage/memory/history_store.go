// Package memory provides an in-memory HistoryStore for tests and for
// running the scanner without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"

	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu          sync.RWMutex
	pairs       map[string]*domain.TokenPair // keyed by pair_id
	evaluations map[string][]*storage.Evaluation
	alerts      map[string][]domain.AlertRecord // keyed by pair_id
	recordIDs   map[string]struct{}
}

// NewHistoryStore creates an empty in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		pairs:       make(map[string]*domain.TokenPair),
		evaluations: make(map[string][]*storage.Evaluation),
		alerts:      make(map[string][]domain.AlertRecord),
		recordIDs:   make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// InsertPair records a discovered pair.
func (s *HistoryStore) InsertPair(_ context.Context, p *domain.TokenPair) error {
	if p == nil || p.PairID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pairs[p.PairID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation.
	pairCopy := *p
	s.pairs[p.PairID] = &pairCopy
	return nil
}

// GetPair retrieves a pair by its ID.
func (s *HistoryStore) GetPair(_ context.Context, pairID string) (*domain.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.pairs[pairID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	pairCopy := *p
	return &pairCopy, nil
}

// InsertEvaluation appends one evaluation row for a pair.
func (s *HistoryStore) InsertEvaluation(_ context.Context, e *storage.Evaluation) error {
	if e == nil || e.PairID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evalCopy := *e
	evalCopy.RedFlags = append([]string(nil), e.RedFlags...)
	s.evaluations[e.PairID] = append(s.evaluations[e.PairID], &evalCopy)
	return nil
}

// GetEvaluations retrieves a pair's evaluations ordered by captured_at ASC.
func (s *HistoryStore) GetEvaluations(_ context.Context, pairID string) ([]*storage.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evals := s.evaluations[pairID]
	result := make([]*storage.Evaluation, 0, len(evals))
	for _, e := range evals {
		evalCopy := *e
		result = append(result, &evalCopy)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CapturedAt.Before(result[j].CapturedAt)
	})
	return result, nil
}

// InsertAlerts appends delivery records, all-or-nothing.
func (s *HistoryStore) InsertAlerts(_ context.Context, records []domain.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.RecordID == "" || r.PairID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.recordIDs[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, r := range records {
		s.recordIDs[r.RecordID] = struct{}{}
		s.alerts[r.PairID] = append(s.alerts[r.PairID], r)
	}
	return nil
}

// GetAlerts retrieves a pair's delivery records ordered by completed_at ASC.
func (s *HistoryStore) GetAlerts(_ context.Context, pairID string) ([]domain.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]domain.AlertRecord(nil), s.alerts[pairID]...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CompletedAt.Before(result[j].CompletedAt)
	})
	return result, nil
}
