// Package storage defines the optional pair-history store: discovered pairs,
// the evaluations made against them, and the alert deliveries that followed.
package storage

import (
	"context"
	"time"

	"solana-moonscan/internal/domain"
)

// Evaluation is one scored and validated snapshot of a pair, flattened for
// storage.
type Evaluation struct {
	PairID     string
	CapturedAt time.Time

	LiquidityUSD float64
	VolumeUSD    float64
	BuyCount     int
	SellCount    int
	HolderCount  int
	TopTenShare  float64
	DevShare     float64

	Score    float64
	Raw      float64
	Rating   string
	Passed   bool
	RedFlags []string
}

// NewEvaluation flattens a snapshot plus its engine outputs into a storable
// evaluation row.
func NewEvaluation(s *domain.MetricsSnapshot, score *domain.ScoreResult, validation *domain.ValidationResult) *Evaluation {
	return &Evaluation{
		PairID:       s.Pair.PairID,
		CapturedAt:   s.CapturedAt,
		LiquidityUSD: s.LiquidityUSD,
		VolumeUSD:    s.VolumeUSD,
		BuyCount:     s.BuyCount,
		SellCount:    s.SellCount,
		HolderCount:  s.HolderCount,
		TopTenShare:  s.TopTenShare,
		DevShare:     s.DevShare,
		Score:        score.Score,
		Raw:          score.Raw,
		Rating:       string(score.Rating),
		Passed:       validation.Passed,
		RedFlags:     validation.RedFlags,
	}
}

// HistoryStore persists the scanner's output trail.
type HistoryStore interface {
	// InsertPair records a discovered pair. Returns ErrDuplicateKey when the
	// pair_id was already recorded.
	InsertPair(ctx context.Context, p *domain.TokenPair) error

	// GetPair retrieves a pair by its ID. Returns ErrNotFound if not exists.
	GetPair(ctx context.Context, pairID string) (*domain.TokenPair, error)

	// InsertEvaluation appends one evaluation row for a pair. A pair may be
	// evaluated many times.
	InsertEvaluation(ctx context.Context, e *Evaluation) error

	// GetEvaluations retrieves a pair's evaluations ordered by captured_at ASC.
	GetEvaluations(ctx context.Context, pairID string) ([]*Evaluation, error)

	// InsertAlerts appends delivery records. Returns ErrDuplicateKey when any
	// record_id already exists; the batch is all-or-nothing.
	InsertAlerts(ctx context.Context, records []domain.AlertRecord) error

	// GetAlerts retrieves a pair's delivery records ordered by completed_at ASC.
	GetAlerts(ctx context.Context, pairID string) ([]domain.AlertRecord, error)
}
