package postgres

import (
	"context"
	"fmt"

	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/storage"
)

// HistoryStore implements storage.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *Pool
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// InsertPair records a discovered pair. Returns ErrDuplicateKey if pair_id exists.
func (s *HistoryStore) InsertPair(ctx context.Context, p *domain.TokenPair) error {
	if p == nil || p.PairID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pairs (
			pair_id, exchange, pool_address, base_mint, quote_mint, tx_signature, slot, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PairID,
		string(p.Exchange),
		p.PoolAddress,
		p.BaseMint,
		p.QuoteMint,
		p.TxSignature,
		p.Slot,
		p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pair: %w", err)
	}
	return nil
}

// GetPair retrieves a pair by its ID. Returns ErrNotFound if not exists.
func (s *HistoryStore) GetPair(ctx context.Context, pairID string) (*domain.TokenPair, error) {
	query := `
		SELECT pair_id, exchange, pool_address, base_mint, quote_mint, tx_signature, slot, created_at
		FROM pairs
		WHERE pair_id = $1
	`

	var p domain.TokenPair
	var exchange string
	err := s.pool.QueryRow(ctx, query, pairID).Scan(
		&p.PairID, &exchange, &p.PoolAddress, &p.BaseMint, &p.QuoteMint,
		&p.TxSignature, &p.Slot, &p.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pair by id: %w", err)
	}
	p.Exchange = domain.Exchange(exchange)
	return &p, nil
}

// InsertEvaluation appends one evaluation row for a pair.
func (s *HistoryStore) InsertEvaluation(ctx context.Context, e *storage.Evaluation) error {
	if e == nil || e.PairID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO evaluations (
			pair_id, captured_at, liquidity_usd, volume_usd, buy_count, sell_count,
			holder_count, top_ten_share, dev_share, score, raw_score, rating, passed, red_flags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		e.PairID,
		e.CapturedAt,
		e.LiquidityUSD,
		e.VolumeUSD,
		e.BuyCount,
		e.SellCount,
		e.HolderCount,
		e.TopTenShare,
		e.DevShare,
		e.Score,
		e.Raw,
		e.Rating,
		e.Passed,
		e.RedFlags,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// GetEvaluations retrieves a pair's evaluations ordered by captured_at ASC.
func (s *HistoryStore) GetEvaluations(ctx context.Context, pairID string) ([]*storage.Evaluation, error) {
	query := `
		SELECT pair_id, captured_at, liquidity_usd, volume_usd, buy_count, sell_count,
			holder_count, top_ten_share, dev_share, score, raw_score, rating, passed, red_flags
		FROM evaluations
		WHERE pair_id = $1
		ORDER BY captured_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, pairID)
	if err != nil {
		return nil, fmt.Errorf("get evaluations: %w", err)
	}
	defer rows.Close()

	var result []*storage.Evaluation
	for rows.Next() {
		var e storage.Evaluation
		err := rows.Scan(
			&e.PairID, &e.CapturedAt, &e.LiquidityUSD, &e.VolumeUSD,
			&e.BuyCount, &e.SellCount, &e.HolderCount, &e.TopTenShare, &e.DevShare,
			&e.Score, &e.Raw, &e.Rating, &e.Passed, &e.RedFlags,
		)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return result, nil
}

// InsertAlerts appends delivery records atomically. Returns ErrDuplicateKey
// when any record_id already exists.
func (s *HistoryStore) InsertAlerts(ctx context.Context, records []domain.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.RecordID == "" || r.PairID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin alert batch: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO alerts (
			record_id, pair_id, channel, attempts, status, payload_digest, completed_at, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, r := range records {
		_, err := tx.Exec(ctx, query,
			r.RecordID,
			r.PairID,
			r.Channel,
			r.Attempts,
			string(r.Status),
			r.PayloadDigest,
			r.CompletedAt,
			r.LastError,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit alert batch: %w", err)
	}
	return nil
}

// GetAlerts retrieves a pair's delivery records ordered by completed_at ASC.
func (s *HistoryStore) GetAlerts(ctx context.Context, pairID string) ([]domain.AlertRecord, error) {
	query := `
		SELECT record_id, pair_id, channel, attempts, status, payload_digest, completed_at, last_error
		FROM alerts
		WHERE pair_id = $1
		ORDER BY completed_at ASC, record_id ASC
	`

	rows, err := s.pool.Query(ctx, query, pairID)
	if err != nil {
		return nil, fmt.Errorf("get alerts: %w", err)
	}
	defer rows.Close()

	var result []domain.AlertRecord
	for rows.Next() {
		var r domain.AlertRecord
		var status string
		err := rows.Scan(
			&r.RecordID, &r.PairID, &r.Channel, &r.Attempts, &status,
			&r.PayloadDigest, &r.CompletedAt, &r.LastError,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		r.Status = domain.DeliveryStatus(status)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return result, nil
}
