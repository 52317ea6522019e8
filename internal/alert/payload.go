package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"solana-moonscan/internal/domain"
)

// Payload is the alert body shared by all channels. Field order is fixed by
// the struct, so serialization is canonical and signable.
type Payload struct {
	PairID       string    `json:"pair_id"`
	Exchange     string    `json:"exchange"`
	PoolAddress  string    `json:"pool_address"`
	BaseMint     string    `json:"base_mint"`
	QuoteMint    string    `json:"quote_mint"`
	DiscoveredAt time.Time `json:"discovered_at"`

	Score         float64                        `json:"score"`
	Raw           float64                        `json:"raw_score"`
	AgeMultiplier float64                        `json:"age_multiplier"`
	Rating        string                         `json:"rating"`
	Components    []domain.ComponentContribution `json:"components"`

	ValidationPassed bool     `json:"validation_passed"`
	ChecksPassed     int      `json:"checks_passed"`
	ChecksTotal      int      `json:"checks_total"`
	RedFlags         []string `json:"red_flags,omitempty"`

	SentAt time.Time `json:"sent_at"`
}

func buildPayload(pair *domain.TokenPair, score *domain.ScoreResult, validation *domain.ValidationResult, now time.Time) *Payload {
	return &Payload{
		PairID:           pair.PairID,
		Exchange:         string(pair.Exchange),
		PoolAddress:      pair.PoolAddress,
		BaseMint:         pair.BaseMint,
		QuoteMint:        pair.QuoteMint,
		DiscoveredAt:     pair.CreatedAt,
		Score:            score.Score,
		Raw:              score.Raw,
		AgeMultiplier:    score.AgeMultiplier,
		Rating:           string(score.Rating),
		Components:       score.Components,
		ValidationPassed: validation.Passed,
		ChecksPassed:     validation.PassedCount(),
		ChecksTotal:      len(validation.Checks),
		RedFlags:         validation.RedFlags,
		SentAt:           now,
	}
}

// Canonical returns the stable JSON serialization used for signing and
// digests.
func (p *Payload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// summaryText renders the human-readable message used by chat channels.
func (p *Payload) summaryText() string {
	verdict := "PASSED"
	if !p.ValidationPassed {
		verdict = "FAILED"
	}
	return fmt.Sprintf(
		"New pair on %s\nScore: %.1f (%s)\nValidation: %s (%d/%d)\nPool: %s\nMint: %s",
		p.Exchange, p.Score, p.Rating, verdict, p.ChecksPassed, p.ChecksTotal,
		p.PoolAddress, p.BaseMint)
}
