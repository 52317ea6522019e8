package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-moonscan/internal/domain"
)

// ComputePairID computes a deterministic pair_id using SHA256.
// Formula: SHA256(exchange|pool|base_mint|quote_mint)
// Returns hex-encoded hash (64 characters).
func ComputePairID(exchange domain.Exchange, pool, baseMint, quoteMint string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		string(exchange),
		pool,
		baseMint,
		quoteMint,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
