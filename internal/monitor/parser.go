package monitor

import (
	"strings"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-moonscan/internal/domain"
	"solana-moonscan/internal/idhash"
)

// Parser extracts pool-initialization events from transaction logs and
// account keys for one DEX program.
type Parser struct {
	spec programSpec
}

// NewParser creates a parser for the given program spec.
func NewParser(spec programSpec) *Parser {
	return &Parser{spec: spec}
}

// ParsePoolInit inspects a transaction and returns the newly created pair,
// or nil when the transaction is not a pool initialization for this program.
func (p *Parser) ParsePoolInit(logs []string, accountKeys []string, sig string, slot int64, blockTime time.Time) *domain.TokenPair {
	if !p.isPoolInit(logs) {
		return nil
	}

	pool := p.accountAt(accountKeys, p.spec.PoolIndex)
	base := p.accountAt(accountKeys, p.spec.BaseIndex)

	quote := WSOL
	if p.spec.QuoteIndex >= 0 {
		quote = p.accountAt(accountKeys, p.spec.QuoteIndex)
	}

	// Pool accounts are program-derived addresses and therefore off the
	// ed25519 curve. When the indexed account fails that test (instruction
	// layout variants shuffle accounts), fall back to scanning for the
	// first off-curve non-program key.
	if pool == "" || isOnCurve(pool) {
		pool = p.findPoolCandidate(accountKeys)
	}
	if pool == "" || base == "" || quote == "" {
		return nil
	}
	if !isValidPubkey(base) || !isValidPubkey(quote) || base == quote {
		return nil
	}

	// SOL-quoted pools sometimes arrive with the sides swapped.
	if base == WSOL && quote != WSOL {
		base, quote = quote, base
	}

	return &domain.TokenPair{
		PairID:      idhash.ComputePairID(p.spec.Exchange, pool, base, quote),
		Exchange:    p.spec.Exchange,
		PoolAddress: pool,
		BaseMint:    base,
		QuoteMint:   quote,
		TxSignature: sig,
		Slot:        slot,
		CreatedAt:   blockTime,
	}
}

// isPoolInit reports whether the logs mention this program and one of its
// initialization markers.
func (p *Parser) isPoolInit(logs []string) bool {
	invoked := false
	marked := false
	for _, log := range logs {
		if !invoked && strings.Contains(log, p.spec.ProgramID) {
			invoked = true
		}
		if !marked {
			for _, marker := range p.spec.InitMarkers {
				if strings.Contains(log, marker) {
					marked = true
					break
				}
			}
		}
		if invoked && marked {
			return true
		}
	}
	return false
}

func (p *Parser) accountAt(keys []string, idx int) string {
	if idx < 0 || idx >= len(keys) {
		return ""
	}
	return keys[idx]
}

// findPoolCandidate returns the first off-curve account key that is not a
// known program.
func (p *Parser) findPoolCandidate(keys []string) string {
	for _, key := range keys {
		if key == p.spec.ProgramID || key == WSOL {
			continue
		}
		if !isValidPubkey(key) {
			continue
		}
		if !isOnCurve(key) {
			return key
		}
	}
	return ""
}

// isValidPubkey reports whether s decodes to a 32-byte base58 value.
func isValidPubkey(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// isOnCurve reports whether the address is a valid ed25519 curve point.
// Program-derived addresses are constructed to fail this test.
func isOnCurve(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
