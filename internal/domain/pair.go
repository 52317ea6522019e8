// Package domain contains the core data types shared across pipeline stages.
package domain

import "time"

// Exchange identifies the DEX a pair was created on.
type Exchange string

const (
	ExchangeRaydium Exchange = "raydium"
	ExchangeOrca    Exchange = "orca"
	ExchangePumpFun Exchange = "pumpfun"
)

// TokenPair represents a newly created trading pair on a DEX.
// Immutable once discovered: produced by the stream monitor, read by all
// downstream stages, never mutated.
type TokenPair struct {
	PairID      string    // deterministic hash, see idhash.ComputePairID
	Exchange    Exchange  // DEX the pool was created on
	PoolAddress string    // pool/pair account address
	BaseMint    string    // base token mint address
	QuoteMint   string    // quote token mint address
	TxSignature string    // pool creation transaction signature
	Slot        int64     // Solana slot of the creation transaction
	CreatedAt   time.Time // block time of the creation transaction
}

// Age returns the pair age relative to now.
func (p *TokenPair) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}
