package monitor

import "solana-moonscan/internal/domain"

// Known program and mint addresses.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// OrcaWhirlpool is the Orca Whirlpool program ID.
	OrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	// WSOL is the Wrapped SOL mint address.
	WSOL = "So11111111111111111111111111111111111111112"
)

// programSpec describes how to recognize and decode a pool initialization
// transaction for one DEX program.
type programSpec struct {
	Exchange  domain.Exchange
	ProgramID string
	// InitMarkers are log substrings that mark a pool initialization.
	InitMarkers []string
	// Account indices in the transaction message for the initialization
	// instruction. A negative quote index means the quote side is SOL.
	PoolIndex  int
	BaseIndex  int
	QuoteIndex int
}

// Raydium initialize2 account layout puts the AMM pool at index 4 and the
// coin/pc mints at indices 8 and 9. Orca's initializePool carries the two
// token mints first and the whirlpool account after them. pump.fun creates
// put the new mint first and the bonding curve (the pool) at index 2.
var programRegistry = map[domain.Exchange]programSpec{
	domain.ExchangeRaydium: {
		Exchange:    domain.ExchangeRaydium,
		ProgramID:   RaydiumAMMV4,
		InitMarkers: []string{"initialize2", "InitializeInstruction2"},
		PoolIndex:   4,
		BaseIndex:   8,
		QuoteIndex:  9,
	},
	domain.ExchangeOrca: {
		Exchange:    domain.ExchangeOrca,
		ProgramID:   OrcaWhirlpool,
		InitMarkers: []string{"Instruction: InitializePool"},
		PoolIndex:   3,
		BaseIndex:   1,
		QuoteIndex:  2,
	},
	domain.ExchangePumpFun: {
		Exchange:    domain.ExchangePumpFun,
		ProgramID:   PumpFun,
		InitMarkers: []string{"Instruction: Create"},
		PoolIndex:   2,
		BaseIndex:   0,
		QuoteIndex:  -1,
	},
}

// programFor returns the spec for an exchange name from configuration.
func programFor(exchange string) (programSpec, bool) {
	spec, ok := programRegistry[domain.Exchange(exchange)]
	return spec, ok
}
