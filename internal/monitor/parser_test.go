package monitor

import (
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-moonscan/internal/domain"
)

// keyFromSeed deterministically generates a 32-byte base58 key that is on or
// off the ed25519 curve, mirroring how program-derived addresses are found.
func keyFromSeed(t *testing.T, seed string, onCurve bool) string {
	t.Helper()
	for i := 0; i < 512; i++ {
		h := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", seed, i)))
		addr := base58.Encode(h[:])
		if isOnCurve(addr) == onCurve {
			return addr
		}
	}
	t.Fatalf("no %v-curve key found for seed %s", onCurve, seed)
	return ""
}

func raydiumInitKeys(t *testing.T, pool, base, quote string) []string {
	t.Helper()
	keys := make([]string, 10)
	for i := range keys {
		keys[i] = keyFromSeed(t, fmt.Sprintf("filler-%d", i), true)
	}
	keys[4] = pool
	keys[8] = base
	keys[9] = quote
	return keys
}

func TestParseRaydiumPoolInit(t *testing.T) {
	pool := keyFromSeed(t, "pool", false)
	base := keyFromSeed(t, "base", true)

	logs := []string{
		"Program " + RaydiumAMMV4 + " invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254 }",
		"Program " + RaydiumAMMV4 + " success",
	}
	keys := raydiumInitKeys(t, pool, base, WSOL)

	parser := NewParser(programRegistry[domain.ExchangeRaydium])
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	pair := parser.ParsePoolInit(logs, keys, "sig1", 1000, created)
	require.NotNil(t, pair)
	assert.Equal(t, domain.ExchangeRaydium, pair.Exchange)
	assert.Equal(t, pool, pair.PoolAddress)
	assert.Equal(t, base, pair.BaseMint)
	assert.Equal(t, WSOL, pair.QuoteMint)
	assert.Equal(t, "sig1", pair.TxSignature)
	assert.Equal(t, int64(1000), pair.Slot)
	assert.Equal(t, created, pair.CreatedAt)
	assert.NotEmpty(t, pair.PairID)
}

func TestParseSwapsSOLQuotedSides(t *testing.T) {
	pool := keyFromSeed(t, "pool", false)
	token := keyFromSeed(t, "token", true)

	logs := []string{
		"Program " + RaydiumAMMV4 + " invoke [1]",
		"Program log: initialize2",
	}
	// WSOL arrives on the base side.
	keys := raydiumInitKeys(t, pool, WSOL, token)

	parser := NewParser(programRegistry[domain.ExchangeRaydium])
	pair := parser.ParsePoolInit(logs, keys, "sig", 1, time.Now())
	require.NotNil(t, pair)
	assert.Equal(t, token, pair.BaseMint)
	assert.Equal(t, WSOL, pair.QuoteMint)
}

func TestParseIgnoresNonInitTransactions(t *testing.T) {
	parser := NewParser(programRegistry[domain.ExchangeRaydium])

	// Program invoked but no initialization marker: a plain swap.
	logs := []string{
		"Program " + RaydiumAMMV4 + " invoke [1]",
		"Program log: ray_log: A8f=",
	}
	keys := raydiumInitKeys(t, keyFromSeed(t, "pool", false), keyFromSeed(t, "base", true), WSOL)
	assert.Nil(t, parser.ParsePoolInit(logs, keys, "sig", 1, time.Now()))

	// Marker present but a different program.
	logs = []string{
		"Program " + PumpFun + " invoke [1]",
		"Program log: initialize2",
	}
	assert.Nil(t, parser.ParsePoolInit(logs, keys, "sig", 1, time.Now()))
}

func TestParseFallsBackToOffCurveScan(t *testing.T) {
	pool := keyFromSeed(t, "pda-pool", false)
	base := keyFromSeed(t, "base", true)

	logs := []string{
		"Program " + RaydiumAMMV4 + " invoke [1]",
		"Program log: initialize2",
	}
	// Layout variant: the indexed pool slot holds an on-curve wallet, the
	// real pool PDA sits elsewhere in the key list.
	keys := raydiumInitKeys(t, keyFromSeed(t, "wallet", true), base, WSOL)
	keys[6] = pool

	parser := NewParser(programRegistry[domain.ExchangeRaydium])
	pair := parser.ParsePoolInit(logs, keys, "sig", 1, time.Now())
	require.NotNil(t, pair)
	assert.Equal(t, pool, pair.PoolAddress)
}

func TestParsePumpFunCreate(t *testing.T) {
	mint := keyFromSeed(t, "mint", true)
	curve := keyFromSeed(t, "bonding-curve", false)

	logs := []string{
		"Program " + PumpFun + " invoke [1]",
		"Program log: Instruction: Create",
	}
	keys := []string{mint, keyFromSeed(t, "creator", true), curve, keyFromSeed(t, "vault", true)}

	parser := NewParser(programRegistry[domain.ExchangePumpFun])
	pair := parser.ParsePoolInit(logs, keys, "sig", 5, time.Now())
	require.NotNil(t, pair)
	assert.Equal(t, domain.ExchangePumpFun, pair.Exchange)
	assert.Equal(t, curve, pair.PoolAddress)
	assert.Equal(t, mint, pair.BaseMint)
	assert.Equal(t, WSOL, pair.QuoteMint)
}

func TestParseRejectsMalformedKeys(t *testing.T) {
	parser := NewParser(programRegistry[domain.ExchangeRaydium])
	logs := []string{
		"Program " + RaydiumAMMV4 + " invoke [1]",
		"Program log: initialize2",
	}

	// Base mint is not a 32-byte base58 value.
	keys := raydiumInitKeys(t, keyFromSeed(t, "pool", false), "not-a-pubkey!", WSOL)
	assert.Nil(t, parser.ParsePoolInit(logs, keys, "sig", 1, time.Now()))

	// Base and quote identical.
	keys = raydiumInitKeys(t, keyFromSeed(t, "pool", false), WSOL, WSOL)
	assert.Nil(t, parser.ParsePoolInit(logs, keys, "sig", 1, time.Now()))

	// Too few accounts for the instruction layout.
	assert.Nil(t, parser.ParsePoolInit(logs, []string{WSOL}, "sig", 1, time.Now()))
}

func TestPairIDStableAcrossSources(t *testing.T) {
	pool := keyFromSeed(t, "pool", false)
	base := keyFromSeed(t, "base", true)
	logs := []string{
		"Program " + RaydiumAMMV4 + " invoke [1]",
		"Program log: initialize2",
	}
	keys := raydiumInitKeys(t, pool, base, WSOL)

	parser := NewParser(programRegistry[domain.ExchangeRaydium])
	a := parser.ParsePoolInit(logs, keys, "sigA", 1, time.Now())
	b := parser.ParsePoolInit(logs, keys, "sigB", 2, time.Now())
	require.NotNil(t, a)
	require.NotNil(t, b)
	// Same pool observed via different transactions hashes identically.
	assert.Equal(t, a.PairID, b.PairID)
}
