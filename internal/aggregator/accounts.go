package aggregator

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// SPL token mint account layout (82 bytes):
//
//	0..4    mint authority option (u32 LE)
//	4..36   mint authority
//	36..44  supply (u64 LE)
//	44      decimals
//	45      initialized flag
//	46..50  freeze authority option (u32 LE)
//	50..82  freeze authority
const mintAccountLen = 82

// mintInfo is the decoded state of an SPL token mint.
type mintInfo struct {
	Supply          uint64
	Decimals        uint8
	MintAuthority   bool
	FreezeAuthority bool
}

func parseMintAccount(b64 string) (*mintInfo, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode mint data: %w", err)
	}
	if len(data) < mintAccountLen {
		return nil, fmt.Errorf("mint account too short: %d bytes", len(data))
	}

	return &mintInfo{
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		MintAuthority:   binary.LittleEndian.Uint32(data[0:4]) != 0,
		FreezeAuthority: binary.LittleEndian.Uint32(data[46:50]) != 0,
	}, nil
}

// SPL token account layout: mint (32), owner (32), amount (u64 LE at 64).
const tokenAccountMinLen = 72

func parseTokenAccountAmount(b64 string) (uint64, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return 0, fmt.Errorf("decode token account data: %w", err)
	}
	if len(data) < tokenAccountMinLen {
		return 0, fmt.Errorf("token account too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[64:72]), nil
}

// Raydium AMM v4 liquidity state layout. The leading 336 bytes are numeric
// pool parameters; the pubkey block starts with the vaults and mints.
const (
	raydiumPoolDataLen      = 752
	raydiumBaseVaultOffset  = 336
	raydiumQuoteVaultOffset = 368
	raydiumLPMintOffset     = 464
)

// raydiumPool carries the accounts the aggregator needs out of the pool state.
type raydiumPool struct {
	BaseVault  string
	QuoteVault string
	LPMint     string
}

func parseRaydiumPool(b64 string) (*raydiumPool, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode pool data: %w", err)
	}
	if len(data) < raydiumPoolDataLen {
		return nil, fmt.Errorf("pool account too short: %d bytes", len(data))
	}

	return &raydiumPool{
		BaseVault:  base58.Encode(data[raydiumBaseVaultOffset : raydiumBaseVaultOffset+32]),
		QuoteVault: base58.Encode(data[raydiumQuoteVaultOffset : raydiumQuoteVaultOffset+32]),
		LPMint:     base58.Encode(data[raydiumLPMintOffset : raydiumLPMintOffset+32]),
	}, nil
}
