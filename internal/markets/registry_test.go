package markets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsResolve(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	m, err := r.Resolve("sol")
	require.NoError(t, err)
	assert.Equal(t, "SOL", m.Symbol)
	assert.False(t, m.Pool.IsZero())
	assert.False(t, m.BaseCustody.IsZero())
	// SOL collateral flows in as wrapped SOL.
	assert.Equal(t, m.BaseMint, m.InputMint)

	eth, err := r.Resolve("ETH")
	require.NoError(t, err)
	// No input mint configured, so collateral defaults to the quote asset.
	assert.Equal(t, eth.QuoteMint, eth.InputMint)
}

func TestUnknownMarketNamesAvailable(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	_, err = r.Resolve("DOGE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOGE")
	assert.Contains(t, err.Error(), "SOL")
}

func TestOverrideReplacesAndAdds(t *testing.T) {
	override := `[
	  {
	    "symbol": "SOL",
	    "pool": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	    "base_custody": "7xS2gz2bTp3fwCC7knJvUWTEU9Tycczu6VhJYKgi1wdz",
	    "quote_custody": "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa",
	    "base_mint": "So11111111111111111111111111111111111111112",
	    "quote_mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	    "extras": {"oracle": "J1oeQoPeuEDmjvyMwBmCWexzCQup77kbKKxV59CnYbd"}
	  },
	  {
	    "symbol": "BONK",
	    "pool": "5BUwFW4nRbftYTDMbgxykoFWqWHPzahFSNAaaaJtVKsq",
	    "base_custody": "7xS2gz2bTp3fwCC7knJvUWTEU9Tycczu6VhJYKgi1wdz",
	    "quote_custody": "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa",
	    "base_mint": "So11111111111111111111111111111111111111112",
	    "quote_mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	  }
	]`
	path := filepath.Join(t.TempDir(), "markets.json")
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)

	sol, err := r.Resolve("SOL")
	require.NoError(t, err)
	// The override replaces the whole entry, pool included.
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", sol.Pool.String())

	oracle, err := sol.Extra("oracle")
	require.NoError(t, err)
	assert.Equal(t, "J1oeQoPeuEDmjvyMwBmCWexzCQup77kbKKxV59CnYbd", oracle.String())

	_, err = r.Resolve("BONK")
	assert.NoError(t, err)
	// Untouched defaults survive the merge.
	_, err = r.Resolve("BTC")
	assert.NoError(t, err)
}

func TestMissingExtraNamesKey(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	m, err := r.Resolve("SOL")
	require.NoError(t, err)

	_, err = m.Extra("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestPlaceholderValueRejected(t *testing.T) {
	override := `[{
	  "symbol": "XYZ",
	  "pool": "ReplaceWithRealPool",
	  "base_custody": "7xS2gz2bTp3fwCC7knJvUWTEU9Tycczu6VhJYKgi1wdz",
	  "quote_custody": "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa",
	  "base_mint": "So11111111111111111111111111111111111111112",
	  "quote_mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	}]`
	path := filepath.Join(t.TempDir(), "markets.json")
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	_, err := NewRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholder")
}

func TestRefreshSwapsSnapshot(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	before := r.Symbols()

	require.NoError(t, r.Refresh(""))
	assert.Equal(t, before, r.Symbols())
}
