package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/diaglog"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/engine"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/wallet"
)

func testSigner(t *testing.T) *wallet.Signer {
	t.Helper()
	s, err := wallet.NewSigner(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	return s
}

func TestTradeFlagsOwnerDefaultsToWallet(t *testing.T) {
	signer := testSigner(t)
	a := &app{signer: signer}

	in, err := a.tradeFlags("open", []string{"-size", "10", "-collateral", "1", "-price", "100"}, false)
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey(), in.Owner)
}

func TestTradeFlagsExplicitOwnerWins(t *testing.T) {
	signer := testSigner(t)
	other := solana.NewWallet().PublicKey()
	a := &app{signer: signer}

	in, err := a.tradeFlags("open", []string{"-owner", other.String(), "-price", "100"}, false)
	require.NoError(t, err)
	assert.Equal(t, other, in.Owner)
}

func TestTradeFlagsNoWalletLeavesOwnerUnset(t *testing.T) {
	a := &app{}

	in, err := a.tradeFlags("open", []string{"-price", "100"}, false)
	require.NoError(t, err)
	assert.True(t, in.Owner.IsZero())
}

func TestPrintSimulationFailureDiagnosticBeforeLogs(t *testing.T) {
	out := &engine.Outcome{
		Simulation: &rpc.SimulationResult{
			Success: false,
			Logs:    []string{"Program log: AnchorError caused by account: custody."},
		},
		Diagnostic: &diaglog.Diagnostic{
			Account:     "custody",
			ErrorCode:   "ConstraintSeeds",
			ErrorNumber: 2006,
			Message:     "A seeds constraint was violated",
		},
	}

	var buf bytes.Buffer
	printSimulationFailure(&buf, out)

	text := buf.String()
	diagAt := strings.Index(text, "diagnostic:")
	logAt := strings.Index(text, "log:")
	require.GreaterOrEqual(t, diagAt, 0)
	require.Greater(t, logAt, diagAt, "raw logs follow the parsed diagnostic")
	assert.Contains(t, text, "ConstraintSeeds")
}
