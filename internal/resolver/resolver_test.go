package resolver

import (
	"io"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/markets"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/pda"
)

const resolverIDL = `{
  "metadata": {"address": "PERPHjGBqRHArX4DySjwM6UJHiR3sWAatqfdBS2qQJu"},
  "instructions": [
    {
      "name": "createIncreasePositionMarketRequest",
      "args": [{"name": "counter", "type": "u64"}],
      "accounts": [
        {"name": "owner", "isMut": true, "isSigner": true},
        {"name": "fundingAccount", "isMut": true, "isSigner": false},
        {"name": "perpetuals", "isMut": false, "isSigner": false},
        {"name": "pool", "isMut": true, "isSigner": false},
        {"name": "position", "isMut": true, "isSigner": false,
         "pda": {"seeds": [
           {"kind": "const", "value": [112,111,115,105,116,105,111,110]},
           {"kind": "account", "path": "owner"},
           {"kind": "account", "path": "pool"},
           {"kind": "account", "path": "custody"},
           {"kind": "account", "path": "collateralCustody"}
         ]}},
        {"name": "positionRequest", "isMut": true, "isSigner": false,
         "pda": {"seeds": [
           {"kind": "const", "value": [112,111,115,105,116,105,111,110,95,114,101,113,117,101,115,116]},
           {"kind": "account", "path": "position"},
           {"kind": "arg", "path": "counter", "type": "u64"}
         ]}},
        {"name": "positionRequestAta", "isMut": true, "isSigner": false},
        {"name": "custody", "isMut": true, "isSigner": false},
        {"name": "collateralCustody", "isMut": true, "isSigner": false},
        {"name": "inputMint", "isMut": false, "isSigner": false},
        {"name": "referral", "isMut": false, "isSigner": false, "isOptional": true},
        {"name": "tokenProgram", "isMut": false, "isSigner": false},
        {"name": "associatedTokenProgram", "isMut": false, "isSigner": false},
        {"name": "systemProgram", "isMut": false, "isSigner": false},
        {"name": "eventAuthority", "isMut": false, "isSigner": false},
        {"name": "program", "isMut": false, "isSigner": false}
      ]
    }
  ]
}`

var (
	testOwner = solana.MustPublicKeyFromBase58("J1oeQoPeuEDmjvyMwBmCWexzCQup77kbKKxV59CnYbd")
	solBase   = solana.MustPublicKeyFromBase58("7xS2gz2bTp3fwCC7knJvUWTEU9Tycczu6VhJYKgi1wdz")
	usdcQuote = solana.MustPublicKeyFromBase58("G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa")
)

func testResolver(t *testing.T) (*Resolver, *idl.Method) {
	t.Helper()
	reg, err := idl.Parse([]byte(resolverIDL), "")
	require.NoError(t, err)
	mkts, err := markets.NewRegistry("")
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	r := New(reg, mkts, pda.NewDeriver(reg, log), log)
	method, err := reg.Method("createIncreasePositionMarketRequest")
	require.NoError(t, err)
	return r, method
}

func openIntent() *Intent {
	return &Intent{
		Market:        "SOL",
		Side:          SideLong,
		Operation:     OpIncrease,
		Owner:         testOwner,
		SizeUsd:       decimal.NewFromFloat(12.0),
		CollateralUsd: decimal.NewFromFloat(0.005),
		OraclePrice:   decimal.NewFromInt(100),
		Slippage:      decimal.NewFromFloat(0.02),
		Counter:       1700000000,
	}
}

func TestGuardrailDirectionTable(t *testing.T) {
	price := decimal.NewFromInt(100)
	slip := decimal.NewFromFloat(0.02)

	cases := []struct {
		side  Side
		op    Operation
		isMax bool
		want  string
	}{
		{SideLong, OpIncrease, true, "102.000000"},
		{SideLong, OpDecrease, false, "98.000000"},
		{SideShort, OpIncrease, false, "98.000000"},
		{SideShort, OpDecrease, true, "102.000000"},
	}
	for _, tc := range cases {
		g, err := ComputeGuardrail(tc.side, tc.op, price, slip)
		require.NoError(t, err, "%s/%s", tc.side, tc.op)
		assert.Equal(t, tc.isMax, g.IsMax, "%s/%s", tc.side, tc.op)
		assert.Equal(t, tc.want, g.String(), "%s/%s", tc.side, tc.op)
	}
}

func TestGuardrailMicroUsdScale(t *testing.T) {
	g, err := ComputeGuardrail(SideLong, OpIncrease, decimal.NewFromInt(100), decimal.NewFromFloat(0.02))
	require.NoError(t, err)
	assert.Equal(t, uint64(102_000_000), g.MicroUsd)
}

func TestGuardrailRejectsBadInputs(t *testing.T) {
	_, err := ComputeGuardrail(SideLong, OpIncrease, decimal.Zero, decimal.NewFromFloat(0.02))
	assert.Error(t, err)
	_, err = ComputeGuardrail(SideLong, OpIncrease, decimal.NewFromInt(100), decimal.NewFromInt(2))
	assert.Error(t, err)
}

func TestOrientCustodiesIdempotent(t *testing.T) {
	// correct pair passes through
	c, cc, swapped, err := OrientCustodies(SideLong, solBase, usdcQuote, solBase, usdcQuote)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, solBase, c)
	assert.Equal(t, usdcQuote, cc)

	// swapped pair is corrected
	c, cc, swapped, err = OrientCustodies(SideLong, solBase, usdcQuote, usdcQuote, solBase)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, solBase, c)
	assert.Equal(t, usdcQuote, cc)

	// applying the correction again changes nothing
	c2, cc2, swapped, err := OrientCustodies(SideLong, solBase, usdcQuote, c, cc)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, c, c2)
	assert.Equal(t, cc, cc2)
}

func TestOrientCustodiesShortMirrors(t *testing.T) {
	c, cc, swapped, err := OrientCustodies(SideShort, solBase, usdcQuote, usdcQuote, solBase)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, usdcQuote, c)
	assert.Equal(t, solBase, cc)
}

func TestOrientCustodiesRejectsForeignPair(t *testing.T) {
	foreign := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	_, _, _, err := OrientCustodies(SideLong, solBase, usdcQuote, foreign, usdcQuote)
	assert.Error(t, err)
}

func TestResolveProducesCompleteSet(t *testing.T) {
	r, method := testResolver(t)

	res, err := r.Resolve(openIntent(), method)
	require.NoError(t, err)

	for _, role := range method.Accounts {
		if role.Optional {
			continue
		}
		_, ok := res.Accounts[role.Name]
		assert.True(t, ok, "role %s unbound", role.Name)
	}

	assert.Equal(t, "102.000000", res.Guardrail.String())
	assert.Equal(t, uint64(12_000_000), res.SizeUsd)
	assert.Equal(t, uint64(5_000), res.Collateral)
	assert.Equal(t, solBase, res.Accounts["custody"])
	assert.Equal(t, usdcQuote, res.Accounts["collateralCustody"])
	assert.Equal(t, solana.TokenProgramID, res.Accounts["tokenProgram"])
}

func TestResolveCorrectsSwappedCustodies(t *testing.T) {
	r, method := testResolver(t)

	in := openIntent()
	in.Known = map[string]solana.PublicKey{
		"custody":           usdcQuote,
		"collateralCustody": solBase,
	}
	res, err := r.Resolve(in, method)
	require.NoError(t, err)
	assert.Equal(t, solBase, res.Accounts["custody"])
	assert.Equal(t, usdcQuote, res.Accounts["collateralCustody"])
	assert.NotEmpty(t, res.Corrections)
}

func TestResolveKnownCannotUndoOrientation(t *testing.T) {
	r, method := testResolver(t)

	// Underscore spelling and swapped values at once: the correction must
	// survive the known-account passthrough.
	in := openIntent()
	in.Known = map[string]solana.PublicKey{
		"custody":            usdcQuote,
		"collateral_custody": solBase,
	}
	res, err := r.Resolve(in, method)
	require.NoError(t, err)
	assert.Equal(t, solBase, res.Accounts["custody"])
	assert.Equal(t, usdcQuote, res.Accounts["collateralCustody"])
	_, dup := res.Accounts["collateral_custody"]
	assert.False(t, dup, "raw known key must not shadow the oriented pair")
}

func TestResolveKnownBindsOtherRoles(t *testing.T) {
	r, method := testResolver(t)

	referral := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	in := openIntent()
	in.Known = map[string]solana.PublicKey{"referral": referral}
	res, err := r.Resolve(in, method)
	require.NoError(t, err)
	assert.Equal(t, referral, res.Accounts["referral"])
}

func TestResolvedAccountFoldsNames(t *testing.T) {
	r, method := testResolver(t)

	res, err := r.Resolve(openIntent(), method)
	require.NoError(t, err)

	direct, ok := res.Account("positionRequest")
	require.True(t, ok)
	folded, ok := res.Account("position_request")
	require.True(t, ok)
	assert.Equal(t, direct, folded)
}

func TestResolveDeterministicRequestAddress(t *testing.T) {
	r, method := testResolver(t)

	res1, err := r.Resolve(openIntent(), method)
	require.NoError(t, err)
	res2, err := r.Resolve(openIntent(), method)
	require.NoError(t, err)
	assert.Equal(t, res1.Accounts["positionRequest"], res2.Accounts["positionRequest"])
	assert.Equal(t, res1.Accounts["positionRequestAta"], res2.Accounts["positionRequestAta"])
}

func TestResolveRejectsInvalidIntent(t *testing.T) {
	r, method := testResolver(t)

	in := openIntent()
	in.Side = "sideways"
	_, err := r.Resolve(in, method)
	assert.Error(t, err)

	in = openIntent()
	in.OraclePrice = decimal.Zero
	in.GuardrailPrice = nil
	_, err = r.Resolve(in, method)
	assert.Error(t, err)
}

func TestResolveExplicitGuardrail(t *testing.T) {
	r, method := testResolver(t)

	bound := uint64(101_500_000)
	in := openIntent()
	in.OraclePrice = decimal.Zero
	in.GuardrailPrice = &bound
	res, err := r.Resolve(in, method)
	require.NoError(t, err)
	assert.Equal(t, bound, res.Guardrail.MicroUsd)
	assert.True(t, res.Guardrail.IsMax)
}
