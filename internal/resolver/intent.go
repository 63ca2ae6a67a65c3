package resolver

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Side is the position direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Operation is the exposure change being requested.
type Operation string

const (
	OpIncrease Operation = "increase"
	OpDecrease Operation = "decrease"
)

// Intent is a caller's request before account resolution. Amounts are plain
// decimals; resolution converts to the program's fixed-point units.
type Intent struct {
	Market    string
	Side      Side
	Operation Operation
	Owner     solana.PublicKey

	SizeUsd       decimal.Decimal
	CollateralUsd decimal.Decimal

	// Either both OraclePrice and Slippage, or an explicit GuardrailPrice
	// in micro-USD.
	OraclePrice    decimal.Decimal
	Slippage       decimal.Decimal
	GuardrailPrice *uint64

	// Counter disambiguates the request address; zero means "now".
	Counter uint64

	// Known pre-resolved accounts, keyed by role name. Resolution fills the
	// rest; anything here wins.
	Known map[string]solana.PublicKey
}

// Validate rejects intents the resolver could never complete.
func (in *Intent) Validate() error {
	if in.Market == "" {
		return fmt.Errorf("intent missing market")
	}
	if in.Side != SideLong && in.Side != SideShort {
		return fmt.Errorf("intent side must be long or short, got %q", in.Side)
	}
	if in.Operation != OpIncrease && in.Operation != OpDecrease {
		return fmt.Errorf("intent operation must be increase or decrease, got %q", in.Operation)
	}
	if in.Owner.IsZero() {
		return fmt.Errorf("intent missing owner")
	}
	if in.GuardrailPrice == nil && (in.OraclePrice.IsZero() || in.Slippage.IsNegative()) {
		return fmt.Errorf("intent needs either an explicit guardrail price or an oracle price with slippage")
	}
	return nil
}
