package resolver

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// usdScale converts USD decimals to the program's micro-USD fixed point.
const usdScale = 6

// Guardrail is a resolved price bound in micro-USD.
type Guardrail struct {
	MicroUsd uint64
	IsMax    bool
}

// String renders the bound in whole USD with six fractional digits.
func (g Guardrail) String() string {
	return decimal.New(int64(g.MicroUsd), -usdScale).StringFixed(usdScale)
}

// guardrailDirection is the bound table. Increasing exposure needs protection
// against the price moving against entry; decreasing against a bad exit.
func guardrailDirection(side Side, op Operation) (isMax bool) {
	if side == SideLong {
		return op == OpIncrease
	}
	return op == OpDecrease
}

// ComputeGuardrail derives the price bound from an oracle price and a
// slippage fraction: a maximum bound widens the price, a minimum narrows it.
// The result is truncated to micro-USD.
func ComputeGuardrail(side Side, op Operation, oraclePrice, slippage decimal.Decimal) (Guardrail, error) {
	if oraclePrice.Sign() <= 0 {
		return Guardrail{}, fmt.Errorf("oracle price must be positive, got %s", oraclePrice)
	}
	if slippage.IsNegative() || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Guardrail{}, fmt.Errorf("slippage must be in [0, 1), got %s", slippage)
	}

	isMax := guardrailDirection(side, op)
	one := decimal.NewFromInt(1)
	var bound decimal.Decimal
	if isMax {
		bound = oraclePrice.Mul(one.Add(slippage))
	} else {
		bound = oraclePrice.Mul(one.Sub(slippage))
	}

	micro := bound.Shift(usdScale).Truncate(0)
	if micro.Sign() < 0 || !micro.BigInt().IsUint64() {
		return Guardrail{}, fmt.Errorf("guardrail %s out of range", bound)
	}
	return Guardrail{MicroUsd: micro.BigInt().Uint64(), IsMax: isMax}, nil
}

// guardrailFor applies the intent's explicit bound when present, else
// computes one from the oracle inputs.
func guardrailFor(in *Intent) (Guardrail, error) {
	if in.GuardrailPrice != nil {
		return Guardrail{MicroUsd: *in.GuardrailPrice, IsMax: guardrailDirection(in.Side, in.Operation)}, nil
	}
	return ComputeGuardrail(in.Side, in.Operation, in.OraclePrice, in.Slippage)
}

// toMicroUsd converts a USD decimal to micro-USD, truncating.
func toMicroUsd(d decimal.Decimal) (uint64, error) {
	micro := d.Shift(usdScale).Truncate(0)
	if micro.Sign() < 0 || !micro.BigInt().IsUint64() {
		return 0, fmt.Errorf("usd amount %s out of range", d)
	}
	return micro.BigInt().Uint64(), nil
}
