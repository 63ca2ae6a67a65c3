// Package decoder turns raw account bytes into typed records. The exact path
// checks the 8-byte account tag and Borsh-decodes against a known layout; the
// probe path in probe.go guesses fields for layouts nobody has published.
package decoder

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
)

// Side mirrors the program's position direction enum.
type Side uint8

const (
	SideNone Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "none"
	}
}

// Pool is the program's liquidity pool account.
type Pool struct {
	Name        string
	Custodies   []solana.PublicKey
	AumUsd      bin.Uint128
	LimitPrice  uint64
	InceptionTs int64
	LpTokenBump uint8
}

// Custody is a per-asset reserve account.
type Custody struct {
	Pool          solana.PublicKey
	Mint          solana.PublicKey
	TokenAccount  solana.PublicKey
	Decimals      uint8
	IsStable      bool
	Owned         uint64
	Locked        uint64
	GuaranteedUsd uint64
}

// Position is an open perpetual position.
type Position struct {
	Owner                      solana.PublicKey
	Pool                       solana.PublicKey
	Custody                    solana.PublicKey
	CollateralCustody          solana.PublicKey
	OpenTime                   int64
	UpdateTime                 int64
	Side                       Side
	Price                      uint64
	SizeUsd                    uint64
	CollateralUsd              uint64
	RealisedPnlUsd             int64
	CumulativeInterestSnapshot bin.Uint128
	LockedAmount               uint64
	Bump                       uint8
}

// PositionRequest is a pending keeper-executed order.
type PositionRequest struct {
	Owner             solana.PublicKey
	Pool              solana.PublicKey
	Custody           solana.PublicKey
	Position          solana.PublicKey
	Mint              solana.PublicKey
	OpenTime          int64
	UpdateTime        int64
	SizeUsdDelta      uint64
	CollateralDelta   uint64
	RequestChange     uint8
	RequestType       uint8
	Side              Side
	PriceSlippage     *uint64 `bin:"optional"`
	JupiterMinimumOut *uint64 `bin:"optional"`
	Executed          bool
	Counter           uint64
	Bump              uint8
}

// Record is a decode result tagged with the schema that matched.
type Record struct {
	Schema string
	Value  interface{}
}

// Catalog maps schema names to layouts and their 8-byte tags.
type Catalog struct {
	entries map[string]entry
}

type entry struct {
	discriminator [8]byte
	newValue      func() interface{}
}

// NewCatalog returns the catalog of known account layouts.
func NewCatalog() *Catalog {
	c := &Catalog{entries: make(map[string]entry)}
	c.register("Pool", func() interface{} { return new(Pool) })
	c.register("Custody", func() interface{} { return new(Custody) })
	c.register("Position", func() interface{} { return new(Position) })
	c.register("PositionRequest", func() interface{} { return new(PositionRequest) })
	return c
}

func (c *Catalog) register(name string, newValue func() interface{}) {
	c.entries[name] = entry{
		discriminator: idl.AccountDiscriminator(name),
		newValue:      newValue,
	}
}

// Names returns the registered schema names.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	return out
}

// Decode tries each candidate schema in order and returns the first whose
// tag and layout both match. No match is (nil, nil): an unrecognized buffer
// is an answer, not a failure. An unknown candidate name is an error.
func (c *Catalog) Decode(candidates []string, raw []byte) (*Record, error) {
	if len(raw) < 8 {
		return nil, nil
	}
	for _, name := range candidates {
		e, ok := c.entries[name]
		if !ok {
			return nil, fmt.Errorf("unknown schema %q", name)
		}
		if !bytes.Equal(raw[:8], e.discriminator[:]) {
			continue
		}
		value := e.newValue()
		if err := bin.NewBorshDecoder(raw[8:]).Decode(value); err != nil {
			continue
		}
		return &Record{Schema: name, Value: value}, nil
	}
	return nil, nil
}

// DecodeAny tries every registered schema.
func (c *Catalog) DecodeAny(raw []byte) (*Record, error) {
	return c.Decode(c.Names(), raw)
}
