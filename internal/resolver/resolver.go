// Package resolver turns a trading intent into the complete named-account
// set a program method requires, correcting custody orientation and
// computing guardrail price bounds along the way.
package resolver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/markets"
	"github.com/aman-zulfiqar/solana-perps-engine/internal/pda"
)

// ErrIncompleteAccountSet means resolution finished with required roles
// still unbound; the error text names them.
var ErrIncompleteAccountSet = errors.New("incomplete account set")

// Resolved is the output of Resolve: everything the builder needs.
type Resolved struct {
	Method     *idl.Method
	Accounts   map[string]solana.PublicKey
	Guardrail  Guardrail
	SizeUsd    uint64
	Collateral uint64
	Counter    uint64
	// Corrections lists orientation fixes applied, for diagnostics.
	Corrections []string
}

// Account looks a bound role up by name with the same underscore and case
// folding resolution itself uses.
func (r *Resolved) Account(name string) (solana.PublicKey, bool) {
	return lookup(r.Accounts, name)
}

// Resolver fills account sets from market configuration, derivation, and
// the intent's own knowledge.
type Resolver struct {
	reg     *idl.Registry
	markets *markets.Registry
	deriver *pda.Deriver
	logger  *logrus.Logger
}

func New(reg *idl.Registry, mkts *markets.Registry, deriver *pda.Deriver, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{reg: reg, markets: mkts, deriver: deriver, logger: logger}
}

// OrientCustodies validates and, when needed, corrects the order of the
// (custody, collateralCustody) pair against the market's reference pair.
// Long positions collateralize with the quote asset against the base
// custody; shorts mirror it. The correction is idempotent: a correct pair
// passes through unchanged, a swapped pair is swapped back once, and a pair
// matching neither assignment is an error rather than a silent guess.
func OrientCustodies(side Side, base, quote, custody, collateralCustody solana.PublicKey) (solana.PublicKey, solana.PublicKey, bool, error) {
	wantCustody, wantCollateral := base, quote
	if side == SideShort {
		wantCustody, wantCollateral = quote, base
	}

	if custody.Equals(wantCustody) && collateralCustody.Equals(wantCollateral) {
		return custody, collateralCustody, false, nil
	}
	if custody.Equals(wantCollateral) && collateralCustody.Equals(wantCustody) {
		return collateralCustody, custody, true, nil
	}
	return solana.PublicKey{}, solana.PublicKey{}, false, fmt.Errorf(
		"custody pair (%s, %s) matches neither orientation for %s side", custody, collateralCustody, side)
}

// Resolve produces the full account set for the intent's method.
func (r *Resolver) Resolve(in *Intent, method *idl.Method) (*Resolved, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	market, err := r.markets.Resolve(in.Market)
	if err != nil {
		return nil, err
	}
	guardrail, err := guardrailFor(in)
	if err != nil {
		return nil, err
	}
	sizeUsd, err := toMicroUsd(in.SizeUsd)
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	collateral, err := toMicroUsd(in.CollateralUsd)
	if err != nil {
		return nil, fmt.Errorf("collateral: %w", err)
	}

	counter := in.Counter
	if counter == 0 {
		counter = uint64(time.Now().Unix())
	}

	res := &Resolved{
		Method:     method,
		Accounts:   make(map[string]solana.PublicKey, len(method.Accounts)),
		Guardrail:  guardrail,
		SizeUsd:    sizeUsd,
		Collateral: collateral,
		Counter:    counter,
	}

	// Start from the oriented custody pair: everything request-shaped
	// derives from it.
	custody, collateralCustody := market.BaseCustody, market.QuoteCustody
	if k, ok := lookup(in.Known, "custody"); ok {
		custody = k
	}
	if k, ok := lookup(in.Known, "collateralCustody"); ok {
		collateralCustody = k
	}
	custody, collateralCustody, swapped, err := OrientCustodies(in.Side, market.BaseCustody, market.QuoteCustody, custody, collateralCustody)
	if err != nil {
		return nil, err
	}
	if swapped {
		res.Corrections = append(res.Corrections, "custody orientation swapped")
		r.logger.WithFields(logrus.Fields{
			"market": market.Symbol,
			"side":   in.Side,
		}).Warn("corrected custody orientation")
	}

	res.Accounts["owner"] = in.Owner
	res.Accounts["pool"] = market.Pool
	for name, pk := range in.Known {
		// The custody pair already went through orientation; copying the
		// raw values back would undo a correction.
		switch normalize(name) {
		case "custody", "collateralcustody":
			continue
		}
		res.Accounts[name] = pk
	}
	res.Accounts["custody"] = custody
	res.Accounts["collateralCustody"] = collateralCustody

	var missing []string
	for _, role := range method.Accounts {
		if _, done := lookup(res.Accounts, role.Name); done {
			continue
		}
		pk, ok, err := r.fillRole(role, in, market, res)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role.Name, err)
		}
		if ok {
			res.Accounts[role.Name] = pk
			continue
		}
		if role.Optional {
			continue
		}
		missing = append(missing, role.Name)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteAccountSet, strings.Join(missing, ", "))
	}

	return res, nil
}

// fillRole binds one account role, trying in order: a pinned address, a
// well-known program, market configuration, a derivable address, then the
// market's extra table.
func (r *Resolver) fillRole(role idl.Role, in *Intent, market *markets.Market, res *Resolved) (solana.PublicKey, bool, error) {
	if !role.Fixed.IsZero() {
		return role.Fixed, true, nil
	}

	switch normalize(role.Name) {
	case "tokenprogram":
		return solana.TokenProgramID, true, nil
	case "associatedtokenprogram":
		return solana.SPLAssociatedTokenAccountProgramID, true, nil
	case "systemprogram":
		return solana.SystemProgramID, true, nil
	case "program":
		return r.reg.ProgramID, true, nil
	case "eventauthority":
		addr, _, err := pda.DeriveWithSeeds(r.reg.ProgramID, [][]byte{[]byte("__event_authority")})
		if err != nil {
			return solana.PublicKey{}, false, err
		}
		return addr, true, nil
	case "perpetuals":
		if r.reg.SeedSpec(role.Name) == nil {
			addr, _, err := pda.DeriveWithSeeds(r.reg.ProgramID, [][]byte{[]byte("perpetuals")})
			if err != nil {
				return solana.PublicKey{}, false, err
			}
			return addr, true, nil
		}
	case "inputmint", "fundingmint", "desiredmint", "mint":
		return market.InputMint, true, nil
	case "fundingaccount", "receivingaccount":
		ata, _, err := solana.FindAssociatedTokenAddress(in.Owner, market.InputMint)
		if err != nil {
			return solana.PublicKey{}, false, err
		}
		return ata, true, nil
	case "positionrequestata":
		req, ok := lookup(res.Accounts, "positionRequest")
		if !ok {
			return solana.PublicKey{}, false, nil
		}
		ata, _, err := solana.FindAssociatedTokenAddress(req, market.InputMint)
		if err != nil {
			return solana.PublicKey{}, false, err
		}
		return ata, true, nil
	}

	// Oracle and other named side accounts come from market configuration.
	if pk, ok := market.Extras[role.Name]; ok {
		return pk, true, nil
	}

	// Anything with a seed spec, or request/position shaped, is derivable.
	if r.reg.SeedSpec(role.Name) != nil || derivableByRecipe(role.Name) {
		addr, _, err := r.deriver.Derive(r.reg.ProgramID, role.Name, pda.SeedContext{
			Accounts: res.Accounts,
			Args:     map[string]interface{}{"counter": res.Counter},
			Counter:  res.Counter,
		})
		if err != nil {
			if errors.Is(err, pda.ErrMissingSeedInput) {
				return solana.PublicKey{}, false, nil
			}
			return solana.PublicKey{}, false, err
		}
		return addr, true, nil
	}

	return solana.PublicKey{}, false, nil
}

func derivableByRecipe(name string) bool {
	n := normalize(name)
	return strings.Contains(n, "position") || strings.Contains(n, "request")
}

func lookup(accounts map[string]solana.PublicKey, name string) (solana.PublicKey, bool) {
	if pk, ok := accounts[name]; ok {
		return pk, true
	}
	want := normalize(name)
	for k, pk := range accounts {
		if normalize(k) == want {
			return pk, true
		}
	}
	return solana.PublicKey{}, false
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}
