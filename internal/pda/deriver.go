// Package pda derives program addresses from seed specifications, with a
// fallback recipe for interface descriptions that omit seeds.
package pda

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
)

var (
	// ErrMissingSeedInput means a seed references an account or argument the
	// caller's context does not carry.
	ErrMissingSeedInput = errors.New("missing seed input")
	// ErrNoValidBump means the full bump search found no off-curve address.
	ErrNoValidBump = errors.New("no valid bump found")
)

// SeedContext supplies the account and argument values that seed
// specifications reference by path.
type SeedContext struct {
	Accounts map[string]solana.PublicKey
	Args     map[string]interface{}
	// Counter disambiguates request-class addresses when the fallback
	// recipe is used. Zero means "now" (unix seconds).
	Counter uint64
}

// Deriver resolves role names to addresses using the program's declared
// seeds, or the fallback recipe when the role declares none.
type Deriver struct {
	reg    *idl.Registry
	logger *logrus.Logger
}

func NewDeriver(reg *idl.Registry, logger *logrus.Logger) *Deriver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Deriver{reg: reg, logger: logger}
}

// Derive computes the address and bump for a named role. It prefers the seed
// specification from the interface description; when absent it falls back to
// the label+operands recipe and logs a warning.
func (d *Deriver) Derive(programID solana.PublicKey, role string, sc SeedContext) (solana.PublicKey, uint8, error) {
	if spec := d.reg.SeedSpec(role); spec != nil {
		seeds, err := resolveSpec(role, spec, sc)
		if err != nil {
			return solana.PublicKey{}, 0, err
		}
		return find(programID, seeds)
	}

	d.logger.WithField("role", role).Warn("no seed specification declared, using fallback recipe")
	seeds, err := fallbackSeeds(role, sc)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return find(programID, seeds)
}

// DeriveWithSeeds computes the address and bump for an explicit seed list.
func DeriveWithSeeds(programID solana.PublicKey, seeds [][]byte) (solana.PublicKey, uint8, error) {
	return find(programID, seeds)
}

func find(programID solana.PublicKey, seeds [][]byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %v", ErrNoValidBump, err)
	}
	return addr, bump, nil
}

func resolveSpec(role string, spec []idl.Seed, sc SeedContext) ([][]byte, error) {
	seeds := make([][]byte, 0, len(spec))
	for _, s := range spec {
		switch s.Kind {
		case idl.SeedConst:
			seeds = append(seeds, s.Bytes)
		case idl.SeedAccount:
			pk, ok := lookupAccount(sc.Accounts, s.Path)
			if !ok {
				return nil, fmt.Errorf("%w: role %q needs account %q", ErrMissingSeedInput, role, s.Path)
			}
			seeds = append(seeds, pk.Bytes())
		case idl.SeedArg:
			val, ok := lookupArg(sc.Args, s.Path)
			if !ok {
				return nil, fmt.Errorf("%w: role %q needs argument %q", ErrMissingSeedInput, role, s.Path)
			}
			b, err := encodeArgSeed(s.Type, val)
			if err != nil {
				return nil, fmt.Errorf("role %q argument %q: %w", role, s.Path, err)
			}
			seeds = append(seeds, b)
		default:
			return nil, fmt.Errorf("role %q: unsupported seed kind %d", role, s.Kind)
		}
	}
	return seeds, nil
}

// lookupAccount tries the full dotted path, then its last segment. Seed
// paths like "position.owner" refer to a field whose value the caller knows
// under the shorter name.
func lookupAccount(accounts map[string]solana.PublicKey, path string) (solana.PublicKey, bool) {
	if pk, ok := accounts[path]; ok {
		return pk, true
	}
	if i := strings.LastIndex(path, "."); i >= 0 {
		if pk, ok := accounts[path[i+1:]]; ok {
			return pk, true
		}
	}
	for name, pk := range accounts {
		if normalize(name) == normalize(path) {
			return pk, true
		}
	}
	return solana.PublicKey{}, false
}

func lookupArg(args map[string]interface{}, path string) (interface{}, bool) {
	if v, ok := args[path]; ok {
		return v, true
	}
	for name, v := range args {
		if normalize(name) == normalize(path) {
			return v, true
		}
	}
	return nil, false
}

func encodeArgSeed(tr idl.TypeRef, val interface{}) ([]byte, error) {
	switch tr.Kind {
	case idl.KindU8:
		u, err := asUint64(val)
		if err != nil {
			return nil, err
		}
		return []byte{byte(u)}, nil
	case idl.KindU16:
		u, err := asUint64(val)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(u))
		return b, nil
	case idl.KindU32:
		u, err := asUint64(val)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(u))
		return b, nil
	case idl.KindU64:
		u, err := asUint64(val)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, u)
		return b, nil
	case idl.KindPubkey:
		switch v := val.(type) {
		case solana.PublicKey:
			return v.Bytes(), nil
		case string:
			pk, err := solana.PublicKeyFromBase58(v)
			if err != nil {
				return nil, err
			}
			return pk.Bytes(), nil
		}
		return nil, fmt.Errorf("cannot use %T as pubkey seed", val)
	case idl.KindString:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("cannot use %T as string seed", val)
		}
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unsupported seed argument type")
}

func asUint64(val interface{}) (uint64, error) {
	switch v := val.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative seed value %d", v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative seed value %d", v)
		}
		return uint64(v), nil
	}
	return 0, fmt.Errorf("cannot use %T as integer seed", val)
}

// fallbackSeeds builds the literal-label recipe: snake_case role label, then
// owner, pool, custody, collateralCustody in that order when present, plus a
// little-endian counter for request-class roles.
func fallbackSeeds(role string, sc SeedContext) ([][]byte, error) {
	seeds := [][]byte{[]byte(snake(role))}

	if len(sc.Accounts) == 0 {
		return nil, fmt.Errorf("%w: role %q fallback recipe needs accounts", ErrMissingSeedInput, role)
	}
	for _, name := range []string{"owner", "pool", "custody", "collateralCustody"} {
		if pk, ok := lookupAccount(sc.Accounts, name); ok {
			seeds = append(seeds, pk.Bytes())
		}
	}
	if len(seeds) == 1 {
		return nil, fmt.Errorf("%w: role %q fallback recipe matched no known operands", ErrMissingSeedInput, role)
	}

	if strings.Contains(normalize(role), "request") {
		counter := sc.Counter
		if counter == 0 {
			counter = uint64(time.Now().Unix())
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, counter)
		seeds = append(seeds, b)
	}
	return seeds, nil
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + 32)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
