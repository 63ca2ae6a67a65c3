// Package idl loads an Anchor-style interface description and exposes it as
// a closed, typed registry: method name -> {discriminator, argument schema,
// ordered account roles, PDA seed specs}. The document is parsed once at
// startup; lookups after that never touch JSON.
package idl

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// rawIDL mirrors the JSON document. Both the pre-0.30 shape (isMut/isSigner,
// metadata.address) and the newer shape (writable/signer, top-level address)
// are accepted.
type rawIDL struct {
	Version  string `json:"version"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Metadata struct {
		Address string `json:"address"`
	} `json:"metadata"`
	Instructions []rawInstruction `json:"instructions"`
	Accounts     []rawAccountDef  `json:"accounts"`
	Types        []rawTypeDef     `json:"types"`
	Errors       []ProgramError   `json:"errors"`
}

type rawInstruction struct {
	Name          string       `json:"name"`
	Discriminator []int        `json:"discriminator"`
	Args          []rawField   `json:"args"`
	Accounts      []rawAccount `json:"accounts"`
}

type rawAccount struct {
	Name       string   `json:"name"`
	IsMut      bool     `json:"isMut"`
	IsSigner   bool     `json:"isSigner"`
	Writable   bool     `json:"writable"`
	Signer     bool     `json:"signer"`
	IsOptional bool     `json:"isOptional"`
	Optional   bool     `json:"optional"`
	PDA        *rawPDA  `json:"pda"`
	Address    string   `json:"address"`
	Docs       []string `json:"docs"`
}

type rawPDA struct {
	Seeds []rawSeed `json:"seeds"`
}

type rawSeed struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
	Path  string          `json:"path"`
	Type  json.RawMessage `json:"type"`
}

type rawField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type rawAccountDef struct {
	Name string `json:"name"`
	Type struct {
		Kind   string     `json:"kind"`
		Fields []rawField `json:"fields"`
	} `json:"type"`
}

type rawTypeDef struct {
	Name string `json:"name"`
	Type struct {
		Kind     string     `json:"kind"`
		Fields   []rawField `json:"fields"`
		Variants []struct {
			Name string `json:"name"`
		} `json:"variants"`
	} `json:"type"`
}

// ProgramError is a program-defined error code from the interface description.
type ProgramError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// TypeKind enumerates the argument encodings the builder supports.
type TypeKind int

const (
	KindU8 TypeKind = iota
	KindU16
	KindU32
	KindU64
	KindU128
	KindI32
	KindI64
	KindBool
	KindPubkey
	KindString
	KindOption
	KindDefined
	KindEnum
)

// TypeRef is a resolved argument type. Option wraps Inner; Defined points at
// a struct or enum in the registry's type index.
type TypeRef struct {
	Kind    TypeKind
	Inner   *TypeRef
	Defined string
}

// Field is a named, typed argument or struct member.
type Field struct {
	Name string
	Type TypeRef
}

// SeedKind enumerates PDA seed descriptor sources.
type SeedKind int

const (
	SeedConst SeedKind = iota
	SeedAccount
	SeedArg
)

// Seed is one descriptor in a PDA seed specification. Const seeds carry the
// literal bytes; account seeds name a role that must already be resolved;
// arg seeds name an instruction argument and its fixed-width encoding.
type Seed struct {
	Kind  SeedKind
	Bytes []byte
	Path  string
	Type  TypeRef
}

// Role is an ordered account slot of a method: on-chain programs bind
// accounts positionally, so order and flags are preserved exactly.
type Role struct {
	Name     string
	Writable bool
	Signer   bool
	Optional bool
	Seeds    []Seed
	Fixed    solana.PublicKey // non-zero when the description pins an address
}

// Method is one dispatchable instruction of the program.
type Method struct {
	Name          string
	Discriminator [8]byte
	Args          []Field
	Accounts      []Role
}

// StructDef is a named struct from the description's type section.
type StructDef struct {
	Name   string
	Fields []Field
}

// EnumDef is a named unit-variant enum (e.g. Side{Long,Short}).
type EnumDef struct {
	Name     string
	Variants []string
}

// AccountSchema is a decodable account layout with its 8-byte tag.
type AccountSchema struct {
	Name          string
	Discriminator [8]byte
	Fields        []Field
}

// Registry is the immutable parsed form of the interface description.
type Registry struct {
	ProgramID solana.PublicKey

	methods  map[string]*Method
	structs  map[string]*StructDef
	enums    map[string]*EnumDef
	accounts map[string]*AccountSchema
	errors   map[int]ProgramError
}

// Parse builds a Registry from the raw JSON document. A description that
// cannot be parsed, or that carries no program address and no override, is a
// fatal configuration error.
func Parse(data []byte, programIDOverride string) (*Registry, error) {
	var raw rawIDL
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse interface description: %w", err)
	}

	addr := strings.TrimSpace(raw.Metadata.Address)
	if addr == "" {
		addr = strings.TrimSpace(raw.Address)
	}
	if programIDOverride != "" {
		addr = strings.TrimSpace(programIDOverride)
	}
	if addr == "" {
		return nil, fmt.Errorf("interface description missing program address and no override configured")
	}
	programID, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", addr, err)
	}

	r := &Registry{
		ProgramID: programID,
		methods:   make(map[string]*Method, len(raw.Instructions)),
		structs:   make(map[string]*StructDef),
		enums:     make(map[string]*EnumDef),
		accounts:  make(map[string]*AccountSchema, len(raw.Accounts)),
		errors:    make(map[int]ProgramError, len(raw.Errors)),
	}

	for _, t := range raw.Types {
		switch t.Type.Kind {
		case "struct":
			def := &StructDef{Name: t.Name}
			for _, f := range t.Type.Fields {
				tr, err := parseTypeRef(f.Type)
				if err != nil {
					return nil, fmt.Errorf("type %s field %s: %w", t.Name, f.Name, err)
				}
				def.Fields = append(def.Fields, Field{Name: f.Name, Type: tr})
			}
			r.structs[t.Name] = def
		case "enum":
			def := &EnumDef{Name: t.Name}
			for _, v := range t.Type.Variants {
				def.Variants = append(def.Variants, v.Name)
			}
			r.enums[t.Name] = def
		}
	}

	for _, ix := range raw.Instructions {
		m := &Method{Name: ix.Name}
		if len(ix.Discriminator) == 8 {
			for i, v := range ix.Discriminator {
				m.Discriminator[i] = byte(v)
			}
		} else {
			m.Discriminator = MethodDiscriminator(ix.Name)
		}
		for _, a := range ix.Args {
			tr, err := parseTypeRef(a.Type)
			if err != nil {
				return nil, fmt.Errorf("method %s arg %s: %w", ix.Name, a.Name, err)
			}
			m.Args = append(m.Args, Field{Name: a.Name, Type: tr})
		}
		for _, acc := range ix.Accounts {
			role := Role{
				Name:     acc.Name,
				Writable: acc.IsMut || acc.Writable,
				Signer:   acc.IsSigner || acc.Signer,
				Optional: acc.IsOptional || acc.Optional,
			}
			if acc.Address != "" {
				pk, err := solana.PublicKeyFromBase58(acc.Address)
				if err != nil {
					return nil, fmt.Errorf("method %s account %s: bad pinned address: %w", ix.Name, acc.Name, err)
				}
				role.Fixed = pk
			}
			if acc.PDA != nil {
				seeds, err := parseSeeds(acc.PDA.Seeds)
				if err != nil {
					return nil, fmt.Errorf("method %s account %s: %w", ix.Name, acc.Name, err)
				}
				role.Seeds = seeds
			}
			m.Accounts = append(m.Accounts, role)
		}
		r.methods[normalize(ix.Name)] = m
	}

	for _, a := range raw.Accounts {
		schema := &AccountSchema{Name: a.Name, Discriminator: AccountDiscriminator(a.Name)}
		for _, f := range a.Type.Fields {
			tr, err := parseTypeRef(f.Type)
			if err != nil {
				return nil, fmt.Errorf("account %s field %s: %w", a.Name, f.Name, err)
			}
			schema.Fields = append(schema.Fields, Field{Name: f.Name, Type: tr})
		}
		r.accounts[normalize(a.Name)] = schema
	}

	for _, e := range raw.Errors {
		r.errors[e.Code] = e
	}

	return r, nil
}

func parseTypeRef(raw json.RawMessage) (TypeRef, error) {
	if len(raw) == 0 {
		return TypeRef{}, fmt.Errorf("empty type")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "u8":
			return TypeRef{Kind: KindU8}, nil
		case "u16":
			return TypeRef{Kind: KindU16}, nil
		case "u32":
			return TypeRef{Kind: KindU32}, nil
		case "u64":
			return TypeRef{Kind: KindU64}, nil
		case "u128":
			return TypeRef{Kind: KindU128}, nil
		case "i32":
			return TypeRef{Kind: KindI32}, nil
		case "i64":
			return TypeRef{Kind: KindI64}, nil
		case "bool":
			return TypeRef{Kind: KindBool}, nil
		case "publicKey", "pubkey":
			return TypeRef{Kind: KindPubkey}, nil
		case "string":
			return TypeRef{Kind: KindString}, nil
		default:
			return TypeRef{}, fmt.Errorf("unsupported scalar type %q", s)
		}
	}

	var obj struct {
		Option  json.RawMessage `json:"option"`
		Defined json.RawMessage `json:"defined"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return TypeRef{}, fmt.Errorf("unsupported type %s", string(raw))
	}
	if len(obj.Option) > 0 {
		inner, err := parseTypeRef(obj.Option)
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindOption, Inner: &inner}, nil
	}
	if len(obj.Defined) > 0 {
		// "defined" is either a bare name or {"name": "..."}.
		var name string
		if err := json.Unmarshal(obj.Defined, &name); err != nil {
			var wrapped struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(obj.Defined, &wrapped); err != nil || wrapped.Name == "" {
				return TypeRef{}, fmt.Errorf("unsupported defined type %s", string(obj.Defined))
			}
			name = wrapped.Name
		}
		return TypeRef{Kind: KindDefined, Defined: name}, nil
	}
	return TypeRef{}, fmt.Errorf("unsupported type %s", string(raw))
}

func parseSeeds(raws []rawSeed) ([]Seed, error) {
	seeds := make([]Seed, 0, len(raws))
	for _, s := range raws {
		switch s.Kind {
		case "const", "bytes":
			b, err := parseConstSeed(s.Value)
			if err != nil {
				return nil, err
			}
			seeds = append(seeds, Seed{Kind: SeedConst, Bytes: b})
		case "account":
			if s.Path == "" {
				return nil, fmt.Errorf("account seed missing path")
			}
			seeds = append(seeds, Seed{Kind: SeedAccount, Path: s.Path})
		case "arg":
			if s.Path == "" {
				return nil, fmt.Errorf("arg seed missing path")
			}
			tr := TypeRef{Kind: KindU64}
			if len(s.Type) > 0 {
				parsed, err := parseTypeRef(s.Type)
				if err != nil {
					return nil, fmt.Errorf("arg seed %s: %w", s.Path, err)
				}
				tr = parsed
			}
			seeds = append(seeds, Seed{Kind: SeedArg, Path: s.Path, Type: tr})
		default:
			return nil, fmt.Errorf("unsupported seed kind %q", s.Kind)
		}
	}
	return seeds, nil
}

// parseConstSeed accepts both encodings seen in the wild: a JSON byte array
// and a literal string.
func parseConstSeed(raw json.RawMessage) ([]byte, error) {
	var nums []int
	if err := json.Unmarshal(raw, &nums); err == nil {
		out := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("const seed byte %d out of range", n)
			}
			out[i] = byte(n)
		}
		return out, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unsupported const seed value %s", string(raw))
}

// MethodDiscriminator is the 8-byte sighash of "global:<snake_case_name>".
func MethodDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + camelToSnake(name)))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// AccountDiscriminator is the 8-byte prefix of sha256("account:<Name>").
func AccountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}
