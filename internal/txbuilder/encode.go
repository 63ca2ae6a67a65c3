package txbuilder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/idl"
)

// encodeArgs serializes the method's arguments in declared order, Borsh
// layout, after the 8-byte discriminator.
func (b *Builder) encodeArgs(method *idl.Method, args map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(method.Discriminator[:])
	enc := bin.NewBorshEncoder(&buf)

	for _, field := range method.Args {
		val, ok := lookupArg(args, field.Name)
		if !ok {
			return nil, fmt.Errorf("method %s: missing argument %q", method.Name, field.Name)
		}
		if err := b.encodeValue(enc, field.Type, val); err != nil {
			return nil, fmt.Errorf("method %s argument %q: %w", method.Name, field.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func (b *Builder) encodeValue(enc *bin.Encoder, tr idl.TypeRef, val interface{}) error {
	switch tr.Kind {
	case idl.KindU8:
		u, err := asUint(val, 8)
		if err != nil {
			return err
		}
		return enc.WriteUint8(uint8(u))
	case idl.KindU16:
		u, err := asUint(val, 16)
		if err != nil {
			return err
		}
		return enc.WriteUint16(uint16(u), binary.LittleEndian)
	case idl.KindU32:
		u, err := asUint(val, 32)
		if err != nil {
			return err
		}
		return enc.WriteUint32(uint32(u), binary.LittleEndian)
	case idl.KindU64:
		u, err := asUint(val, 64)
		if err != nil {
			return err
		}
		return enc.WriteUint64(u, binary.LittleEndian)
	case idl.KindU128:
		u, err := asUint128(val)
		if err != nil {
			return err
		}
		return enc.WriteUint128(u, binary.LittleEndian)
	case idl.KindI32:
		i, err := asInt(val)
		if err != nil {
			return err
		}
		return enc.WriteInt32(int32(i), binary.LittleEndian)
	case idl.KindI64:
		i, err := asInt(val)
		if err != nil {
			return err
		}
		return enc.WriteInt64(i, binary.LittleEndian)
	case idl.KindBool:
		v, ok := val.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", val)
		}
		return enc.WriteBool(v)
	case idl.KindPubkey:
		pk, err := asPubkey(val)
		if err != nil {
			return err
		}
		return enc.WriteBytes(pk.Bytes(), false)
	case idl.KindString:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
		return enc.WriteString(s)
	case idl.KindOption:
		return b.encodeOption(enc, tr, val)
	case idl.KindDefined:
		return b.encodeDefined(enc, tr.Defined, val)
	}
	return fmt.Errorf("unsupported argument type")
}

func (b *Builder) encodeOption(enc *bin.Encoder, tr idl.TypeRef, val interface{}) error {
	inner, present := unwrapOption(val)
	if !present {
		return enc.WriteUint8(0)
	}
	if err := enc.WriteUint8(1); err != nil {
		return err
	}
	return b.encodeValue(enc, *tr.Inner, inner)
}

func unwrapOption(val interface{}) (interface{}, bool) {
	switch v := val.(type) {
	case nil:
		return nil, false
	case *uint64:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *int64:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *string:
		if v == nil {
			return nil, false
		}
		return *v, true
	}
	return val, true
}

// encodeDefined handles named types: unit-variant enums take a variant name
// and encode its index; structs take a field map.
func (b *Builder) encodeDefined(enc *bin.Encoder, name string, val interface{}) error {
	if def, ok := b.reg.Enum(name); ok {
		variant, ok := val.(string)
		if !ok {
			return fmt.Errorf("enum %s: expected variant name, got %T", name, val)
		}
		for i, v := range def.Variants {
			if equalFold(v, variant) {
				return enc.WriteUint8(uint8(i))
			}
		}
		return fmt.Errorf("enum %s has no variant %q", name, variant)
	}

	if def, ok := b.reg.Struct(name); ok {
		fields, ok := val.(map[string]interface{})
		if !ok {
			return fmt.Errorf("struct %s: expected field map, got %T", name, val)
		}
		for _, f := range def.Fields {
			fv, ok := lookupArg(fields, f.Name)
			if !ok {
				return fmt.Errorf("struct %s: missing field %q", name, f.Name)
			}
			if err := b.encodeValue(enc, f.Type, fv); err != nil {
				return fmt.Errorf("struct %s field %q: %w", name, f.Name, err)
			}
		}
		return nil
	}

	return fmt.Errorf("unknown defined type %q", name)
}

func asUint(val interface{}, bits int) (uint64, error) {
	var u uint64
	switch v := val.(type) {
	case uint8:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint32:
		u = uint64(v)
	case uint64:
		u = v
	case *uint64:
		// Callers hand option-shaped values to plain integer fields when
		// the program version declares them non-optional.
		if v == nil {
			return 0, fmt.Errorf("nil value for required unsigned field")
		}
		u = *v
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned field", v)
		}
		u = uint64(v)
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned field", v)
		}
		u = uint64(v)
	default:
		return 0, fmt.Errorf("expected unsigned integer, got %T", val)
	}
	if bits < 64 && u >= 1<<uint(bits) {
		return 0, fmt.Errorf("value %d overflows u%d", u, bits)
	}
	return u, nil
}

func asInt(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("expected signed integer, got %T", val)
}

func asUint128(val interface{}) (bin.Uint128, error) {
	switch v := val.(type) {
	case bin.Uint128:
		return v, nil
	case uint64:
		return bin.Uint128{Lo: v}, nil
	case *big.Int:
		if v.Sign() < 0 || v.BitLen() > 128 {
			return bin.Uint128{}, fmt.Errorf("value out of u128 range")
		}
		var out bin.Uint128
		out.Lo = v.Uint64()
		out.Hi = new(big.Int).Rsh(v, 64).Uint64()
		return out, nil
	}
	return bin.Uint128{}, fmt.Errorf("expected u128, got %T", val)
}

func asPubkey(val interface{}) (solana.PublicKey, error) {
	switch v := val.(type) {
	case solana.PublicKey:
		return v, nil
	case string:
		return solana.PublicKeyFromBase58(v)
	}
	return solana.PublicKey{}, fmt.Errorf("expected public key, got %T", val)
}

func lookupArg(args map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := args[name]; ok {
		return v, true
	}
	want := normalize(name)
	for k, v := range args {
		if normalize(k) == want {
			return v, true
		}
	}
	return nil, false
}
