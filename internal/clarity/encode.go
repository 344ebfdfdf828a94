package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

// Serialize encodes v in the tagged binary format.
func Serialize(v Value) ([]byte, error) {
	return appendValue(nil, v, 0)
}

// SerializeHex encodes v as a 0x-prefixed hex string, the form used for function arguments.
func SerializeHex(v Value) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// HexArgs serializes a list of call arguments.
func HexArgs(args ...Value) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		s, err := SerializeHex(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

var maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

func MaxUint128() *uint256.Int {
	return new(uint256.Int).Set(maxUint128)
}

func appendValue(dst []byte, v Value, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	dst = append(dst, byte(v.Type))
	switch v.Type {
	case TypeInt, TypeUint:
		n := v.Uint
		if v.Type == TypeInt {
			n = v.Int
		}
		if n == nil {
			n = new(uint256.Int)
		}
		if n.Gt(maxUint128) {
			return nil, fmt.Errorf("%s value exceeds 128 bits", v.Type)
		}
		b32 := n.Bytes32()
		return append(dst, b32[32-uintWidth:]...), nil
	case TypeBuffer:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(v.Bytes)))
		return append(dst, v.Bytes...), nil
	case TypeTrue, TypeFalse, TypeNone:
		return dst, nil
	case TypeStandardPrincipal, TypeContractPrincipal:
		dst = append(dst, v.Principal.Version)
		dst = append(dst, v.Principal.Hash160[:]...)
		if v.Type == TypeContractPrincipal {
			return appendShortString(dst, v.Principal.ContractName)
		}
		return dst, nil
	case TypeResponseOk, TypeResponseErr, TypeSome:
		if v.Inner == nil {
			return nil, fmt.Errorf("%s value has no inner value", v.Type)
		}
		return appendValue(dst, *v.Inner, depth+1)
	case TypeList:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(v.List)))
		var err error
		for _, item := range v.List {
			if dst, err = appendValue(dst, item, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case TypeTuple:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(v.Tuple)))
		var err error
		for _, entry := range v.Tuple {
			if dst, err = appendShortString(dst, entry.Name); err != nil {
				return nil, err
			}
			if dst, err = appendValue(dst, entry.Value, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case TypeStringASCII, TypeStringUTF8:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(v.String)))
		return append(dst, v.String...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedType, v.Type)
	}
}

func appendShortString(dst []byte, s string) ([]byte, error) {
	if len(s) > 128 {
		return nil, fmt.Errorf("name %q exceeds 128 bytes", s)
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...), nil
}
