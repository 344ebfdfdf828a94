package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

// DecodeHex decodes a hex payload as returned by the read-only endpoint; the 0x prefix is optional.
func DecodeHex(raw string) (Value, error) {
	b, err := ParseHex(raw)
	if err != nil {
		return Value{}, err
	}
	return Decode(b)
}

func ParseHex(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Raw: []byte(raw), Err: ErrInvalidEncoding}
	}
	return b, nil
}

// Decode parses exactly one serialized value; trailing bytes are an error.
func Decode(b []byte) (Value, error) {
	d := decoder{buf: b}
	v, err := d.value(0)
	if err != nil {
		return Value{}, &DecodeError{Raw: b, Err: err}
	}
	if d.off != len(b) {
		return Value{}, &DecodeError{Raw: b, Err: ErrTrailingBytes}
	}
	return v, nil
}

// DecodeOkUint applies the (ok uint) rule: both tag bytes are stripped and every
// remaining byte is read as one big-endian integer. More than 16 remaining bytes
// exceeds the 128-bit uint width and is rejected rather than wrapped.
func DecodeOkUint(b []byte) (*uint256.Int, error) {
	if len(b) < 2 {
		return nil, &DecodeError{Raw: b, Err: ErrTruncated}
	}
	if TypeID(b[0]) != TypeResponseOk || TypeID(b[1]) != TypeUint {
		return nil, &DecodeError{Raw: b, Err: fmt.Errorf("%w: %s/%s", ErrUnexpectedType, TypeID(b[0]), TypeID(b[1]))}
	}
	payload := b[2:]
	if len(payload) == 0 {
		return nil, &DecodeError{Raw: b, Err: ErrTruncated}
	}
	if len(payload) > uintWidth {
		return nil, &DecodeError{Raw: b, Err: fmt.Errorf("uint payload is %d bytes, max %d", len(payload), uintWidth)}
	}
	return new(uint256.Int).SetBytes(payload), nil
}

// DecodeOptionalPrincipal applies the (optional principal) rule. ok is false for none.
// An ok-wrapped optional is accepted too.
func DecodeOptionalPrincipal(b []byte) (string, bool, error) {
	v, err := Decode(b)
	if err != nil {
		return "", false, err
	}
	if v.Type == TypeResponseOk && v.Inner != nil {
		v = *v.Inner
	}
	switch v.Type {
	case TypeNone:
		return "", false, nil
	case TypeSome:
		inner := v.Inner
		if inner != nil && (inner.Type == TypeStandardPrincipal || inner.Type == TypeContractPrincipal) {
			return inner.Principal.String(), true, nil
		}
	}
	return "", false, &DecodeError{Raw: b, Err: fmt.Errorf("%w: %s", ErrUnexpectedType, describe(v))}
}

func describe(v Value) string {
	if v.Inner != nil {
		return v.Type.String() + "(" + describe(*v.Inner) + ")"
	}
	return v.Type.String()
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.off < n {
		return nil, ErrTruncated
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u32() (int, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b)
	if int64(n) > int64(len(d.buf)) {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (d *decoder) value(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}
	tag, err := d.u8()
	if err != nil {
		return Value{}, err
	}
	t := TypeID(tag)
	switch t {
	case TypeInt, TypeUint:
		b, err := d.take(uintWidth)
		if err != nil {
			return Value{}, err
		}
		n := new(uint256.Int).SetBytes(b)
		if t == TypeInt {
			return Value{Type: t, Int: n}, nil
		}
		return Value{Type: t, Uint: n}, nil
	case TypeBuffer:
		n, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		b, err := d.take(n)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Bytes: append([]byte(nil), b...)}, nil
	case TypeTrue, TypeFalse, TypeNone:
		return Value{Type: t}, nil
	case TypeStandardPrincipal, TypeContractPrincipal:
		p, err := d.principal(t == TypeContractPrincipal)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Principal: p}, nil
	case TypeResponseOk, TypeResponseErr, TypeSome:
		inner, err := d.value(depth + 1)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Inner: &inner}, nil
	case TypeList:
		n, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, min(n, 64))
		for range n {
			item, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{Type: t, List: items}, nil
	case TypeTuple:
		n, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		entries := make([]TupleEntry, 0, min(n, 64))
		for range n {
			name, err := d.shortString()
			if err != nil {
				return Value{}, err
			}
			item, err := d.value(depth + 1)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, TupleEntry{Name: name, Value: item})
		}
		return Value{Type: t, Tuple: entries}, nil
	case TypeStringASCII, TypeStringUTF8:
		n, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		b, err := d.take(n)
		if err != nil {
			return Value{}, err
		}
		if t == TypeStringUTF8 && !utf8.Valid(b) {
			return Value{}, fmt.Errorf("string-utf8 payload is not valid utf-8")
		}
		return Value{Type: t, String: string(b)}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnexpectedType, t)
	}
}

func (d *decoder) principal(contract bool) (Principal, error) {
	var p Principal
	version, err := d.u8()
	if err != nil {
		return p, err
	}
	hash, err := d.take(20)
	if err != nil {
		return p, err
	}
	p.Version = version
	copy(p.Hash160[:], hash)
	if contract {
		name, err := d.shortString()
		if err != nil {
			return p, err
		}
		if name == "" {
			return p, fmt.Errorf("contract principal has empty name")
		}
		p.ContractName = name
	}
	return p, nil
}

func (d *decoder) shortString() (string, error) {
	n, err := d.u8()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
