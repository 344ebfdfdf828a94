package clarity

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

type TypeID byte

const (
	TypeInt               TypeID = 0x00
	TypeUint              TypeID = 0x01
	TypeBuffer            TypeID = 0x02
	TypeTrue              TypeID = 0x03
	TypeFalse             TypeID = 0x04
	TypeStandardPrincipal TypeID = 0x05
	TypeContractPrincipal TypeID = 0x06
	TypeResponseOk        TypeID = 0x07
	TypeResponseErr       TypeID = 0x08
	TypeNone              TypeID = 0x09
	TypeSome              TypeID = 0x0a
	TypeList              TypeID = 0x0b
	TypeTuple             TypeID = 0x0c
	TypeStringASCII       TypeID = 0x0d
	TypeStringUTF8        TypeID = 0x0e
)

// uintWidth is the fixed payload width of Clarity int and uint values.
const uintWidth = 16

const maxDepth = 32

var (
	ErrTruncated       = errors.New("clarity payload truncated")
	ErrTrailingBytes   = errors.New("clarity payload has trailing bytes")
	ErrUnexpectedType  = errors.New("clarity value has unexpected type")
	ErrTooDeep         = errors.New("clarity value nesting too deep")
	ErrInvalidEncoding = errors.New("clarity payload is not valid hex")
)

// DecodeError carries the raw payload that failed to decode so callers can log it.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode clarity value 0x%x: %v", e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (t TypeID) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeBuffer:
		return "buffer"
	case TypeTrue:
		return "true"
	case TypeFalse:
		return "false"
	case TypeStandardPrincipal:
		return "standard-principal"
	case TypeContractPrincipal:
		return "contract-principal"
	case TypeResponseOk:
		return "response-ok"
	case TypeResponseErr:
		return "response-err"
	case TypeNone:
		return "none"
	case TypeSome:
		return "some"
	case TypeList:
		return "list"
	case TypeTuple:
		return "tuple"
	case TypeStringASCII:
		return "string-ascii"
	case TypeStringUTF8:
		return "string-utf8"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Value is a decoded Clarity value. Only the fields relevant to Type are set.
type Value struct {
	Type TypeID

	// Uint holds uint payloads; Int holds the two's complement bits of int payloads.
	Uint *uint256.Int
	Int  *uint256.Int

	Bytes     []byte
	Principal Principal
	Inner     *Value
	List      []Value
	Tuple     []TupleEntry
	String    string
}

type TupleEntry struct {
	Name  string
	Value Value
}

// Principal is a standard principal, or a contract principal when ContractName is set.
type Principal struct {
	Version      byte
	Hash160      [20]byte
	ContractName string
}

func (p Principal) Address() string {
	return EncodeAddress(p.Version, p.Hash160[:])
}

func (p Principal) String() string {
	if p.ContractName == "" {
		return p.Address()
	}
	return p.Address() + "." + p.ContractName
}

func (p Principal) IsContract() bool {
	return p.ContractName != ""
}

func Uint(n *uint256.Int) Value {
	return Value{Type: TypeUint, Uint: new(uint256.Int).Set(n)}
}

func Uint64(n uint64) Value {
	return Value{Type: TypeUint, Uint: uint256.NewInt(n)}
}

func Some(v Value) Value {
	return Value{Type: TypeSome, Inner: &v}
}

func None() Value {
	return Value{Type: TypeNone}
}

func Ok(v Value) Value {
	return Value{Type: TypeResponseOk, Inner: &v}
}

func Err(v Value) Value {
	return Value{Type: TypeResponseErr, Inner: &v}
}

func PrincipalValue(p Principal) Value {
	if p.IsContract() {
		return Value{Type: TypeContractPrincipal, Principal: p}
	}
	return Value{Type: TypeStandardPrincipal, Principal: p}
}

func Bool(b bool) Value {
	if b {
		return Value{Type: TypeTrue}
	}
	return Value{Type: TypeFalse}
}
