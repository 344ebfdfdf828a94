package clarity

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"
	"regexp"
	"strings"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	VersionMainnetSingleSig byte = 22
	VersionMainnetMultiSig  byte = 20
	VersionTestnetSingleSig byte = 26
	VersionTestnetMultiSig  byte = 21
)

var (
	ErrInvalidAddress      = errors.New("invalid c32check address")
	ErrChecksumMismatch    = errors.New("c32check checksum mismatch")
	ErrInvalidContractName = errors.New("invalid contract name")
	ErrInvalidFunctionName = errors.New("invalid function name")
)

var contractNamePattern = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9]|[-_])*$`)

// EncodeAddress renders a version and hash160 as an S-prefixed c32check address.
func EncodeAddress(version byte, hash160 []byte) string {
	payload := make([]byte, 0, len(hash160)+4)
	payload = append(payload, hash160...)
	payload = append(payload, checksum(version, hash160)...)
	return "S" + string(c32Alphabet[version&0x1f]) + c32Encode(payload)
}

// DecodeAddress parses an S-prefixed c32check address and verifies its checksum.
func DecodeAddress(addr string) (byte, [20]byte, error) {
	var hash [20]byte
	s := normalizeC32(addr)
	if len(s) < 3 || s[0] != 'S' {
		return 0, hash, ErrInvalidAddress
	}
	version := strings.IndexByte(c32Alphabet, s[1])
	if version < 0 {
		return 0, hash, ErrInvalidAddress
	}
	data, err := c32Decode(s[2:])
	if err != nil {
		return 0, hash, err
	}
	if len(data) != 24 {
		return 0, hash, ErrInvalidAddress
	}
	body, sum := data[:20], data[20:]
	if !bytes.Equal(sum, checksum(byte(version), body)) {
		return 0, hash, ErrChecksumMismatch
	}
	copy(hash[:], body)
	return byte(version), hash, nil
}

// ParsePrincipal parses "ADDRESS" or "ADDRESS.contract-name".
func ParsePrincipal(s string) (Principal, error) {
	addr, name, isContract := strings.Cut(strings.TrimSpace(s), ".")
	version, hash, err := DecodeAddress(addr)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{Version: version, Hash160: hash}
	if isContract {
		if err := ValidateContractName(name); err != nil {
			return Principal{}, err
		}
		p.ContractName = name
	}
	return p, nil
}

func ValidateContractName(name string) error {
	if len(name) == 0 || len(name) > 40 || !contractNamePattern.MatchString(name) {
		return ErrInvalidContractName
	}
	return nil
}

// ValidateFunctionName checks a public function name, which follows the
// contract-name alphabet with a longer limit.
func ValidateFunctionName(name string) error {
	if len(name) == 0 || len(name) > 128 || !contractNamePattern.MatchString(name) {
		return ErrInvalidFunctionName
	}
	return nil
}

// IsMainnetVersion reports whether the address version belongs to mainnet.
func IsMainnetVersion(version byte) bool {
	return version == VersionMainnetSingleSig || version == VersionMainnetMultiSig
}

func checksum(version byte, hash160 []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, hash160...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

func c32Encode(data []byte) string {
	n := new(big.Int).SetBytes(data)
	var digits string
	if n.Sign() > 0 {
		raw := n.Text(32)
		out := make([]byte, len(raw))
		for i := 0; i < len(raw); i++ {
			out[i] = c32Alphabet[base32Index(raw[i])]
		}
		digits = string(out)
	}
	zeros := len(data) - len(bytes.TrimLeft(data, "\x00"))
	return strings.Repeat("0", zeros) + digits
}

func c32Decode(s string) ([]byte, error) {
	zeros := len(s) - len(strings.TrimLeft(s, "0"))
	n := new(big.Int)
	radix := big.NewInt(32)
	for i := zeros; i < len(s); i++ {
		idx := strings.IndexByte(c32Alphabet, s[i])
		if idx < 0 {
			return nil, ErrInvalidAddress
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return append(make([]byte, zeros), n.Bytes()...), nil
}

func normalizeC32(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("O", "0", "L", "1", "I", "1").Replace(s)
}

// base32Index maps a big.Int base-32 digit (0-9a-v) to its value.
func base32Index(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return int(c-'a') + 10
}
