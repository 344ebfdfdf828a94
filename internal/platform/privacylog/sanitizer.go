package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

type action int

const (
	keep action = iota
	redact
	mask
)

var (
	bootNonce = randomNonce()

	// Wallet-bound addresses are replaced by a per-process fingerprint plus the
	// network prefix. Public contract data (contract id, last caller, txid) is
	// logged as is.
	walletAddressKeys = map[string]struct{}{
		"session_address":  {},
		"wallet_address":   {},
		"injected_address": {},
		"stx_address":      {},
	}
	secretKeyParts = []string{"token", "secret", "password", "passphrase", "authorization", "auth_key", "signed_tx", "private_key"}
)

// SanitizingHandler rewrites record and handler attributes before they reach next.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(sanitize(a)...)
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAll(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// sanitize returns the attributes that replace a; a masked wallet address
// expands into a fingerprint and a network hint.
func sanitize(a slog.Attr) []slog.Attr {
	key := strings.TrimSpace(a.Key)
	switch classify(key) {
	case redact:
		return []slog.Attr{slog.String(key, redactedValue)}
	case mask:
		addr := strings.TrimSpace(stringValue(a.Value))
		base := strings.TrimSuffix(key, "_fp")
		out := []slog.Attr{slog.String(base+"_fp", FingerprintID(addr))}
		if hint := networkHint(addr); hint != "" {
			out = append(out, slog.String(base+"_network", hint))
		}
		return out
	}
	if a.Value.Kind() == slog.KindGroup {
		return []slog.Attr{{Key: key, Value: slog.GroupValue(sanitizeAll(a.Value.Group())...)}}
	}
	return []slog.Attr{a}
}

func sanitizeAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, sanitize(a)...)
	}
	return out
}

func classify(key string) action {
	lower := strings.ToLower(key)
	for _, part := range secretKeyParts {
		if strings.Contains(lower, part) {
			return redact
		}
	}
	if _, ok := walletAddressKeys[strings.TrimSuffix(lower, "_fp")]; ok {
		return mask
	}
	return keep
}

// FingerprintID hashes value with a per-process nonce, so fingerprints correlate
// log lines within one run only.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

// networkHint maps the c32 version prefix to the network without revealing the address.
func networkHint(addr string) string {
	if len(addr) < 2 {
		return ""
	}
	switch strings.ToUpper(addr[:2]) {
	case "SP", "SM":
		return "mainnet"
	case "ST", "SN":
		return "testnet"
	}
	return ""
}

func stringValue(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return fmt.Sprint(v.Any())
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
