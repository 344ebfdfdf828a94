package rpc

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"aetos-counter/go-backend/internal/platform/privacylog"
)

// rpcRateLimitKey buckets callers by token fingerprint when they present one,
// else by remote host. IPv4 and IPv6 loopback share a bucket.
func rpcRateLimitKey(r *http.Request, token string) string {
	if token = strings.TrimSpace(token); token != "" {
		return "token:" + privacylog.FingerprintID(token)
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = strings.TrimSpace(h)
	}
	if host == "" {
		return "ip:unknown"
	}
	if addr, err := netip.ParseAddr(host); err == nil && addr.IsLoopback() {
		return "ip:loopback"
	}
	return "ip:" + host
}
