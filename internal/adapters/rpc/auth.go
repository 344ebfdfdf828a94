package rpc

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !s.isAllowedOrigin(origin) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+rpcTokenHeader+", "+rpcIdempotencyHeader+", "+rpcRequestIDHeader)
	return true
}

func (s *Server) authorizeRPC(w http.ResponseWriter, r *http.Request) bool {
	if s.rpcToken == "" && !s.requireRPC {
		return true
	}
	token := s.extractRPCToken(r)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.rpcToken)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) extractRPCToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(rpcTokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

// isAllowedOrigin admits browser pages served from the local machine only.
func (s *Server) isAllowedOrigin(raw string) bool {
	if raw == "null" {
		return s.allowNullOrigin
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// resolveRPCToken turns "auto" into a fresh random token and writes it to
// tokenFile when one is configured.
func resolveRPCToken(token, tokenFile string) (string, error) {
	token = strings.TrimSpace(token)
	if !strings.EqualFold(token, "auto") {
		return token, nil
	}
	generated, err := generateRPCToken()
	if err != nil {
		return "", err
	}
	if err := persistRPCToken(tokenFile, generated); err != nil {
		return "", err
	}
	return generated, nil
}

func generateRPCToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "rpc_" + hex.EncodeToString(buf), nil
}

func persistRPCToken(path, token string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}
