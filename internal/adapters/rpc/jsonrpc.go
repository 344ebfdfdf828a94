package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

type rpcRequest struct {
	JSONRPC    string          `json:"jsonrpc"`
	ID         json.RawMessage `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params"`
	APIVersion *int            `json:"api_version,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const (
	maxRPCBodyBytes    int64 = 64 << 10 // 64 KiB
	rpcRequestIDHeader       = "X-Counter-Request-ID"
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorizeRPC(w, r) {
		return
	}
	token := s.extractRPCToken(r)
	if !s.rpcLimiter.Allow(rpcRateLimitKey(r, token), time.Now()) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if s.service == nil {
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeServiceUnavailable, Message: "service is not initialized"},
		})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	reqID := requestCorrelationID(r, req)
	w.Header().Set(rpcRequestIDHeader, reqID)
	if rpcErr := validateRPCAPIVersion(req.APIVersion); rpcErr != nil {
		writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}

	idemKey := ""
	if isMutatingMethod(req.Method) {
		idemKey = rpcIdempotencyKey(r.Header.Get(rpcIdempotencyHeader), token)
	}
	reqHash := rpcRequestHash(req)
	if idemKey != "" {
		cached, hit, conflict := s.idempotency.get(idemKey, reqHash, time.Now())
		if conflict {
			writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{
				Code:    codeIdempotencyConflict,
				Message: "idempotency key reused with different request",
			}})
			return
		}
		if hit {
			cached.ID = req.ID
			writeRPC(w, cached)
			return
		}
	}

	started := time.Now()
	s.logger.Info("rpc request", "request_id", reqID, "method", req.Method)
	result, rpcErr := s.dispatchRPC(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		s.logger.Error("rpc failed", "request_id", reqID, "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", time.Since(started).Milliseconds())
	} else {
		s.logger.Info("rpc response", "request_id", reqID, "method", req.Method, "latency_ms", time.Since(started).Milliseconds())
	}
	resp := rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	}
	if idemKey != "" && rpcErr == nil {
		s.idempotency.set(idemKey, reqHash, resp, time.Now())
	}
	writeRPC(w, resp)
}

func (s *Server) dispatchRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil
	case "rpc.version":
		return rpcVersionInfo(), nil
	}
	if result, rpcErr, ok := s.dispatchCounterRPC(ctx, method, rawParams); ok {
		return result, rpcErr
	}
	if result, rpcErr, ok := s.dispatchWalletRPC(ctx, method, rawParams); ok {
		return result, rpcErr
	}
	return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
}

// requestCorrelationID prefers the caller's header, then the JSON-RPC id.
func requestCorrelationID(r *http.Request, req rpcRequest) string {
	if v := strings.TrimSpace(r.Header.Get(rpcRequestIDHeader)); v != "" && len(v) <= 128 {
		return v
	}
	if id := strings.Trim(strings.TrimSpace(string(req.ID)), `"`); id != "" && id != "null" {
		return "rpc." + id
	}
	return "rpc." + time.Now().UTC().Format("20060102T150405.000000000")
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: codeInvalidRequest, Message: "invalid request"},
	})
}
