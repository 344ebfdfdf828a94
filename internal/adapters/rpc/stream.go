package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"aetos-counter/go-backend/pkg/models"
)

const (
	streamHeartbeat      = 20 * time.Second
	counterUpdatedMethod = "counter.updated"
)

func (s *Server) handleRPCStream(w http.ResponseWriter, r *http.Request) {
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
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "service is not initialized", http.StatusServiceUnavailable)
		return
	}
	release, allowed := s.streams.acquire(rpcRateLimitKey(r, s.extractRPCToken(r)))
	if !allowed {
		http.Error(w, "too many stream subscriptions", http.StatusTooManyRequests)
		return
	}
	defer release()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.service.SubscribeCounter()
	defer cancel()

	// Subscribe first so nothing published in between is lost.
	if snap := s.service.CounterState(); snap.Version > 0 {
		if err := writeSSEEvent(w, snap); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, snap models.CounterSnapshot) error {
	data, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  counterUpdatedMethod,
		"params": map[string]any{
			"version": rpcNotificationVersion,
			"seq":     snap.Version,
			"payload": snap,
		},
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\n", snap.Version); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
