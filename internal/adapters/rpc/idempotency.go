package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// A retried contract call with the same key replays the first response
// instead of opening a second wallet prompt.
const (
	rpcIdempotencyHeader     = "X-Counter-Idempotency-Key"
	rpcIdempotencyTTL        = 10 * time.Minute
	rpcIdempotencyMaxEntries = 256
)

type rpcIdempotencyEntry struct {
	requestHash string
	response    rpcResponse
	createdAt   time.Time
}

type rpcIdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]rpcIdempotencyEntry
}

func newRPCIdempotencyCache() *rpcIdempotencyCache {
	return &rpcIdempotencyCache{entries: make(map[string]rpcIdempotencyEntry)}
}

func (c *rpcIdempotencyCache) get(cacheKey, requestHash string, now time.Time) (resp rpcResponse, hit, conflict bool) {
	if c == nil {
		return rpcResponse{}, false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	entry, ok := c.entries[cacheKey]
	if !ok {
		return rpcResponse{}, false, false
	}
	if entry.requestHash != requestHash {
		return rpcResponse{}, false, true
	}
	return entry.response, true, false
}

func (c *rpcIdempotencyCache) set(cacheKey, requestHash string, resp rpcResponse, now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(now)
	c.entries[cacheKey] = rpcIdempotencyEntry{requestHash: requestHash, response: resp, createdAt: now}
	if len(c.entries) <= rpcIdempotencyMaxEntries {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.createdAt
		}
	}
	delete(c.entries, oldestKey)
}

func (c *rpcIdempotencyCache) prune(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) > rpcIdempotencyTTL {
			delete(c.entries, key)
		}
	}
}

func rpcIdempotencyKey(raw, authToken string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	return authToken + "|" + key
}

func rpcRequestHash(req rpcRequest) string {
	raw, err := json.Marshal(struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params,omitempty"`
	}{Method: req.Method, Params: req.Params})
	if err != nil {
		raw = []byte(req.Method + "|" + string(req.Params))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
