package rpc

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxStreams          = 64
	defaultMaxStreamsPerClient = 4
)

// rpcStreamLimiter caps concurrent snapshot streams globally and per client key.
type rpcStreamLimiter struct {
	global       *semaphore.Weighted
	maxPerClient int

	mu       sync.Mutex
	byClient map[string]int
}

func newRPCStreamLimiter(maxGlobal, maxPerClient int) *rpcStreamLimiter {
	if maxGlobal <= 0 {
		maxGlobal = defaultMaxStreams
	}
	if maxPerClient <= 0 {
		maxPerClient = defaultMaxStreamsPerClient
	}
	return &rpcStreamLimiter{
		global:       semaphore.NewWeighted(int64(maxGlobal)),
		maxPerClient: maxPerClient,
		byClient:     make(map[string]int),
	}
}

// acquire reserves a stream slot for clientKey. The release func is idempotent.
func (l *rpcStreamLimiter) acquire(clientKey string) (func(), bool) {
	if l == nil {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byClient[clientKey] >= l.maxPerClient || !l.global.TryAcquire(1) {
		return nil, false
	}
	l.byClient[clientKey]++

	var once sync.Once
	return func() {
		once.Do(func() { l.release(clientKey) })
	}, true
}

func (l *rpcStreamLimiter) release(clientKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global.Release(1)
	if n := l.byClient[clientKey] - 1; n > 0 {
		l.byClient[clientKey] = n
	} else {
		delete(l.byClient, clientKey)
	}
}
