// Package reader keeps an eventually-consistent local mirror of the counter
// contract's read-only values and publishes it to presentation.
//
// Reads are best effort: transport and decode failures are logged and counted,
// and the affected field keeps its previous value. Nothing is returned to callers.
package reader

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"aetos-counter/go-backend/internal/clarity"
	"aetos-counter/go-backend/internal/platform/metrics"
	"aetos-counter/go-backend/internal/stacks"
	"aetos-counter/go-backend/pkg/models"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

const (
	FunctionGetCounter    = "get-counter"
	FunctionGetLastCaller = "get-last-caller"

	DefaultInterval = 30 * time.Second
)

const (
	outcomeOK             = "ok"
	outcomeAbsent         = "absent"
	outcomeTransportError = "transport_error"
	outcomeRejected       = "rejected"
	outcomeDecodeError    = "decode_error"
)

type Reader struct {
	contract stacks.ContractRef
	querier  stacks.Querier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	state   models.CounterSnapshot
	subs    map[int]chan models.CounterSnapshot
	nextSub int

	loopMu   sync.Mutex
	cancel   context.CancelFunc
	loopWG   sync.WaitGroup
	inflight sync.WaitGroup
}

type Option func(*Reader)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reader) {
		if now != nil {
			r.now = now
		}
	}
}

func New(contract stacks.ContractRef, querier stacks.Querier, opts ...Option) *Reader {
	r := &Reader{
		contract: contract,
		querier:  querier,
		logger:   slog.Default(),
		now:      time.Now,
		state:    models.CounterSnapshot{Contract: contract.ID()},
		subs:     make(map[int]chan models.CounterSnapshot),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reader", "contract", contract.ID())
	return r
}

// Refresh queries get-counter and get-last-caller concurrently and publishes
// whatever decoded successfully.
func (r *Reader) Refresh(ctx context.Context) {
	r.metrics.ObserveRefresh()
	var g errgroup.Group
	g.Go(func() error {
		r.refreshCounter(ctx)
		return nil
	})
	g.Go(func() error {
		r.refreshLastCaller(ctx)
		return nil
	})
	_ = g.Wait()
}

func (r *Reader) refreshCounter(ctx context.Context) {
	raw, ok := r.query(ctx, FunctionGetCounter)
	if !ok {
		return
	}
	payload, err := clarity.ParseHex(raw)
	var value *uint256.Int
	if err == nil {
		value, err = clarity.DecodeOkUint(payload)
	}
	if err != nil {
		r.decodeFailed(FunctionGetCounter, raw, err)
		return
	}
	r.metrics.ObserveQuery(FunctionGetCounter, outcomeOK)
	r.metrics.SetCounterValue(approxFloat(value))
	r.publish(func(s *models.CounterSnapshot) {
		s.Value = value
	})
}

func (r *Reader) refreshLastCaller(ctx context.Context) {
	raw, ok := r.query(ctx, FunctionGetLastCaller)
	if !ok {
		return
	}
	payload, err := clarity.ParseHex(raw)
	var caller string
	var present bool
	if err == nil {
		caller, present, err = clarity.DecodeOptionalPrincipal(payload)
	}
	if err != nil {
		r.decodeFailed(FunctionGetLastCaller, raw, err)
		return
	}
	if !present {
		r.metrics.ObserveQuery(FunctionGetLastCaller, outcomeAbsent)
		return
	}
	r.metrics.ObserveQuery(FunctionGetLastCaller, outcomeOK)
	r.publish(func(s *models.CounterSnapshot) {
		s.LastCaller = caller
	})
}

func (r *Reader) query(ctx context.Context, function string) (string, bool) {
	raw, err := r.querier.CallReadOnly(ctx, stacks.ReadOnlyCall{
		Contract:     r.contract,
		FunctionName: function,
		Sender:       r.contract.Address,
	})
	if err != nil {
		outcome := outcomeTransportError
		if errors.Is(err, stacks.ErrCallRejected) {
			outcome = outcomeRejected
		}
		r.metrics.ObserveQuery(function, outcome)
		r.logger.Warn("read-only query failed", "function", function, "outcome", outcome, "error", err)
		return "", false
	}
	return raw, true
}

func (r *Reader) decodeFailed(function, raw string, err error) {
	r.metrics.ObserveQuery(function, outcomeDecodeError)
	r.logger.Warn("read-only result decode failed", "function", function, "payload", raw, "error", err)
}

func (r *Reader) publish(apply func(*models.CounterSnapshot)) {
	r.mu.Lock()
	apply(&r.state)
	r.state.UpdatedAt = r.now()
	r.state.Version++
	snap := cloneSnapshot(r.state)
	for _, ch := range r.subs {
		offerLatest(ch, snap)
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (r *Reader) Snapshot() models.CounterSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.state)
}

// Subscribe delivers snapshots as they are published. Slow subscribers only see
// the latest snapshot. The returned func unsubscribes and closes the channel.
func (r *Reader) Subscribe() (<-chan models.CounterSnapshot, func()) {
	ch := make(chan models.CounterSnapshot, 1)
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			close(ch)
			r.mu.Unlock()
		})
	}
}

// Start refreshes immediately and then every interval until Stop. Calling Start
// on a running reader is a no-op.
func (r *Reader) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.loopMu.Lock()
	if r.cancel != nil {
		r.loopMu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.loopWG.Add(1)
	r.loopMu.Unlock()

	// Requests outlive Stop; only the timer is cancelled.
	reqCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.loopWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.spawnRefresh(reqCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.spawnRefresh(reqCtx)
			}
		}
	}()
}

func (r *Reader) spawnRefresh(ctx context.Context) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.Refresh(ctx)
	}()
}

// Stop cancels the polling timer. It is safe to call repeatedly.
func (r *Reader) Stop() {
	r.loopMu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.loopMu.Unlock()
	if cancel != nil {
		cancel()
		r.loopWG.Wait()
	}
}

// Wait blocks until refreshes started by the polling loop have finished.
func (r *Reader) Wait() {
	r.inflight.Wait()
}

func cloneSnapshot(s models.CounterSnapshot) models.CounterSnapshot {
	if s.Value != nil {
		s.Value = new(uint256.Int).Set(s.Value)
	}
	return s
}

// offerLatest never blocks; a full buffer is replaced with the newer snapshot.
// Callers hold r.mu so the channel cannot be closed underneath.
func offerLatest(ch chan models.CounterSnapshot, snap models.CounterSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func approxFloat(v *uint256.Int) float64 {
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
