// Package orchestrator owns the wallet session and the single in-flight
// contract call, and schedules a delayed re-read after each submission.
//
// Public operations never return errors. Failures are reported in the
// returned models.WalletStatus as a state, a reason and a message.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"aetos-counter/go-backend/internal/clarity"
	"aetos-counter/go-backend/internal/platform/metrics"
	"aetos-counter/go-backend/internal/stacks"
	"aetos-counter/go-backend/internal/wallet"
	"aetos-counter/go-backend/pkg/models"

	"github.com/cenkalti/backoff/v5"
)

const (
	FunctionIncrement   = "increment"
	FunctionDecrement   = "decrement"
	FunctionIncrementBy = "increment-by"

	DefaultRefreshDelay = 5 * time.Second
	DefaultWarmup       = 100 * time.Millisecond
	DefaultLoadAttempts = 3
)

// Refresher re-reads contract state. The reader satisfies it.
type Refresher interface {
	Refresh(ctx context.Context)
}

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. f must run on its own goroutine.
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Config struct {
	Contract     stacks.ContractRef
	Network      stacks.Network
	App          wallet.AppDetails
	RefreshDelay time.Duration
	Warmup       time.Duration
	LoadAttempts uint
}

type Orchestrator struct {
	cfg       Config
	loader    wallet.Loader
	fallback  wallet.Authenticator
	refresher Refresher
	schedule  Scheduler
	backoff   func() backoff.BackOff
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	loadMu  sync.Mutex
	loaded  bool
	loadErr error

	mu       sync.Mutex
	provider wallet.Provider
	state    string
	session  *models.Session
	call     models.PendingCall
	lastTxID string
	reason   string
	message  string
	// epoch changes on every disconnect so results of prompts that were
	// open at the time are dropped.
	epoch   uint64
	timers  map[uint64]Timer
	timerID uint64
	closed  bool
}

type Option func(*Orchestrator)

func WithFallback(a wallet.Authenticator) Option {
	return func(o *Orchestrator) { o.fallback = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.schedule = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithBackOff sets the retry policy for loading the primary wallet.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(o *Orchestrator) {
		if newBackOff != nil {
			o.backoff = newBackOff
		}
	}
}

func New(cfg Config, loader wallet.Loader, refresher Refresher, opts ...Option) *Orchestrator {
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = DefaultRefreshDelay
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if cfg.LoadAttempts == 0 {
		cfg.LoadAttempts = DefaultLoadAttempts
	}
	if cfg.Network == "" {
		cfg.Network = cfg.Contract.NetworkOf()
	}
	if loader == nil {
		loader = wallet.UnavailableLoader(wallet.ErrNoBridge)
	}
	o := &Orchestrator{
		cfg:       cfg,
		loader:    loader,
		refresher: refresher,
		schedule:  afterFunc,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: slog.Default(),
		now:    time.Now,
		state:  models.StateDisconnected,
		call:   models.PendingCall{Status: models.CallIdle},
		timers: make(map[uint64]Timer),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// Init waits out the warm-up delay, loads the primary wallet and restores
// its session. Without a primary wallet the orchestrator runs degraded.
func (o *Orchestrator) Init(ctx context.Context) models.WalletStatus {
	if o.cfg.Warmup > 0 {
		t := time.NewTimer(o.cfg.Warmup)
		select {
		case <-ctx.Done():
			t.Stop()
			return o.Status()
		case <-t.C:
		}
	}
	o.ensureLoaded(ctx)
	return o.Status()
}

func (o *Orchestrator) ensureLoaded(ctx context.Context) {
	o.loadMu.Lock()
	defer o.loadMu.Unlock()
	if o.loaded {
		return
	}

	provider, err := backoff.Retry(ctx, func() (wallet.Provider, error) {
		p, err := o.loader(ctx)
		if errors.Is(err, wallet.ErrNoBridge) {
			return nil, backoff.Permanent(err)
		}
		return p, err
	},
		backoff.WithBackOff(o.backoff()),
		backoff.WithMaxTries(o.cfg.LoadAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.logger.Debug("wallet load failed, retrying", "error", err, "retry_in", next)
		}),
	)
	if err == nil && provider == nil {
		err = wallet.ErrCapabilityUnavailable
	}
	if err != nil && !errors.Is(err, wallet.ErrCapabilityUnavailable) {
		err = fmt.Errorf("%w: %w", wallet.ErrCapabilityUnavailable, err)
	}
	if err != nil && ctx.Err() != nil {
		// Cancelled mid-load; a later Connect tries again.
		return
	}
	o.loaded = true

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.loadErr = err
		o.reason = models.ReasonCapabilityUnavailable
		o.message = "primary wallet unavailable: " + err.Error()
		o.logger.Warn("primary wallet unavailable, running degraded", "error", err, "fallback", o.fallback != nil)
		return
	}
	o.provider = provider
	if sess, ok := provider.LoadSession(); ok && provider.IsSignedIn() && o.session == nil {
		o.session = &models.Session{Address: sess.Address, Source: models.SessionSourcePrimary, ConnectedAt: o.now()}
		o.state = models.StateConnected
		o.logger.Info("wallet session restored", "session_address", sess.Address)
	}
}

// Connect establishes a session with the primary wallet, or with the
// fallback authenticator when the primary is unavailable.
func (o *Orchestrator) Connect(ctx context.Context) models.WalletStatus {
	o.ensureLoaded(ctx)

	o.mu.Lock()
	if o.session != nil || o.state == models.StateConnecting {
		st := o.statusLocked()
		o.mu.Unlock()
		return st
	}
	o.state = models.StateConnecting
	o.reason, o.message = "", ""
	epoch := o.epoch
	provider := o.provider
	loadErr := o.loadErr
	o.mu.Unlock()

	var (
		sess   wallet.Session
		err    error
		source string
	)
	switch {
	case provider != nil:
		source = models.SessionSourcePrimary
		sess, err = provider.Connect(ctx, o.cfg.App)
	case o.fallback != nil:
		source = models.SessionSourceFallback
		sess, err = o.fallback.AuthenticationRequest(ctx, o.cfg.App)
	default:
		source = models.SessionSourcePrimary
		err = wallet.ErrCapabilityUnavailable
		if loadErr != nil {
			err = loadErr
		}
	}

	o.mu.Lock()
	if epoch != o.epoch {
		st := o.statusLocked()
		o.mu.Unlock()
		// Disconnected while the prompt was open; undo the late sign-in.
		if err == nil && provider != nil {
			if serr := provider.SignOut(); serr != nil {
				o.logger.Warn("wallet sign-out after late connect failed", "error", serr)
			}
			o.logger.Info("late wallet connect discarded", "source", source)
		}
		return st
	}
	defer o.mu.Unlock()
	if err != nil {
		o.state = models.StateDisconnected
		o.reason = connectReason(err)
		o.message = err.Error()
		o.metrics.ObserveConnect(source, o.reason)
		o.logger.Info("wallet connect failed", "source", source, "reason", o.reason, "error", err)
		return o.statusLocked()
	}
	o.session = &models.Session{Address: sess.Address, Source: source, ConnectedAt: o.now()}
	o.state = models.StateConnected
	o.call = models.PendingCall{Status: models.CallIdle}
	o.metrics.ObserveConnect(source, "ok")
	o.logger.Info("wallet connected", "source", source, "session_address", sess.Address)
	return o.statusLocked()
}

func connectReason(err error) string {
	switch {
	case errors.Is(err, wallet.ErrUserCancelled):
		return models.ReasonUserCancelled
	case errors.Is(err, wallet.ErrCapabilityUnavailable):
		return models.ReasonCapabilityUnavailable
	default:
		return models.ReasonConnectFailed
	}
}

// Disconnect clears the session and any pending call from any state.
func (o *Orchestrator) Disconnect() models.WalletStatus {
	o.mu.Lock()
	o.epoch++
	provider := o.provider
	hadSession := o.session != nil
	o.session = nil
	o.state = models.StateDisconnected
	o.call = models.PendingCall{Status: models.CallIdle}
	o.reason, o.message = "", ""
	st := o.statusLocked()
	o.mu.Unlock()

	if provider != nil {
		if err := provider.SignOut(); err != nil {
			o.logger.Warn("wallet sign-out failed", "error", err)
		}
	}
	if hadSession {
		o.logger.Info("wallet disconnected")
	}
	return st
}

// Submit asks the wallet to sign and broadcast a call. Without a session it
// does nothing. It blocks until the wallet reports back.
func (o *Orchestrator) Submit(ctx context.Context, function string, args []string) models.WalletStatus {
	o.mu.Lock()
	if o.session == nil {
		st := o.statusLocked()
		o.mu.Unlock()
		return st
	}
	switch o.state {
	case models.StateConnected, models.StateCallFailed:
	case models.StateCallPending:
		st := o.rejectedLocked(function, models.ReasonCallInFlight, "a contract call is already awaiting the wallet")
		o.mu.Unlock()
		return st
	default:
		st := o.rejectedLocked(function, models.ReasonInvalidState, "cannot submit while "+o.state)
		o.mu.Unlock()
		return st
	}

	args = slices.Clone(args)
	if o.provider == nil || o.session.Source == models.SessionSourceFallback {
		o.state = models.StateCallFailed
		o.call = models.PendingCall{
			FunctionName: function,
			Args:         args,
			Status:       models.CallFailed,
			Reason:       models.ReasonNotImplemented,
			Error:        "contract calls are not implemented for the fallback wallet",
		}
		o.reason, o.message = models.ReasonNotImplemented, o.call.Error
		o.metrics.ObserveSubmit(function, models.ReasonNotImplemented)
		o.logger.Warn("contract call unsupported in degraded mode", "function", function)
		st := o.statusLocked()
		o.mu.Unlock()
		return st
	}

	o.state = models.StateCallPending
	o.call = models.PendingCall{FunctionName: function, Args: args, Status: models.CallAwaitingWallet}
	o.reason, o.message = "", ""
	epoch := o.epoch
	provider := o.provider
	o.mu.Unlock()

	res, err := provider.SubmitContractCall(ctx, wallet.ContractCall{
		Contract:     o.cfg.Contract,
		FunctionName: function,
		Args:         args,
		Network:      o.cfg.Network,
		App:          o.cfg.App,
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		o.logger.Info("dropping wallet result after disconnect", "function", function)
		return o.statusLocked()
	}
	switch {
	case err == nil:
		o.state = models.StateConnected
		o.call.Status = models.CallSubmitted
		o.call.TransactionID = res.TransactionID
		o.lastTxID = res.TransactionID
		o.metrics.ObserveSubmit(function, "ok")
		o.logger.Info("contract call submitted", "function", function, "txid", res.TransactionID)
		o.scheduleRefreshLocked()
	case errors.Is(err, wallet.ErrUserCancelled):
		o.state = models.StateConnected
		o.call.Status = models.CallFailed
		o.call.Reason = models.ReasonUserCancelled
		o.reason = models.ReasonUserCancelled
		o.message = "transaction cancelled in wallet"
		o.metrics.ObserveSubmit(function, models.ReasonUserCancelled)
		o.logger.Info("contract call cancelled", "function", function)
	default:
		o.state = models.StateCallFailed
		o.call.Status = models.CallFailed
		o.call.Reason = models.ReasonSubmissionError
		o.call.Error = err.Error()
		o.reason, o.message = models.ReasonSubmissionError, err.Error()
		o.metrics.ObserveSubmit(function, models.ReasonSubmissionError)
		o.logger.Warn("contract call failed", "function", function, "error", err)
	}
	return o.statusLocked()
}

func (o *Orchestrator) Increment(ctx context.Context) models.WalletStatus {
	return o.Submit(ctx, FunctionIncrement, nil)
}

func (o *Orchestrator) Decrement(ctx context.Context) models.WalletStatus {
	return o.Submit(ctx, FunctionDecrement, nil)
}

func (o *Orchestrator) IncrementBy(ctx context.Context, n uint64) models.WalletStatus {
	args, err := clarity.HexArgs(clarity.Uint64(n))
	if err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.rejectedLocked(FunctionIncrementBy, models.ReasonInvalidState, fmt.Sprintf("encode argument: %v", err))
	}
	return o.Submit(ctx, FunctionIncrementBy, args)
}

// rejectedLocked reports a refused submit without touching the pending call.
func (o *Orchestrator) rejectedLocked(function, reason, message string) models.WalletStatus {
	o.metrics.ObserveSubmit(function, reason)
	o.logger.Debug("contract call rejected", "function", function, "reason", reason)
	st := o.statusLocked()
	st.Reason, st.Message = reason, message
	return st
}

func (o *Orchestrator) scheduleRefreshLocked() {
	if o.refresher == nil || o.closed {
		return
	}
	o.timerID++
	id := o.timerID
	o.timers[id] = o.schedule(o.cfg.RefreshDelay, func() {
		o.mu.Lock()
		_, live := o.timers[id]
		delete(o.timers, id)
		o.mu.Unlock()
		if live {
			o.refresher.Refresh(context.Background())
		}
	})
}

// Close stops pending delayed refreshes.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
}

func (o *Orchestrator) Status() models.WalletStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() models.WalletStatus {
	st := models.WalletStatus{
		State:             o.state,
		Call:              o.call,
		LastTransactionID: o.lastTxID,
		ExplorerURL:       stacks.ExplorerTxURL(o.lastTxID, o.cfg.Network),
		Degraded:          o.provider == nil && o.loadErr != nil,
		Reason:            o.reason,
		Message:           o.message,
	}
	st.Call.Args = slices.Clone(o.call.Args)
	if o.session != nil {
		sess := *o.session
		st.Session = &sess
	}
	return st
}
