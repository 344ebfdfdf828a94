package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"aetos-counter/go-backend/internal/config"
	"aetos-counter/go-backend/internal/orchestrator"
	"aetos-counter/go-backend/internal/platform/metrics"
	"aetos-counter/go-backend/internal/reader"
	"aetos-counter/go-backend/internal/stacks"
	"aetos-counter/go-backend/internal/wallet"
	"aetos-counter/go-backend/pkg/models"
)

type Service struct {
	cfg     config.Config
	network stacks.Network
	version string
	logger  *slog.Logger
	metrics *metrics.Metrics

	reader *reader.Reader
	orch   *orchestrator.Orchestrator

	startStopMu sync.Mutex
	running     bool
	initCancel  context.CancelFunc
	initWG      sync.WaitGroup
}

type options struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	version   string
	querier   stacks.Querier
	loader    wallet.Loader
	scheduler orchestrator.Scheduler
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithQuerier replaces the Hiro API client.
func WithQuerier(q stacks.Querier) Option {
	return func(o *options) { o.querier = q }
}

// WithWalletLoader replaces the JSON-RPC wallet bridge loader.
func WithWalletLoader(l wallet.Loader) Option {
	return func(o *options) { o.loader = l }
}

func WithScheduler(s orchestrator.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// New validates cfg and wires the backend. Nothing runs until Start.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	o := options{logger: slog.Default(), version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	network := cfg.StacksNetwork()

	querier := o.querier
	if querier == nil {
		querier = stacks.NewClient(cfg.API, stacks.WithMetrics(o.metrics))
	}
	rdr := reader.New(cfg.Contract, querier,
		reader.WithLogger(o.logger),
		reader.WithMetrics(o.metrics),
	)

	loader := o.loader
	if loader == nil {
		loader = wallet.NewRPCLoader(cfg.Wallet.Bridge, network,
			wallet.WithProviderLogger(o.logger),
			wallet.WithSessionStore(wallet.NewSessionStore(cfg.Wallet.SessionFile, cfg.Wallet.SessionSecret)),
		)
	}
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(o.logger),
		orchestrator.WithMetrics(o.metrics),
		orchestrator.WithScheduler(o.scheduler),
	}
	if cfg.Wallet.FallbackAddress != "" {
		fallback, err := wallet.NewStaticAuthenticator(cfg.Wallet.FallbackAddress)
		if err != nil {
			return nil, fmt.Errorf("fallback wallet: %w", err)
		}
		orchOpts = append(orchOpts, orchestrator.WithFallback(fallback))
	}
	orch := orchestrator.New(orchestrator.Config{
		Contract:     cfg.Contract,
		Network:      network,
		App:          wallet.AppDetails{Name: cfg.Wallet.AppName, Icon: cfg.Wallet.AppIcon},
		RefreshDelay: cfg.Wallet.RefreshDelay,
		Warmup:       cfg.Wallet.Warmup,
		LoadAttempts: cfg.Wallet.LoadAttempts,
	}, loader, rdr, orchOpts...)

	return &Service{
		cfg:     cfg,
		network: network,
		version: o.version,
		logger:  o.logger.With("component", "app"),
		metrics: o.metrics,
		reader:  rdr,
		orch:    orch,
	}, nil
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start begins polling and loads the wallet in the background. It is a no-op
// on a running service.
func (s *Service) Start(ctx context.Context) error {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()
	if s.running {
		return nil
	}
	s.reader.Start(ctx, s.cfg.Reader.PollInterval)

	initCtx, cancel := context.WithCancel(ctx)
	s.initCancel = cancel
	s.initWG.Add(1)
	go func() {
		defer s.initWG.Done()
		st := s.orch.Init(initCtx)
		s.logger.Info("wallet initialized", "state", st.State, "degraded", st.Degraded)
	}()
	s.running = true
	s.logger.Info("counter service started", "contract", s.cfg.Contract.ID(), "network", s.network, "poll_interval", s.cfg.Reader.PollInterval)
	return nil
}

// Stop cancels polling, wallet warm-up and delayed refreshes, then waits for
// in-flight reads until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.initCancel()
	s.reader.Stop()
	s.orch.Close()

	done := make(chan struct{})
	go func() {
		s.initWG.Wait()
		s.reader.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("counter service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop counter service: %w", ctx.Err())
	}
}

func (s *Service) Info() models.ServiceInfo {
	return models.ServiceInfo{
		Contract:           s.cfg.Contract.ID(),
		Network:            string(s.network),
		APIURL:             s.cfg.API.BaseURL,
		ContractExplorer:   stacks.ExplorerAddressURL(s.cfg.Contract.ID(), s.network),
		PollIntervalMillis: s.cfg.Reader.PollInterval.Milliseconds(),
		Version:            s.version,
	}
}

func (s *Service) CounterState() models.CounterSnapshot {
	return s.reader.Snapshot()
}

func (s *Service) RefreshCounter(ctx context.Context) models.CounterSnapshot {
	s.reader.Refresh(ctx)
	return s.reader.Snapshot()
}

func (s *Service) SubscribeCounter() (<-chan models.CounterSnapshot, func()) {
	return s.reader.Subscribe()
}

func (s *Service) WalletStatus() models.WalletStatus {
	return s.orch.Status()
}

func (s *Service) ConnectWallet(ctx context.Context) models.WalletStatus {
	return s.orch.Connect(ctx)
}

func (s *Service) DisconnectWallet() models.WalletStatus {
	return s.orch.Disconnect()
}

func (s *Service) SubmitCall(ctx context.Context, function string, args []string) models.WalletStatus {
	return s.orch.Submit(ctx, function, args)
}

func (s *Service) Increment(ctx context.Context) models.WalletStatus {
	return s.orch.Increment(ctx)
}

func (s *Service) Decrement(ctx context.Context) models.WalletStatus {
	return s.orch.Decrement(ctx)
}

func (s *Service) IncrementBy(ctx context.Context, n uint64) models.WalletStatus {
	return s.orch.IncrementBy(ctx, n)
}
