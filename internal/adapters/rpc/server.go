// Package rpc exposes the counter backend to a local UI: JSON-RPC 2.0 on
// /rpc, counter snapshots as server-sent events on /rpc/stream, plus
// /healthz and /metrics.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"aetos-counter/go-backend/internal/config"
	"aetos-counter/go-backend/internal/platform/ratelimiter"
	"aetos-counter/go-backend/pkg/models"
)

const (
	DefaultRPCAddr = config.DefaultRPCAddr

	rpcTokenHeader = "X-Counter-RPC-Token"
	shutdownGrace  = 5 * time.Second

	defaultWalletPromptTimeout = 5 * time.Minute
)

// Service is the backend as seen by the RPC surface.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Info() models.ServiceInfo
	CounterState() models.CounterSnapshot
	RefreshCounter(ctx context.Context) models.CounterSnapshot
	SubscribeCounter() (<-chan models.CounterSnapshot, func())

	WalletStatus() models.WalletStatus
	ConnectWallet(ctx context.Context) models.WalletStatus
	DisconnectWallet() models.WalletStatus
	SubmitCall(ctx context.Context, function string, args []string) models.WalletStatus
	Increment(ctx context.Context) models.WalletStatus
	Decrement(ctx context.Context) models.WalletStatus
	IncrementBy(ctx context.Context, n uint64) models.WalletStatus
}

type Server struct {
	httpServer      *http.Server
	service         Service
	initErr         error
	rpcToken        string
	requireRPC      bool
	allowNullOrigin bool
	rpcLimiter      *ratelimiter.MapLimiter
	streams         *rpcStreamLimiter
	idempotency     *rpcIdempotencyCache
	promptTimeout   time.Duration
	metrics         http.Handler
	logger          *slog.Logger
}

type Option func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(cfg config.RPCConfig, svc Service, opts ...Option) *Server {
	token, err := resolveRPCToken(cfg.Token, cfg.TokenFile)
	if err != nil {
		return &Server{initErr: err}
	}
	if cfg.RequireToken && token == "" {
		return &Server{initErr: errors.New("COUNTER_RPC_TOKEN is required when COUNTER_REQUIRE_RPC_TOKEN=true")}
	}
	return newServer(cfg, svc, token, opts...)
}

func newServer(cfg config.RPCConfig, svc Service, token string, opts ...Option) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultRPCAddr
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		service:         svc,
		rpcToken:        token,
		requireRPC:      cfg.RequireToken,
		allowNullOrigin: cfg.AllowNullOrigin,
		streams:         newRPCStreamLimiter(cfg.StreamMaxGlobal, cfg.StreamMaxPerClient),
		idempotency:     newRPCIdempotencyCache(),
		promptTimeout:   cfg.WalletPromptTimeout,
		logger:          slog.Default(),
	}
	if cfg.RateLimitEnabled {
		s.rpcLimiter = ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	}
	if s.promptTimeout <= 0 {
		s.promptTimeout = defaultWalletPromptTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "rpc")
	if s.rpcToken == "" {
		s.logger.Warn("COUNTER_RPC_TOKEN is not set; RPC auth disabled")
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/rpc/stream", s.handleRPCStream)
	return s
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Run starts the service, serves until ctx is done, then shuts both down.
func (s *Server) Run(ctx context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.service == nil {
		return errors.New("rpc server has no service")
	}
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	if err := s.service.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "addr", s.httpServer.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			_ = s.service.Stop(shutdownCtx)
			return err
		}
		if err := s.service.Stop(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		_ = s.service.Stop(shutdownCtx)
		cancel()
		return err
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.handleHealth(w, r)
}

func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	s.handleRPC(w, r)
}

func (s *Server) HandleRPCStream(w http.ResponseWriter, r *http.Request) {
	s.handleRPCStream(w, r)
}

func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	s.handleMetrics(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRPC(w, r) {
		return
	}
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}
