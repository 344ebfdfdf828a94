package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"aetos-counter/go-backend/internal/clarity"
	"aetos-counter/go-backend/internal/stacks"
)

type BridgeConfig struct {
	URL          string        `yaml:"url" env:"COUNTER_WALLET_BRIDGE_URL"`
	Token        string        `yaml:"token" env:"COUNTER_WALLET_BRIDGE_TOKEN"`
	ProbeTimeout time.Duration `yaml:"probeTimeout" env:"COUNTER_WALLET_PROBE_TIMEOUT"`
}

const defaultProbeTimeout = 3 * time.Second

// RPCProvider is a Provider backed by a wallet bridge.
type RPCProvider struct {
	client   *bridgeClient
	sessions *SessionStore
	network  stacks.Network
	logger   *slog.Logger

	mu      sync.RWMutex
	session *Session
}

type ProviderOption func(*RPCProvider)

func WithProviderLogger(l *slog.Logger) ProviderOption {
	return func(p *RPCProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(p *RPCProvider) {
		if hc != nil {
			p.client.http = hc
		}
	}
}

func WithSessionStore(s *SessionStore) ProviderOption {
	return func(p *RPCProvider) { p.sessions = s }
}

// NewRPCLoader returns a Loader that probes the bridge and restores any
// persisted session. An empty URL yields a loader that always fails.
func NewRPCLoader(cfg BridgeConfig, network stacks.Network, opts ...ProviderOption) Loader {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return UnavailableLoader(ErrNoBridge)
	}
	return func(ctx context.Context) (Provider, error) {
		p := newRPCProvider(endpoint, cfg, network, opts...)
		info, err := p.client.probe(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
		}
		p.logger.Debug("wallet bridge ready", "version", info.Version, "methods", len(info.Methods))
		p.restore()
		return p, nil
	}
}

func newRPCProvider(endpoint string, cfg BridgeConfig, network stacks.Network, opts ...ProviderOption) *RPCProvider {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	p := &RPCProvider{
		client: &bridgeClient{
			endpoint:     endpoint,
			token:        cfg.Token,
			probeTimeout: timeout,
			http:         &http.Client{},
		},
		network: network,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "wallet.rpc")
	return p
}

func (p *RPCProvider) restore() {
	sess, ok, err := p.sessions.Load()
	if err != nil {
		p.logger.Warn("stored wallet session unreadable", "error", err)
		return
	}
	if !ok {
		return
	}
	if sess.Network != "" && sess.Network != p.network {
		p.logger.Info("stored wallet session is for another network", "network", sess.Network)
		return
	}
	p.mu.Lock()
	p.session = &sess
	p.mu.Unlock()
	p.logger.Info("wallet session restored", "session_address", sess.Address)
}

func (p *RPCProvider) Connect(ctx context.Context, app AppDetails) (Session, error) {
	var result getAddressesResult
	err := p.client.call(ctx, "getAddresses", map[string]any{
		"purposes": []string{"stacks"},
		"message":  app.Name,
	}, &result)
	if err != nil {
		return Session{}, classifyPromptError(err)
	}
	address, err := pickStacksAddress(result.Addresses, p.network)
	if err != nil {
		return Session{}, err
	}
	sess := Session{Address: address, Network: p.network}
	p.mu.Lock()
	p.session = &sess
	p.mu.Unlock()
	if err := p.sessions.Save(sess); err != nil {
		p.logger.Warn("wallet session not persisted", "error", err)
	}
	return sess, nil
}

func (p *RPCProvider) IsSignedIn() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session != nil
}

func (p *RPCProvider) LoadSession() (Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return Session{}, false
	}
	return *p.session, true
}

func (p *RPCProvider) SignOut() error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	return p.sessions.Clear()
}

func (p *RPCProvider) SubmitContractCall(ctx context.Context, call ContractCall) (CallResult, error) {
	if !p.IsSignedIn() {
		return CallResult{}, ErrNotSignedIn
	}
	args := call.Args
	if args == nil {
		args = []string{}
	}
	network := call.Network
	if network == "" {
		network = p.network
	}
	var result callContractResult
	err := p.client.call(ctx, "stx_callContract", callContractParams{
		Contract:     call.Contract.ID(),
		FunctionName: call.FunctionName,
		FunctionArgs: args,
		Network:      string(network),
		AppName:      call.App.Name,
		AppIcon:      call.App.Icon,
	}, &result)
	if err != nil {
		if perr := classifyPromptError(err); errors.Is(perr, ErrUserCancelled) {
			return CallResult{}, perr
		}
		var bridgeErr *BridgeError
		if errors.As(err, &bridgeErr) {
			return CallResult{}, &SubmissionError{Function: call.FunctionName, Code: bridgeErr.Code, Message: bridgeErr.Message, Err: err}
		}
		return CallResult{}, &SubmissionError{Function: call.FunctionName, Err: err}
	}
	txID := strings.TrimSpace(result.TxID)
	if txID == "" {
		return CallResult{}, &SubmissionError{Function: call.FunctionName, Message: "wallet returned no transaction id"}
	}
	return CallResult{TransactionID: txID}, nil
}

func classifyPromptError(err error) error {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) && bridgeErr.UserRejected() {
		return fmt.Errorf("%w: %s", ErrUserCancelled, bridgeErr.Message)
	}
	return err
}

// pickStacksAddress prefers an address for the configured network.
func pickStacksAddress(entries []addressEntry, network stacks.Network) (string, error) {
	var other string
	for _, e := range entries {
		addr := strings.TrimSpace(e.Address)
		if e.Purpose != "" && e.Purpose != "stacks" {
			continue
		}
		if e.Symbol != "" && !strings.EqualFold(e.Symbol, "STX") {
			continue
		}
		version, _, err := clarity.DecodeAddress(addr)
		if err != nil {
			continue
		}
		if clarity.IsMainnetVersion(version) == (network != stacks.Testnet) {
			return addr, nil
		}
		if other == "" {
			other = addr
		}
	}
	if other != "" {
		return other, nil
	}
	return "", ErrNoAddress
}
