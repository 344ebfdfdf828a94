// Package doctor runs readiness checks for a counterd deployment.
package doctor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"aetos-counter/go-backend/internal/clarity"
	"aetos-counter/go-backend/internal/config"
	"aetos-counter/go-backend/internal/reader"
	"aetos-counter/go-backend/internal/stacks"
	"aetos-counter/go-backend/internal/wallet"
)

type Check struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

type Report struct {
	Ready     bool      `json:"ready"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

type Input struct {
	Config config.Config
	// SkipListen leaves the RPC address unchecked, e.g. when the daemon is already running.
	SkipListen bool
}

type Service struct {
	querier stacks.Querier
	loader  wallet.Loader
	now     func() time.Time
}

// New builds a doctor that reads through querier and probes the wallet with loader.
// A nil loader skips the wallet bridge check.
func New(querier stacks.Querier, loader wallet.Loader) *Service {
	return &Service{
		querier: querier,
		loader:  loader,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Run(ctx context.Context, input Input) Report {
	cfg := input.Config
	report := Report{
		Ready:     true,
		Checks:    make([]Check, 0, 6),
		CheckedAt: s.now(),
	}
	appendCheck := func(name string, pass bool, reason string) {
		report.Checks = append(report.Checks, Check{Name: name, Pass: pass, Reason: reason})
		if !pass {
			report.Ready = false
		}
	}

	configErr := cfg.Validate()
	appendCheck("config_valid", configErr == nil, errReason(configErr))

	if !input.SkipListen {
		err := checkListenAddr(cfg.RPC.Addr)
		appendCheck("rpc_addr_available", err == nil, errReason(err))
	}

	if configErr == nil && s.querier != nil {
		raw, err := s.querier.CallReadOnly(ctx, stacks.ReadOnlyCall{
			Contract:     cfg.Contract,
			FunctionName: reader.FunctionGetCounter,
			Sender:       cfg.Contract.Address,
		})
		appendCheck("api_reachable", err == nil, errReason(err))
		if err == nil {
			decodeErr := decodeCounter(raw)
			appendCheck("counter_decodes", decodeErr == nil, errReason(decodeErr))
		}
	}

	if strings.TrimSpace(cfg.Wallet.Bridge.URL) != "" && s.loader != nil {
		_, err := s.loader(ctx)
		appendCheck("wallet_bridge_reachable", err == nil, errReason(err))
	}
	return report
}

func decodeCounter(raw string) error {
	payload, err := clarity.ParseHex(raw)
	if err != nil {
		return err
	}
	_, err = clarity.DecodeOkUint(payload)
	return err
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func checkListenAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc address %s is unavailable: %w", addr, err)
	}
	_ = ln.Close()
	return nil
}
