package rpc

import (
	"context"
	"encoding/json"
)

// walletPromptContext keeps a wallet prompt alive after the HTTP client goes
// away, bounded by the prompt timeout.
func (s *Server) walletPromptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.promptTimeout)
}

var mutatingMethods = map[string]struct{}{
	"counter.call":         {},
	"counter.increment":    {},
	"counter.decrement":    {},
	"counter.increment_by": {},
}

func isMutatingMethod(method string) bool {
	_, ok := mutatingMethods[method]
	return ok
}

func (s *Server) dispatchCounterRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	if isMutatingMethod(method) {
		var cancel context.CancelFunc
		ctx, cancel = s.walletPromptContext(ctx)
		defer cancel()
	}
	switch method {
	case "counter.info":
		return s.service.Info(), nil, true
	case "counter.state":
		return s.service.CounterState(), nil, true
	case "counter.refresh":
		return s.service.RefreshCounter(ctx), nil, true
	case "counter.call":
		function, args, err := decodeCallParams(rawParams)
		if err != nil {
			return nil, rpcInvalidParams(err.Error()), true
		}
		return s.service.SubmitCall(ctx, function, args), nil, true
	case "counter.increment":
		return s.service.Increment(ctx), nil, true
	case "counter.decrement":
		return s.service.Decrement(ctx), nil, true
	case "counter.increment_by":
		n, err := decodeIncrementByParams(rawParams)
		if err != nil {
			return nil, rpcInvalidParams(err.Error()), true
		}
		return s.service.IncrementBy(ctx, n), nil, true
	default:
		return nil, nil, false
	}
}

func (s *Server) dispatchWalletRPC(ctx context.Context, method string, _ json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "wallet.status":
		return s.service.WalletStatus(), nil, true
	case "wallet.connect":
		promptCtx, cancel := s.walletPromptContext(ctx)
		defer cancel()
		return s.service.ConnectWallet(promptCtx), nil, true
	case "wallet.disconnect":
		return s.service.DisconnectWallet(), nil, true
	default:
		return nil, nil, false
	}
}
