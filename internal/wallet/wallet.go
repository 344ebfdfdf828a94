// Package wallet defines the wallet capability the orchestrator drives and
// the implementations selected at startup: a JSON-RPC bridge to a wallet
// (primary) and a configured identity (fallback, connect only).
package wallet

import (
	"context"
	"errors"
	"fmt"

	"aetos-counter/go-backend/internal/stacks"
)

var (
	ErrCapabilityUnavailable = errors.New("wallet capability unavailable")
	ErrUserCancelled         = errors.New("wallet request cancelled by user")
	ErrNotSignedIn           = errors.New("wallet not signed in")
	ErrNoAddress             = errors.New("wallet returned no stacks address")

	// ErrNoBridge means no primary wallet is configured; loading will not
	// succeed on retry.
	ErrNoBridge = errors.New("no wallet bridge configured")
)

// SubmissionError is a wallet-reported failure of a contract call. It is
// recoverable by retrying the call.
type SubmissionError struct {
	Function string
	Code     int
	Message  string
	Err      error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("submit %s: wallet error %d: %s", e.Function, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("submit %s: %v", e.Function, e.Err)
	default:
		return fmt.Sprintf("submit %s: %s", e.Function, e.Message)
	}
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

type AppDetails struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type Session struct {
	Address string         `json:"address"`
	Network stacks.Network `json:"network,omitempty"`
}

// ContractCall is a state-mutating call the wallet signs and broadcasts.
// Args are hex-serialized Clarity values.
type ContractCall struct {
	Contract     stacks.ContractRef
	FunctionName string
	Args         []string
	Network      stacks.Network
	App          AppDetails
}

type CallResult struct {
	TransactionID string
}

// Provider is the primary wallet capability. Connect and SubmitContractCall
// block until the user finishes or dismisses the wallet prompt; dismissal is
// reported as ErrUserCancelled.
type Provider interface {
	Connect(ctx context.Context, app AppDetails) (Session, error)
	IsSignedIn() bool
	LoadSession() (Session, bool)
	SignOut() error
	SubmitContractCall(ctx context.Context, call ContractCall) (CallResult, error)
}

// Loader initializes the primary provider. Failures wrap ErrCapabilityUnavailable.
type Loader func(ctx context.Context) (Provider, error)

// Authenticator is the narrower fallback used when no Provider could be
// loaded. It can establish a session but cannot submit calls.
type Authenticator interface {
	AuthenticationRequest(ctx context.Context, app AppDetails) (Session, error)
}

// UnavailableLoader always fails with cause.
func UnavailableLoader(cause error) Loader {
	return func(context.Context) (Provider, error) {
		return nil, fmt.Errorf("%w: %w", ErrCapabilityUnavailable, cause)
	}
}
