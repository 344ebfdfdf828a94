package models

import (
	"time"

	"github.com/holiman/uint256"
)

// CounterSnapshot is the published mirror of the contract state.
// A nil Value or empty LastCaller means unknown, which is distinct from zero.
type CounterSnapshot struct {
	Contract   string       `json:"contract"`
	Value      *uint256.Int `json:"value,omitempty"`
	LastCaller string       `json:"last_caller,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Version    uint64       `json:"version"`
}

func (s CounterSnapshot) ValueKnown() bool {
	return s.Value != nil
}

func (s CounterSnapshot) IsZero() bool {
	return s.Value != nil && s.Value.IsZero()
}

// ValueString renders the value in decimal, or fallback when unknown.
func (s CounterSnapshot) ValueString(fallback string) string {
	if s.Value == nil {
		return fallback
	}
	return s.Value.Dec()
}

const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateCallPending  = "call_pending"
	StateCallFailed   = "call_failed"
)

const (
	CallIdle           = "idle"
	CallAwaitingWallet = "awaiting_wallet"
	CallSubmitted      = "submitted"
	CallFailed         = "failed"
)

const (
	SessionSourcePrimary  = "primary"
	SessionSourceFallback = "fallback"
)

// Reasons attached to failed connects and calls.
const (
	ReasonCapabilityUnavailable = "capability_unavailable"
	ReasonUserCancelled         = "user_cancelled"
	ReasonConnectFailed         = "connect_failed"
	ReasonSubmissionError       = "submission_error"
	ReasonNotImplemented        = "not_implemented"
	ReasonCallInFlight          = "call_in_flight"
	ReasonInvalidState          = "invalid_state"
)

type Session struct {
	Address     string    `json:"address"`
	Source      string    `json:"source"`
	ConnectedAt time.Time `json:"connected_at"`
}

type PendingCall struct {
	FunctionName  string   `json:"function_name,omitempty"`
	Args          []string `json:"args,omitempty"`
	Status        string   `json:"status"`
	TransactionID string   `json:"transaction_id,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// WalletStatus is the orchestrator state as read by presentation.
type WalletStatus struct {
	State             string      `json:"state"`
	Session           *Session    `json:"session,omitempty"`
	Call              PendingCall `json:"call"`
	LastTransactionID string      `json:"last_transaction_id,omitempty"`
	ExplorerURL       string      `json:"explorer_url,omitempty"`
	Degraded          bool        `json:"degraded"`
	Reason            string      `json:"reason,omitempty"`
	Message           string      `json:"message,omitempty"`
}

func (s WalletStatus) Connected() bool {
	return s.Session != nil
}

func (s WalletStatus) Busy() bool {
	return s.State == StateCallPending || s.State == StateConnecting
}

// ServiceInfo describes what the backend is mirroring.
type ServiceInfo struct {
	Contract           string `json:"contract"`
	Network            string `json:"network"`
	APIURL             string `json:"api_url"`
	ContractExplorer   string `json:"contract_explorer_url"`
	PollIntervalMillis int64  `json:"poll_interval_ms"`
	Version            string `json:"version"`
}
