package tui

import (
	"context"
	"strings"
	"testing"

	"aetos-counter/go-backend/pkg/models"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/holiman/uint256"
)

type fakeService struct {
	snap    models.CounterSnapshot
	status  models.WalletStatus
	updates chan models.CounterSnapshot
	calls   []string
}

func newFakeService() *fakeService {
	return &fakeService{
		snap:    models.CounterSnapshot{Contract: "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV.counter"},
		status:  models.WalletStatus{State: models.StateDisconnected, Call: models.PendingCall{Status: models.CallIdle}},
		updates: make(chan models.CounterSnapshot, 1),
	}
}

func (f *fakeService) Info() models.ServiceInfo {
	return models.ServiceInfo{
		Contract:         f.snap.Contract,
		Network:          "mainnet",
		ContractExplorer: "https://explorer.hiro.so/address/SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV.counter?chain=mainnet",
	}
}
func (f *fakeService) CounterState() models.CounterSnapshot { return f.snap }
func (f *fakeService) RefreshCounter(context.Context) models.CounterSnapshot {
	f.calls = append(f.calls, "refresh")
	return f.snap
}
func (f *fakeService) SubscribeCounter() (<-chan models.CounterSnapshot, func()) {
	return f.updates, func() {}
}
func (f *fakeService) WalletStatus() models.WalletStatus { return f.status }
func (f *fakeService) ConnectWallet(context.Context) models.WalletStatus {
	f.calls = append(f.calls, "connect")
	f.status.State = models.StateConnected
	f.status.Session = &models.Session{Address: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7", Source: models.SessionSourcePrimary}
	return f.status
}
func (f *fakeService) DisconnectWallet() models.WalletStatus {
	f.calls = append(f.calls, "disconnect")
	f.status = models.WalletStatus{State: models.StateDisconnected, Call: models.PendingCall{Status: models.CallIdle}}
	return f.status
}
func (f *fakeService) submit(name string) models.WalletStatus {
	f.calls = append(f.calls, name)
	f.status.State = models.StateConnected
	f.status.Call = models.PendingCall{FunctionName: name, Status: models.CallSubmitted, TransactionID: "0xabc"}
	f.status.LastTransactionID = "0xabc"
	f.status.ExplorerURL = "https://explorer.hiro.so/txid/0xabc?chain=mainnet"
	return f.status
}
func (f *fakeService) Increment(context.Context) models.WalletStatus { return f.submit("increment") }
func (f *fakeService) Decrement(context.Context) models.WalletStatus { return f.submit("decrement") }
func (f *fakeService) IncrementBy(_ context.Context, n uint64) models.WalletStatus {
	if n != incrementByStep {
		panic("unexpected step")
	}
	return f.submit("increment-by")
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command, feeding its message back.
func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	next, cmd := m.Update(keyRunes(key))
	m = next.(Model)
	if cmd == nil {
		return m
	}
	if !m.busy() && key != "r" {
		t.Fatalf("expected waiting state while %q is in flight", key)
	}
	if !strings.Contains(m.View(), "Waiting for wallet...") && key != "r" {
		t.Fatalf("expected waiting notice in view")
	}
	next, _ = m.Update(cmd())
	return next.(Model)
}

func TestViewShowsUnknownValue(t *testing.T) {
	m := New(context.Background(), newFakeService())
	view := m.View()
	if !strings.Contains(view, "...") {
		t.Fatalf("expected unknown marker, got:\n%s", view)
	}
	if !strings.Contains(view, "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV.counter") {
		t.Fatalf("expected contract id in view")
	}
	if !strings.Contains(view, "Connect Wallet") {
		t.Fatalf("expected connect action")
	}
}

func TestSnapshotUpdatesValueAndCaller(t *testing.T) {
	svc := newFakeService()
	m := New(context.Background(), svc)

	next, cmd := m.Update(snapshotMsg(models.CounterSnapshot{
		Contract:   svc.snap.Contract,
		Value:      uint256.NewInt(42),
		LastCaller: "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV",
		Version:    2,
	}))
	if cmd == nil {
		t.Fatal("expected to keep listening for snapshots")
	}
	m = next.(Model)
	view := m.View()
	if !strings.Contains(view, "42") {
		t.Fatalf("expected value in view:\n%s", view)
	}
	if !strings.Contains(view, "SP312F1K...62SV") {
		t.Fatalf("expected shortened caller in view:\n%s", view)
	}

	next, _ = m.Update(snapshotMsg(models.CounterSnapshot{Value: uint256.NewInt(1), Version: 1}))
	if got := next.(Model).snap.ValueString(""); got != "42" {
		t.Fatalf("older snapshot must not replace newer one, got %s", got)
	}
}

func TestConnectThenIncrement(t *testing.T) {
	svc := newFakeService()
	m := New(context.Background(), svc)

	m = press(t, m, "+")
	if len(svc.calls) != 0 {
		t.Fatalf("increment must be ignored while disconnected, got %v", svc.calls)
	}

	m = press(t, m, "c")
	if m.status.Session == nil {
		t.Fatal("expected session after connect")
	}
	if !strings.Contains(m.View(), "SP2J6ZY4...9EJ7") {
		t.Fatalf("expected shortened session address:\n%s", m.View())
	}

	m = press(t, m, "+")
	m = press(t, m, "]")
	if got := strings.Join(svc.calls, ","); got != "connect,increment,increment-by" {
		t.Fatalf("unexpected calls %s", got)
	}
	view := m.View()
	if !strings.Contains(view, "Transaction submitted!") || !strings.Contains(view, "txid/0xabc") {
		t.Fatalf("expected explorer link:\n%s", view)
	}

	m = press(t, m, "d")
	if m.status.Session != nil {
		t.Fatal("expected disconnect")
	}
}

func TestDecrementDisabledAtZero(t *testing.T) {
	svc := newFakeService()
	svc.snap.Value = uint256.NewInt(0)
	m := New(context.Background(), svc)
	m = press(t, m, "c")

	m = press(t, m, "-")
	if len(svc.calls) != 1 {
		t.Fatalf("decrement must be disabled at zero, got %v", svc.calls)
	}

	next, _ := m.Update(snapshotMsg(models.CounterSnapshot{Value: uint256.NewInt(3), Version: 1}))
	m = next.(Model)
	m = press(t, m, "-")
	if svc.calls[len(svc.calls)-1] != "decrement" {
		t.Fatalf("expected decrement once value is positive, got %v", svc.calls)
	}
}

func TestActionsDisabledWhilePending(t *testing.T) {
	svc := newFakeService()
	m := New(context.Background(), svc)
	m = press(t, m, "c")

	next, cmd := m.Update(keyRunes("+"))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected submit command")
	}
	next, second := m.Update(keyRunes("+"))
	if second != nil {
		t.Fatal("second submit must be ignored while the first is pending")
	}
	m = next.(Model)
	if m.canSubmit() {
		t.Fatal("expected submit disabled while waiting")
	}
}

func TestDisconnectAbandonsOpenConnectPrompt(t *testing.T) {
	svc := newFakeService()
	m := New(context.Background(), svc)

	next, cmd := m.Update(keyRunes("c"))
	m = next.(Model)
	if cmd == nil || !m.busy() {
		t.Fatal("expected connect prompt in flight")
	}
	if !strings.Contains(m.View(), "Cancel") {
		t.Fatalf("expected cancel action while waiting:\n%s", m.View())
	}

	next, _ = m.Update(keyRunes("d"))
	m = next.(Model)
	if got := strings.Join(svc.calls, ","); got != "disconnect" {
		t.Fatalf("expected disconnect while connecting, got %s", got)
	}
	if m.busy() {
		t.Fatal("expected waiting cleared after disconnect")
	}
	if m.status.State != models.StateDisconnected {
		t.Fatalf("unexpected state %q", m.status.State)
	}
}

func TestDisconnectIgnoredWhenIdle(t *testing.T) {
	svc := newFakeService()
	m := New(context.Background(), svc)
	m = press(t, m, "d")
	if len(svc.calls) != 0 {
		t.Fatalf("disconnect must be a no-op without a session or prompt, got %v", svc.calls)
	}
}

func TestConnectNoteShown(t *testing.T) {
	svc := newFakeService()
	svc.status.Reason = models.ReasonCapabilityUnavailable
	svc.status.Message = "no wallet bridge configured"
	m := New(context.Background(), svc)
	if !strings.Contains(m.View(), "Note: no wallet bridge configured") {
		t.Fatalf("expected capability note:\n%s", m.View())
	}
}

func TestQuitKeys(t *testing.T) {
	m := New(context.Background(), newFakeService())
	for _, key := range []tea.KeyMsg{keyRunes("q"), {Type: tea.KeyCtrlC}} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("expected quit command for %s", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("expected QuitMsg for %s", key.String())
		}
	}
}

func TestShortenAddress(t *testing.T) {
	if got := ShortenAddress("SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV"); got != "SP312F1K...62SV" {
		t.Fatalf("unexpected %q", got)
	}
	if got := ShortenAddress("short"); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}
