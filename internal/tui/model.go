// Package tui is a terminal front end for the counter service.
package tui

import (
	"context"
	"fmt"
	"strings"

	"aetos-counter/go-backend/pkg/models"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const incrementByStep = 10

// Service is the part of the backend the terminal UI drives.
type Service interface {
	Info() models.ServiceInfo
	CounterState() models.CounterSnapshot
	RefreshCounter(ctx context.Context) models.CounterSnapshot
	SubscribeCounter() (<-chan models.CounterSnapshot, func())
	WalletStatus() models.WalletStatus
	ConnectWallet(ctx context.Context) models.WalletStatus
	DisconnectWallet() models.WalletStatus
	Increment(ctx context.Context) models.WalletStatus
	Decrement(ctx context.Context) models.WalletStatus
	IncrementBy(ctx context.Context, n uint64) models.WalletStatus
}

type snapshotMsg models.CounterSnapshot

type statusMsg models.WalletStatus

type subscriptionClosedMsg struct{}

type Model struct {
	ctx     context.Context
	svc     Service
	info    models.ServiceInfo
	snap    models.CounterSnapshot
	status  models.WalletStatus
	updates <-chan models.CounterSnapshot
	cancel  func()

	// waiting is set while a wallet prompt is open on our behalf.
	waiting bool
	spinner spinner.Model
	styles  Styles
	width   int
}

func New(ctx context.Context, svc Service) Model {
	updates, cancel := svc.SubscribeCounter()
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	styles := DefaultStyles()
	s.Style = styles.Waiting
	return Model{
		ctx:     ctx,
		svc:     svc,
		info:    svc.Info(),
		snap:    svc.CounterState(),
		status:  svc.WalletStatus(),
		updates: updates,
		cancel:  cancel,
		spinner: s,
		styles:  styles,
	}
}

// Close releases the snapshot subscription.
func (m Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.updates))
}

func waitForSnapshot(ch <-chan models.CounterSnapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case snapshotMsg:
		if msg.Version >= m.snap.Version {
			m.snap = models.CounterSnapshot(msg)
		}
		return m, waitForSnapshot(m.updates)
	case subscriptionClosedMsg:
		return m, nil
	case statusMsg:
		m.waiting = false
		m.status = models.WalletStatus(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "r":
		return m, m.refresh()
	case "c":
		if m.status.Connected() || m.busy() {
			return m, nil
		}
		return m.dispatch(m.svc.ConnectWallet)
	case "d":
		// Also abandons an open connect or submit prompt.
		if !m.status.Connected() && !m.busy() {
			return m, nil
		}
		m.status = m.svc.DisconnectWallet()
		m.waiting = false
		return m, nil
	case "+", "=":
		if !m.canSubmit() {
			return m, nil
		}
		return m.dispatch(m.svc.Increment)
	case "-", "_":
		if !m.canDecrement() {
			return m, nil
		}
		return m.dispatch(m.svc.Decrement)
	case "]", "t":
		if !m.canSubmit() {
			return m, nil
		}
		return m.dispatch(func(ctx context.Context) models.WalletStatus {
			return m.svc.IncrementBy(ctx, incrementByStep)
		})
	}
	return m, nil
}

func (m Model) dispatch(op func(context.Context) models.WalletStatus) (tea.Model, tea.Cmd) {
	m.waiting = true
	ctx := m.ctx
	return m, func() tea.Msg {
		return statusMsg(op(ctx))
	}
}

func (m Model) refresh() tea.Cmd {
	ctx := m.ctx
	svc := m.svc
	return func() tea.Msg {
		return snapshotMsg(svc.RefreshCounter(ctx))
	}
}

func (m Model) busy() bool {
	return m.waiting || m.status.Busy()
}

func (m Model) canSubmit() bool {
	return m.status.Connected() && !m.busy()
}

func (m Model) canDecrement() bool {
	return m.canSubmit() && !m.snap.IsZero()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Aetos Counter"))
	b.WriteString("\n")
	b.WriteString(m.styles.Subtle.Render(fmt.Sprintf("A simple on-chain counter on Stacks %s", m.info.Network)))
	b.WriteString("\n")
	b.WriteString(m.styles.Subtle.Render(m.info.Contract))
	b.WriteString("\n\n")

	card := m.styles.Subtle.Render("Current Count") + "\n" + m.styles.Value.Render(m.snap.ValueString("..."))
	if m.snap.LastCaller != "" {
		card += "\n" + m.styles.Subtle.Render("Last updated by: "+ShortenAddress(m.snap.LastCaller))
	}
	b.WriteString(m.styles.Card.Render(card))
	b.WriteString("\n\n")

	if m.status.Session == nil {
		b.WriteString(m.key("c", "Connect Wallet", !m.busy()))
		if m.busy() {
			b.WriteString("  ")
			b.WriteString(m.key("d", "Cancel", true))
		}
		b.WriteString("\n")
		if m.status.Reason != "" && m.status.Message != "" {
			b.WriteString(m.styles.Warning.Render(fmt.Sprintf("Note: %s. You may need to restart after starting a wallet.", m.status.Message)))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(fmt.Sprintf("Connected: %s ", ShortenAddress(m.status.Session.Address)))
		if m.status.Session.Source == models.SessionSourceFallback {
			b.WriteString(m.styles.Warning.Render("(read-only fallback) "))
		}
		b.WriteString(m.key("d", "Disconnect", true))
		b.WriteString("\n")
		b.WriteString(m.key("-", "-", m.canDecrement()))
		b.WriteString("  ")
		b.WriteString(m.key("+", "+", m.canSubmit()))
		b.WriteString("  ")
		b.WriteString(m.key("]", fmt.Sprintf("+%d", incrementByStep), m.canSubmit()))
		b.WriteString("\n")
	}

	if m.busy() {
		b.WriteString(m.spinner.View())
		b.WriteString(m.styles.Waiting.Render(" Waiting for wallet..."))
		b.WriteString("\n")
	}
	if m.status.Call.Status == models.CallFailed && m.status.Call.Error != "" {
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("%s failed: %s", m.status.Call.FunctionName, m.status.Call.Error)))
		b.WriteString("\n")
	}
	if m.status.ExplorerURL != "" {
		b.WriteString(m.styles.Success.Render("Transaction submitted!"))
		b.WriteString("\n")
		b.WriteString(m.styles.Subtle.Render("View on Explorer: " + m.status.ExplorerURL))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.info.ContractExplorer != "" {
		b.WriteString(m.styles.Subtle.Render("Contract: " + m.info.ContractExplorer))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Subtle.Render("r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) key(k, label string, enabled bool) string {
	if !enabled {
		return m.styles.Disabled.Render("[" + k + "] " + label)
	}
	return m.styles.Key.Render("["+k+"]") + " " + label
}

// ShortenAddress renders the first 8 and last 4 characters of an address.
func ShortenAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-4:]
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, svc Service) error {
	m := New(ctx, svc)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
