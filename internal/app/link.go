package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paramlink/paramlink/internal/bus"
	"github.com/paramlink/paramlink/internal/protocol"
	"github.com/paramlink/paramlink/internal/session"
)

// pollInterval paces the drain of the event subscription. The UI never
// blocks on the bus; it reads whatever has arrived on each tick.
const pollInterval = 50 * time.Millisecond

// Link is the session manager surface the UI uses. *session.Manager
// satisfies it.
type Link interface {
	Connect(ctx context.Context, addr string) error
	Send(ctx context.Context, cmd protocol.Command) error
	Disconnect()
	Subscribe() *bus.Subscription[session.Event]
}

// --- Bubble Tea messages ---

// pollMsg asks the model to drain its subscription.
type pollMsg struct{}

// connectResultMsg carries the outcome of a Connect call.
type connectResultMsg struct {
	Addr string
	Err  error
}

// sendResultMsg carries the outcome of queueing one command.
type sendResultMsg struct {
	Cmd protocol.Command
	Err error
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

// connect dials in a command goroutine so the update loop stays responsive
// while the dial is pending.
func connect(ctx context.Context, l Link, addr string) tea.Cmd {
	return func() tea.Msg {
		return connectResultMsg{Addr: addr, Err: l.Connect(ctx, addr)}
	}
}

func send(ctx context.Context, l Link, cmd protocol.Command) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{Cmd: cmd, Err: l.Send(ctx, cmd)}
	}
}
