// Package session keeps a single TCP link to a control endpoint. A Manager
// dials on request, runs one session task per connection, probes the link
// with heartbeats, and republishes lifecycle and data events on a lossy bus
// so observers never touch the socket.
package session

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paramlink/paramlink/internal/bus"
	"github.com/paramlink/paramlink/internal/config"
	"github.com/paramlink/paramlink/internal/logging"
	"github.com/paramlink/paramlink/internal/protocol"
)

// DialFunc opens a connection. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options configures a Manager. Zero values fall back to the defaults in
// internal/config, except HeartbeatInterval where zero disables probing.
type Options struct {
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxFrameBytes     int
	HeartbeatInterval time.Duration
	HeartbeatPayload  []byte
	BusCapacity       int
	CommandQueue      int

	// Dial replaces the TCP dialer, mainly for tests.
	Dial    DialFunc
	Logger  *slog.Logger
	Metrics *Metrics
}

// OptionsFromConfig maps the file configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DialTimeout:       cfg.Endpoint.DialTimeout,
		WriteTimeout:      cfg.Endpoint.WriteTimeout,
		MaxFrameBytes:     cfg.Endpoint.MaxFrameBytes,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatPayload:  []byte(cfg.Heartbeat.Payload),
		BusCapacity:       cfg.Session.BusCapacity,
		CommandQueue:      cfg.Session.CommandQueue,
	}
}

func (o Options) withDefaults() Options {
	def := config.Default()
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = def.Endpoint.MaxFrameBytes
	}
	if len(o.HeartbeatPayload) == 0 {
		o.HeartbeatPayload = []byte(def.Heartbeat.Payload)
	}
	if o.BusCapacity <= 0 {
		o.BusCapacity = def.Session.BusCapacity
	}
	if o.CommandQueue <= 0 {
		o.CommandQueue = def.Session.CommandQueue
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

func (o Options) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if o.Dial != nil {
		return o.Dial(ctx, network, addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// live is the manager's handle on the current session. It exists from the
// start of Connect until the session's Disconnected is published or the
// dial fails.
type live struct {
	id       string
	addr     string
	commands chan protocol.Command
	shutdown chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func (l *live) stop() {
	l.stopOnce.Do(func() {
		close(l.shutdown)
		l.cancel()
	})
}

// Manager exposes Connect, Send and Disconnect and owns at most one
// session at a time. Its Status changes only as events are published.
type Manager struct {
	opts Options
	bus  *bus.Bus[Event]
	log  *slog.Logger

	mu     sync.Mutex
	status Status
	cur    *live
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates an idle manager.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts: opts,
		bus:  bus.New[Event](opts.BusCapacity),
		log:  opts.Logger,
	}
}

// Subscribe returns a new cursor on the event bus. Close it when done.
func (m *Manager) Subscribe() *bus.Subscription[Event] {
	return m.bus.Subscribe()
}

// Status returns the current state snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect dials addr and, on success, starts the session in the
// background. It blocks for the dial only; callers on a UI thread should
// run it in a goroutine. A dial failure is returned as a *ConnectError and
// leaves the manager idle.
func (m *Manager) Connect(ctx context.Context, addr string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.cur != nil {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	dialCtx, cancel := context.WithCancel(ctx)
	l := &live{
		id:       uuid.NewString(),
		addr:     addr,
		commands: make(chan protocol.Command, m.opts.CommandQueue),
		shutdown: make(chan struct{}),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.cur = l
	m.status = Status{State: StateConnecting, Session: l.id, Addr: addr}
	m.wg.Add(1)
	m.mu.Unlock()

	log := m.log.With("session_id", l.id, "addr", addr)
	t := &task{
		id:       l.id,
		addr:     addr,
		opts:     m.opts,
		commands: l.commands,
		shutdown: l.shutdown,
		emit:     m.publish,
		log:      log,
	}

	log.Info("connecting")
	err := t.establish(dialCtx)
	m.opts.Metrics.connectResult(err)
	if err != nil {
		log.Info("connect failed", "err", err)
		m.mu.Lock()
		m.cur = nil
		m.status = Status{State: StateIdle, Addr: addr, Err: err}
		m.mu.Unlock()
		cancel()
		close(l.done)
		m.wg.Done()
		return err
	}
	log.Info("connected")

	go func() {
		defer m.wg.Done()
		defer close(l.done)
		defer cancel()

		reason := t.run()
		m.opts.Metrics.disconnected(reason)
		log.Info("disconnected", "reason", Reason(reason))
		m.publish(Disconnected{Session: l.id, Err: reason, At: time.Now()})
	}()
	return nil
}

// Send queues cmd for the current session. It returns ErrNotConnected when
// there is no connected session, and protocol.ErrInvalidCommand for values
// that cannot be encoded. It blocks only while the command queue is full.
func (m *Manager) Send(ctx context.Context, cmd protocol.Command) error {
	if _, err := protocol.EncodeCommand(cmd); err != nil {
		return err
	}

	m.mu.Lock()
	l := m.cur
	connected := m.status.State == StateConnected
	m.mu.Unlock()
	if l == nil || !connected {
		return ErrNotConnected
	}

	select {
	case <-l.done:
		return ErrNotConnected
	case <-l.shutdown:
		return ErrNotConnected
	default:
	}

	select {
	case l.commands <- cmd:
		return nil
	case <-l.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect asks the current session to shut down, or abandons a dial in
// progress. Without a session it does nothing. It does not wait; the
// session's Disconnected event marks completion.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	l := m.cur
	m.mu.Unlock()
	if l != nil {
		l.stop()
	}
}

// Wait blocks until no session exists or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	l := m.cur
	m.mu.Unlock()
	if l == nil {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects, waits for the session to end and closes the bus.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	l := m.cur
	m.mu.Unlock()

	if l != nil {
		l.stop()
	}
	m.wg.Wait()
	m.bus.Close()
	return nil
}

// publish applies ev to the status and broadcasts it. Both happen under
// the manager lock so Status never disagrees with the last published event.
func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := ev.(type) {
	case Connected:
		m.status = Status{State: StateConnected, Session: e.Session, Addr: e.Addr}
	case Disconnected:
		addr := m.status.Addr
		if m.cur != nil && m.cur.id == e.Session {
			addr = m.cur.addr
			m.cur = nil
		}
		m.status = Status{State: StateDisconnected, Session: e.Session, Addr: addr, Err: e.Err}
	}
	m.bus.Publish(ev)
}
