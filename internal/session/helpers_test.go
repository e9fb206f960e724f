package session

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/paramlink/paramlink/internal/bus"
)

// listen starts a TCP endpoint on a random port and runs handle for every
// accepted connection.
func listen(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	return ln.Addr().String()
}

// replyTo answers each non-blank line with reply(line); an empty reply
// writes nothing.
func replyTo(reply func(line string) string) func(net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if out := reply(line); out != "" {
				if _, err := conn.Write([]byte(out)); err != nil {
					return
				}
			}
		}
	}
}

func testOptions() Options {
	return Options{
		DialTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		BusCapacity:  256,
	}
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts)
	t.Cleanup(func() { m.Close() })
	return m
}

// next waits for one event.
func next(t *testing.T, sub *bus.Subscription[Event]) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("waiting for event: %v", err)
	}
	return ev
}

func expectConnected(t *testing.T, sub *bus.Subscription[Event]) Connected {
	t.Helper()
	ev := next(t, sub)
	c, ok := ev.(Connected)
	if !ok {
		t.Fatalf("got %T %+v, want Connected", ev, ev)
	}
	return c
}

func expectData(t *testing.T, sub *bus.Subscription[Event]) DataReceived {
	t.Helper()
	ev := next(t, sub)
	d, ok := ev.(DataReceived)
	if !ok {
		t.Fatalf("got %T %+v, want DataReceived", ev, ev)
	}
	return d
}

// expectDisconnected skips DataReceived events and returns the
// Disconnected that ends the session.
func expectDisconnected(t *testing.T, sub *bus.Subscription[Event]) Disconnected {
	t.Helper()
	for {
		switch ev := next(t, sub).(type) {
		case Disconnected:
			return ev
		case DataReceived:
			continue
		default:
			t.Fatalf("got %T %+v while waiting for Disconnected", ev, ev)
		}
	}
}

// expectQuiet asserts no event arrives within d.
func expectQuiet(t *testing.T, sub *bus.Subscription[Event], d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	ev, err := sub.Recv(ctx)
	if err == nil {
		t.Fatalf("unexpected event %T %+v", ev, ev)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// recordingConn captures every Write call as one entry, and can be told to
// fail writes.
type recordingConn struct {
	net.Conn

	mu      sync.Mutex
	writes  [][]byte
	failErr error
	failIf  func([]byte) bool
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.failErr != nil && (c.failIf == nil || c.failIf(p)) {
		err := c.failErr
		c.mu.Unlock()
		return 0, err
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	c.mu.Unlock()
	return c.Conn.Write(p)
}

func (c *recordingConn) failWrites(err error, match func([]byte) bool) {
	c.mu.Lock()
	c.failErr = err
	c.failIf = match
	c.mu.Unlock()
}

func (c *recordingConn) recorded() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// recordingDialer hands out recordingConns and remembers the last one.
type recordingDialer struct {
	mu   sync.Mutex
	last *recordingConn
}

func (d *recordingDialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	rc := &recordingConn{Conn: conn}
	d.mu.Lock()
	d.last = rc
	d.mu.Unlock()
	return rc, nil
}

func (d *recordingDialer) conn() *recordingConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
