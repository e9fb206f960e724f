package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/paramlink/paramlink/internal/protocol"
)

func TestConnectThenPeerCloses(t *testing.T) {
	addr := listen(t, func(conn net.Conn) { conn.Close() })
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()

	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c := expectConnected(t, sub)
	ev := next(t, sub)
	d, ok := ev.(Disconnected)
	if !ok {
		t.Fatalf("got %T %+v, want Disconnected", ev, ev)
	}
	if d.Session != c.Session {
		t.Errorf("Disconnected.Session = %q, want %q", d.Session, c.Session)
	}
	var ioErr *IOError
	if !errors.As(d.Err, &ioErr) || ioErr.Op != "read" {
		t.Fatalf("Disconnected.Err = %v, want read IOError", d.Err)
	}
	if !errors.Is(d.Err, io.EOF) {
		t.Errorf("Disconnected.Err = %v, want EOF", d.Err)
	}
	expectQuiet(t, sub, 50*time.Millisecond)

	st := m.Status()
	if st.State != StateDisconnected || st.Err == nil {
		t.Errorf("Status() = %+v, want disconnected with reason", st)
	}
}

func TestListParametersScenario(t *testing.T) {
	addr := listen(t, replyTo(func(line string) string {
		if line == `{"type":"ListParameters"}` {
			return `{"type":"Parameters","0":{"gain":3.5,"offset":-1.0}}` + "\n"
		}
		return ""
	}))
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()

	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectConnected(t, sub)

	if err := m.Send(context.Background(), protocol.ListParameters{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	d := expectData(t, sub)
	want := protocol.Parameters{"gain": 3.5, "offset": -1.0}
	if !reflect.DeepEqual(d.Response, want) {
		t.Errorf("DataReceived.Response = %v, want %v", d.Response, want)
	}
}

func TestConnectedPrecedesData(t *testing.T) {
	// The endpoint pushes data immediately, before any command.
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		for i := 0; i < 5; i++ {
			conn.Write([]byte(`{"type":"Done"}` + "\n"))
		}
		io.Copy(io.Discard, conn)
	})
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()

	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectConnected(t, sub)
	for i := 0; i < 5; i++ {
		if d := expectData(t, sub); d.Response != (protocol.Done{}) {
			t.Errorf("Response = %v, want Done", d.Response)
		}
	}
}

func TestDisconnectWithoutSession(t *testing.T) {
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()

	m.Disconnect()
	m.Disconnect()

	expectQuiet(t, sub, 50*time.Millisecond)
	if st := m.Status(); st.State != StateIdle {
		t.Errorf("Status().State = %v, want idle", st.State)
	}
}

func TestCleanDisconnectAndReconnect(t *testing.T) {
	addr := listen(t, replyTo(func(string) string { return "" }))
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()

	for round := 0; round < 2; round++ {
		if err := m.Connect(context.Background(), addr); err != nil {
			t.Fatalf("round %d Connect: %v", round, err)
		}
		c := expectConnected(t, sub)
		if st := m.Status(); st.State != StateConnected || st.Session != c.Session {
			t.Fatalf("round %d Status() = %+v", round, st)
		}

		m.Disconnect()
		m.Disconnect()
		d := expectDisconnected(t, sub)
		if d.Err != nil {
			t.Errorf("round %d Disconnected.Err = %v, want nil", round, d.Err)
		}
		if d.Session != c.Session {
			t.Errorf("round %d session mismatch", round)
		}
	}
	expectQuiet(t, sub, 50*time.Millisecond)
}

func TestAlreadyConnected(t *testing.T) {
	addr := listen(t, replyTo(func(string) string { return "" }))
	m := newTestManager(t, testOptions())

	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Connect(context.Background(), addr); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect err = %v, want ErrAlreadyConnected", err)
	}
}

func TestSendNotConnected(t *testing.T) {
	m := newTestManager(t, testOptions())
	if err := m.Send(context.Background(), protocol.ListSignals{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send err = %v, want ErrNotConnected", err)
	}
}

func TestSendInvalidCommandKeepsSession(t *testing.T) {
	addr := listen(t, replyTo(func(line string) string {
		if strings.Contains(line, "ListParameters") {
			return `{"type":"Parameters","0":{}}` + "\n"
		}
		return ""
	}))
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()
	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectConnected(t, sub)

	err := m.Send(context.Background(), protocol.SetParameterValue{Name: "gain", Value: math.NaN()})
	if !errors.Is(err, protocol.ErrInvalidCommand) {
		t.Fatalf("Send(NaN) err = %v, want ErrInvalidCommand", err)
	}

	if err := m.Send(context.Background(), protocol.ListParameters{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	expectData(t, sub)
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := newTestManager(t, testOptions())
	sub := m.Subscribe()

	err = m.Connect(context.Background(), addr)
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect err = %v, want *ConnectError", err)
	}
	if connErr.Addr != addr {
		t.Errorf("ConnectError.Addr = %q, want %q", connErr.Addr, addr)
	}
	expectQuiet(t, sub, 50*time.Millisecond)

	st := m.Status()
	if st.State != StateIdle || !errors.As(st.Err, &connErr) {
		t.Errorf("Status() = %+v, want idle with ConnectError", st)
	}

	// The failed attempt must not block a new one.
	good := listen(t, replyTo(func(string) string { return "" }))
	if err := m.Connect(context.Background(), good); err != nil {
		t.Fatalf("Connect after failure: %v", err)
	}
	expectConnected(t, sub)
}

func TestDisconnectAbandonsDial(t *testing.T) {
	started := make(chan struct{})
	opts := testOptions()
	opts.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := newTestManager(t, opts)
	sub := m.Subscribe()

	errc := make(chan error, 1)
	go func() { errc <- m.Connect(context.Background(), "192.0.2.1:5000") }()

	<-started
	if st := m.Status(); st.State != StateConnecting {
		t.Errorf("Status().State = %v, want connecting", st.State)
	}
	if err := m.Connect(context.Background(), "192.0.2.1:5000"); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Connect while connecting err = %v, want ErrAlreadyConnected", err)
	}
	m.Disconnect()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Connect err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
	expectQuiet(t, sub, 50*time.Millisecond)
}

func TestProtocolErrorEndsSession(t *testing.T) {
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		conn.Write([]byte(`{"type":"Done"}` + "\n" + "not json\n" + `{"type":"Done"}` + "\n"))
		io.Copy(io.Discard, conn)
	})
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()
	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	expectConnected(t, sub)
	expectData(t, sub)
	ev := next(t, sub)
	d, ok := ev.(Disconnected)
	if !ok {
		t.Fatalf("got %T %+v, want Disconnected", ev, ev)
	}
	var protoErr *ProtocolError
	if !errors.As(d.Err, &protoErr) {
		t.Fatalf("Disconnected.Err = %v, want *ProtocolError", d.Err)
	}
	if !errors.Is(d.Err, protocol.ErrMalformedFrame) {
		t.Errorf("Disconnected.Err = %v, want ErrMalformedFrame", d.Err)
	}
	if string(protoErr.Frame) != "not json" {
		t.Errorf("ProtocolError.Frame = %q", protoErr.Frame)
	}
	expectQuiet(t, sub, 50*time.Millisecond)
}

func TestOversizedFrameEndsSession(t *testing.T) {
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		conn.Write([]byte(`{"type":"Parameters","0":{"` + strings.Repeat("x", 500) + `":1}}` + "\n"))
		io.Copy(io.Discard, conn)
	})
	opts := testOptions()
	opts.MaxFrameBytes = 128
	m := newTestManager(t, opts)
	sub := m.Subscribe()
	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	expectConnected(t, sub)
	d := expectDisconnected(t, sub)
	if !errors.Is(d.Err, bufio.ErrTooLong) {
		t.Errorf("Disconnected.Err = %v, want bufio.ErrTooLong", d.Err)
	}
}

func TestBlankLinesSkipped(t *testing.T) {
	addr := listen(t, func(conn net.Conn) {
		defer conn.Close()
		conn.Write([]byte("\n\r\n   \n" + `{"type":"Done"}` + "\n"))
		io.Copy(io.Discard, conn)
	})
	m := newTestManager(t, testOptions())
	sub := m.Subscribe()
	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectConnected(t, sub)
	expectData(t, sub)
	expectQuiet(t, sub, 50*time.Millisecond)
}

func TestCloseEndsSessionAndBus(t *testing.T) {
	addr := listen(t, replyTo(func(string) string { return "" }))
	m := NewManager(testOptions())
	sub := m.Subscribe()
	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectConnected(t, sub)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d := expectDisconnected(t, sub)
	if d.Err != nil {
		t.Errorf("Disconnected.Err = %v, want nil", d.Err)
	}
	if !sub.Closed() {
		t.Error("subscription still open after Close")
	}
	if err := m.Connect(context.Background(), addr); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Connect after Close err = %v, want ErrManagerClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWait(t *testing.T) {
	addr := listen(t, func(conn net.Conn) {
		time.Sleep(20 * time.Millisecond)
		conn.Close()
	})
	m := newTestManager(t, testOptions())
	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait without session: %v", err)
	}
	if err := m.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if st := m.Status(); st.State != StateDisconnected {
		t.Errorf("Status().State = %v, want disconnected", st.State)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err   error
		label string
	}{
		{nil, "clean"},
		{&IOError{Op: "read", Err: io.EOF}, "io"},
		{&ProtocolError{Err: protocol.ErrMalformedFrame}, "protocol"},
		{errors.Join(ErrHeartbeatFailed, &IOError{Op: "write", Err: io.ErrClosedPipe}), "heartbeat"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := reasonLabel(tt.err); got != tt.label {
			t.Errorf("reasonLabel(%v) = %q, want %q", tt.err, got, tt.label)
		}
	}
	if Reason(nil) != "disconnected" {
		t.Errorf("Reason(nil) = %q", Reason(nil))
	}
	if got := Reason(&IOError{Op: "read", Err: io.EOF}); got != "io error: read: EOF" {
		t.Errorf("Reason(EOF) = %q", got)
	}
}
