package session

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/paramlink/paramlink/internal/protocol"
)

type inbound struct {
	frame []byte
	err   error
}

// task owns one connection attempt: it dials, then multiplexes inbound
// frames, queued commands and the shutdown signal until one of them ends
// the session.
type task struct {
	id       string
	addr     string
	opts     Options
	commands <-chan protocol.Command
	shutdown <-chan struct{}
	emit     func(Event)
	log      *slog.Logger

	conn net.Conn
	done chan struct{}
}

// establish dials the endpoint and publishes Connected on success. A dial
// failure is returned as a *ConnectError and nothing is published.
func (t *task) establish(ctx context.Context) error {
	if t.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.DialTimeout)
		defer cancel()
	}

	conn, err := t.opts.dial(ctx, "tcp", t.addr)
	if err != nil {
		return &ConnectError{Addr: t.addr, Err: err}
	}
	t.conn = conn
	t.emit(Connected{Session: t.id, Addr: t.addr, At: time.Now()})
	return nil
}

// run serves the connection and returns the reason it ended: nil for a
// requested shutdown, otherwise the fatal error. The socket is closed and
// every helper goroutine has exited by the time run returns, so nothing
// can publish on behalf of this session afterwards.
func (t *task) run() error {
	t.done = make(chan struct{})
	frames := make(chan inbound)
	hbFailed := make(chan error, 1)
	w := newWriter(t.conn, t.opts.WriteTimeout, t.opts.CommandQueue, t.done, t.opts.Metrics)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.loop()
	}()
	go func() {
		defer wg.Done()
		t.readLoop(frames)
	}()
	if t.opts.HeartbeatInterval > 0 {
		hb := &heartbeat{
			interval: t.opts.HeartbeatInterval,
			payload:  t.opts.HeartbeatPayload,
			w:        w,
			done:     t.done,
			failed:   hbFailed,
			log:      t.log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			hb.run()
		}()
	}

	defer func() {
		close(t.done)
		t.conn.Close()
		wg.Wait()
	}()

	for {
		// A pending shutdown wins over any other ready source.
		select {
		case <-t.shutdown:
			return nil
		default:
		}

		select {
		case <-t.shutdown:
			return nil

		case in := <-frames:
			if in.err != nil {
				return &IOError{Op: "read", Err: in.err}
			}
			resp, err := protocol.DecodeResponse(in.frame)
			if err != nil {
				t.opts.Metrics.protocolError()
				t.log.Warn("bad frame from endpoint", "err", err, "frame", string(in.frame))
				return &ProtocolError{Frame: in.frame, Err: err}
			}
			t.opts.Metrics.frameReceived()
			t.log.Debug("frame received", "response", resp)
			t.emit(DataReceived{Session: t.id, Response: resp, At: time.Now()})

		case cmd := <-t.commands:
			frame, err := protocol.EncodeCommand(cmd)
			if err != nil {
				t.log.Warn("dropping command", "command", cmd, "err", err)
				continue
			}
			t.log.Debug("sending command", "command", cmd)
			select {
			case w.queue <- writeRequest{frame: frame, kind: kindCommand}:
			case <-t.shutdown:
				return nil
			case err := <-w.failed:
				return &IOError{Op: "write", Err: err}
			case err := <-hbFailed:
				return err
			}

		case err := <-w.failed:
			return &IOError{Op: "write", Err: err}

		case err := <-hbFailed:
			return err
		}
	}
}

// readLoop splits the byte stream into frames. Blank lines are keepalive
// traffic and are skipped before they reach the codec.
func (t *task) readLoop(out chan<- inbound) {
	scanner := bufio.NewScanner(t.conn)
	scanner.Buffer(make([]byte, 0, min(4096, t.opts.MaxFrameBytes)), t.opts.MaxFrameBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		frame := append([]byte(nil), line...)
		select {
		case out <- inbound{frame: frame}:
		case <-t.done:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case out <- inbound{err: err}:
	case <-t.done:
	}
}
