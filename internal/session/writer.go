package session

import (
	"net"
	"time"
)

const (
	kindCommand   = "command"
	kindHeartbeat = "heartbeat"
)

type writeRequest struct {
	frame []byte
	kind  string
	// result receives the write outcome when not nil. Requests without a
	// result channel report failures on writer.failed instead.
	result chan error
}

// writer is the only goroutine that writes to the socket. Commands and
// heartbeat probes are queued to it, so two frames can never interleave
// on the wire; frames go out in queue order.
type writer struct {
	conn    net.Conn
	timeout time.Duration
	queue   chan writeRequest
	failed  chan error
	done    <-chan struct{}
	metrics *Metrics
}

func newWriter(conn net.Conn, timeout time.Duration, queueLen int, done <-chan struct{}, metrics *Metrics) *writer {
	return &writer{
		conn:    conn,
		timeout: timeout,
		queue:   make(chan writeRequest, queueLen),
		failed:  make(chan error, 1),
		done:    done,
		metrics: metrics,
	}
}

// loop serves the queue until done is closed. After the first failed write
// every later request fails with the same error without touching the socket.
func (w *writer) loop() {
	var broken error
	for {
		select {
		case <-w.done:
			return
		case req := <-w.queue:
			err := broken
			if err == nil {
				err = w.write(req)
				broken = err
			}
			if req.result != nil {
				req.result <- err
				continue
			}
			if err != nil {
				select {
				case w.failed <- err:
				default:
				}
			}
		}
	}
}

func (w *writer) write(req writeRequest) error {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return err
		}
	}
	if _, err := w.conn.Write(req.frame); err != nil {
		return err
	}
	w.metrics.frameSent(req.kind)
	return nil
}

// writeAndWait queues frame and blocks until it has been written or the
// session stops.
func (w *writer) writeAndWait(frame []byte, kind string) error {
	req := writeRequest{frame: frame, kind: kind, result: make(chan error, 1)}
	select {
	case w.queue <- req:
	case <-w.done:
		return errStopped
	}
	select {
	case err := <-req.result:
		return err
	case <-w.done:
		return errStopped
	}
}
