package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// heartbeat probes the link on a fixed interval through the shared writer.
// Probe bytes are raw and never reach the codec. The first failed probe is
// reported on failed and the monitor stops.
type heartbeat struct {
	interval time.Duration
	payload  []byte
	w        *writer
	done     <-chan struct{}
	failed   chan<- error
	log      *slog.Logger
}

func (h *heartbeat) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			err := h.tick()
			if err == nil {
				continue
			}
			if errors.Is(err, errStopped) {
				return
			}
			h.log.Warn("heartbeat failed", "err", err)
			select {
			case h.failed <- err:
			default:
			}
			return
		}
	}
}

// tick writes one probe and waits for the outcome.
func (h *heartbeat) tick() error {
	err := h.w.writeAndWait(h.payload, kindHeartbeat)
	if err == nil || errors.Is(err, errStopped) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrHeartbeatFailed, &IOError{Op: "write", Err: err})
}
