package observe

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paramlink/paramlink/internal/bus"
	"github.com/paramlink/paramlink/internal/session"
)

type client struct {
	conn *websocket.Conn
	sub  *bus.Subscription[session.Event]
	log  *slog.Logger
}

// readPump discards inbound messages and ends the subscription when the
// observer goes away.
func (c *client) readPump() {
	defer c.sub.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends the status snapshot, then every event from the
// subscription in order. It owns all writes to the connection.
func (c *client) writePump(initial session.Status) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sub.Close()
		c.conn.Close()
	}()

	if err := c.write(statusMessage(initial)); err != nil {
		return
	}

	var reported uint64
	for {
		select {
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-c.sub.Ready():
		}

		// Nothing is pushed after close, so checking first and draining
		// second sends every buffered event.
		closed := c.sub.Closed()
		if dropped := c.sub.Dropped(); dropped > reported {
			msg := Message{Type: MsgLagged, Time: time.Now(), Dropped: dropped - reported}
			reported = dropped
			if err := c.write(msg); err != nil {
				return
			}
		}
		for {
			ev, ok := c.sub.TryRecv()
			if !ok {
				break
			}
			msg, err := eventMessage(ev)
			if err != nil {
				c.log.Warn("skipping event", "err", err)
				continue
			}
			if err := c.write(msg); err != nil {
				return
			}
		}
		if closed {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func originAllowed(origin, requestHost string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == requestHost {
		return true
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == local || strings.HasPrefix(host, local+":") {
			return true
		}
	}
	return false
}
