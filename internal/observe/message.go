package observe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paramlink/paramlink/internal/protocol"
	"github.com/paramlink/paramlink/internal/session"
)

type MessageType string

const (
	MsgStatus       MessageType = "status"
	MsgConnected    MessageType = "connected"
	MsgDisconnected MessageType = "disconnected"
	MsgData         MessageType = "data"
	MsgLagged       MessageType = "lagged"
)

// Message is one WebSocket text frame sent to observers.
type Message struct {
	Type    MessageType `json:"type"`
	Session string      `json:"session,omitempty"`
	Addr    string      `json:"addr,omitempty"`
	Time    time.Time   `json:"time"`
	// State is set on status messages.
	State string `json:"state,omitempty"`
	// Reason is set on disconnected messages and on a status message
	// that follows a failure.
	Reason   string          `json:"reason,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	// Dropped counts events this observer missed because it fell behind.
	Dropped uint64 `json:"dropped,omitempty"`
}

func statusMessage(st session.Status) Message {
	msg := Message{
		Type:    MsgStatus,
		Session: st.Session,
		Addr:    st.Addr,
		Time:    time.Now(),
		State:   st.State.String(),
	}
	if st.Err != nil {
		msg.Reason = st.Err.Error()
	}
	return msg
}

func eventMessage(ev session.Event) (Message, error) {
	switch e := ev.(type) {
	case session.Connected:
		return Message{Type: MsgConnected, Session: e.Session, Addr: e.Addr, Time: e.At}, nil
	case session.Disconnected:
		return Message{Type: MsgDisconnected, Session: e.Session, Time: e.At, Reason: session.Reason(e.Err)}, nil
	case session.DataReceived:
		frame, err := protocol.EncodeResponse(e.Response)
		if err != nil {
			return Message{}, err
		}
		return Message{
			Type:     MsgData,
			Session:  e.Session,
			Time:     e.At,
			Response: json.RawMessage(bytes.TrimSpace(frame)),
		}, nil
	default:
		return Message{}, fmt.Errorf("unknown event %T", ev)
	}
}
