package events

import (
	"encoding/json"
	"time"

	"screenrec/internal/domain"
)

type MessageType string

const (
	MsgSnapshot  MessageType = "snapshot"
	MsgSession   MessageType = "session"
	MsgKeepAlive MessageType = "keep_alive"
	MsgError     MessageType = "error"
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// Envelope is the receiving side of Message with the payload left undecoded.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SessionPayload struct {
	State   domain.SessionState       `json:"state"`
	Reason  domain.SessionStateReason `json:"reason"`
	Message string                    `json:"message,omitempty"`
}

type KeepAlivePayload struct {
	At time.Time `json:"at"`
}

type ErrorPayload struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Detail  string           `json:"detail,omitempty"`
}
