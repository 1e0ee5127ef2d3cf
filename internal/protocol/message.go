package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all monitor WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeSessionUpdate     = "session.update"
	TypeSessionTraffic    = "session.traffic"
	TypeSessionTerminated = "session.terminated"
	TypeError             = "error"
)

// Client → Server message types.
const (
	TypeSessionKill = "session.kill"
)

// Error codes.
const (
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrInvalidMessage  = "INVALID_MESSAGE"
)

// Server → Client payloads.

type SessionUpdatePayload struct {
	ChatID    int64  `json:"chatId"`
	CreatedAt string `json:"createdAt"`
}

// SessionTrafficPayload carries one direction of interpreter traffic:
// Direction is "input" for commands sent to the interpreter and "output"
// for flushed interpreter output.
type SessionTrafficPayload struct {
	ChatID    int64  `json:"chatId"`
	Direction string `json:"direction"`
	Data      string `json:"data"`
}

type SessionTerminatedPayload struct {
	ChatID int64 `json:"chatId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type SessionKillPayload struct {
	ChatID int64 `json:"chatId"`
}
