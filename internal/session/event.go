package session

import "time"

// EventType classifies session events published to the sink.
type EventType string

const (
	EventCreated    EventType = "created"
	EventInput      EventType = "input"
	EventOutput     EventType = "output"
	EventTerminated EventType = "terminated"
)

// Event is one session lifecycle or I/O event.
type Event struct {
	ChatID    int64     `json:"chatId"`
	Type      EventType `json:"type"`
	Data      string    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives session events. Implementations must not block: events
// are published from the registry's hot paths.
type EventSink interface {
	SessionEvent(Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

func (f EventSinkFunc) SessionEvent(e Event) { f(e) }
