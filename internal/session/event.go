package session

import "go.klb.dev/mclip/internal/gateway"

// EventType distinguishes session events.
type EventType int

const (
	EventInserted EventType = iota + 1
	EventContention
)

func (t EventType) String() string {
	switch t {
	case EventInserted:
		return "inserted"
	case EventContention:
		return "contention"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Text and Count are set for
// EventInserted, Contention for EventContention.
type Event struct {
	Type       EventType
	Text       string
	Count      int
	Contention gateway.ContentionState
}
