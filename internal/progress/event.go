package progress

import "time"

// EventType classifies a progress event. Mirrors the severity levels the
// console logger understands.
type EventType string

const (
	EventInfo      EventType = "info"
	EventSuccess   EventType = "success"
	EventWarning   EventType = "warning"
	EventError     EventType = "error"
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventConnected EventType = "connected"
)

// Event is a transient notification pushed to live dashboard subscribers.
// Events are never persisted; the log mirror in the broadcaster is the only
// durable trace of them.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	JobID     string    `json:"job_id,omitempty"`
	Category  string    `json:"category,omitempty"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives progress events. The broadcaster implements it; scrape units
// and the engine only ever see this interface.
type Sink interface {
	Publish(ev Event)
}
