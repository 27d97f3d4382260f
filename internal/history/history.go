package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventExit    EventType = "exit"
	EventRestart EventType = "restart"
	EventStop    EventType = "stop"
)

// Record is the persisted view of a supervised program at event time.
type Record struct {
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	State      string    `json:"state"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	ExitReason string    `json:"exit_reason,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
