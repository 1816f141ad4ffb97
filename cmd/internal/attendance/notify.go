package attendance

import "time"

// EventType names a register transition.
type EventType string

const (
	EventSignedIn  EventType = "attendance.signed_in"
	EventSignedOut EventType = "attendance.signed_out"
)

// Event describes a committed transition. DurationMinutes is set for sign-outs only.
type Event struct {
	Type            EventType
	RecordID        string
	UserID          int64
	At              time.Time
	DurationMinutes *int
}

// Notifier receives committed transitions. Publish must not block.
type Notifier interface {
	Publish(ev Event)
}
