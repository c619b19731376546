package events

import "time"

// Event is a gathering with a fixed number of seats.
//
// Seats are tracked as TotalCapacity and RegisteredCount; the number of open
// seats is always derived, never stored.
type Event struct {
	ID              string
	Title           string
	Description     string
	Date            time.Time
	Location        string
	TotalCapacity   int
	RegisteredCount int
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Remaining is the number of seats still open.
func (e *Event) Remaining() int {
	if e == nil {
		return 0
	}
	remaining := e.TotalCapacity - e.RegisteredCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsFull reports whether no seats remain.
func (e *Event) IsFull() bool {
	return e.Remaining() == 0
}

// Attendee links a user to an event they hold a seat for.
type Attendee struct {
	ID        string
	EventID   string
	UserID    string
	Username  string
	CreatedAt time.Time
}

// EventDetail is an event together with its attendee list.
type EventDetail struct {
	Event     *Event
	Attendees []Attendee
}

// NotificationKind says which registration transition a notification reports.
type NotificationKind string

const (
	NotificationRegistered NotificationKind = "registered"
	NotificationCancelled  NotificationKind = "cancelled"
)

// Notification is a message queued for delivery after a registration change.
type Notification struct {
	UserID     string
	EventID    string
	EventTitle string
	Kind       NotificationKind
}

// CountDrift records an event whose stored registered count disagreed with
// its attendee rows and has been repaired.
type CountDrift struct {
	EventID string
	Stored  int
	Counted int
}
