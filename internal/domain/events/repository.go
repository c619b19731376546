package events

import (
	"context"
	"time"
)

type CreateParams struct {
	ID              string
	Title           string
	Description     string
	Date            time.Time
	Location        string
	TotalCapacity   int
	RegisteredCount int
	CreatedBy       string
}

// UpdateParams holds the columns to change; nil fields are left alone.
type UpdateParams struct {
	Title         *string
	Description   *string
	Date          *time.Time
	Location      *string
	TotalCapacity *int
}

type AttendeeParams struct {
	ID      string
	EventID string
	UserID  string
}

type ListResult struct {
	Events []Event
	Total  int
}

// TxCommitter finishes a transaction opened by Repository.BeginTx.
type TxCommitter interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Repository interface {
	// BeginTx returns a Repository bound to a new transaction.
	BeginTx(ctx context.Context) (Repository, TxCommitter, error)

	CreateEvent(ctx context.Context, params CreateParams) (*Event, error)
	GetEvent(ctx context.Context, id string) (*Event, error)
	// FindEventByTitle returns ErrNotFound when the creator has no event with title.
	FindEventByTitle(ctx context.Context, creatorID, title string) (*Event, error)
	ListEvents(ctx context.Context, filters Filters) (ListResult, error)
	// UpdateEvent returns ErrCapacityExceeded when the new total is below the
	// registered count.
	UpdateEvent(ctx context.Context, id string, params UpdateParams) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error

	// IncrementRegistered takes one seat if any remain. It reports false when
	// the event is full.
	IncrementRegistered(ctx context.Context, eventID string) (bool, error)
	// DecrementRegistered releases one seat. It reports false when none are taken.
	DecrementRegistered(ctx context.Context, eventID string) (bool, error)

	// CreateAttendee returns ErrAlreadyRegistered when the pair exists.
	CreateAttendee(ctx context.Context, params AttendeeParams) (*Attendee, error)
	CreateAttendees(ctx context.Context, params []AttendeeParams) error
	ListAttendees(ctx context.Context, eventID string) ([]Attendee, error)
	// FindAttendee returns ErrNotRegistered when the pair does not exist.
	FindAttendee(ctx context.Context, eventID, userID string) (*Attendee, error)
	DeleteAttendee(ctx context.Context, eventID, userID string) (bool, error)
	DeleteAttendeesByEvent(ctx context.Context, eventID string) (int64, error)

	// EnqueueNotification places n on the outbound queue. Inside a
	// transaction the job commits or rolls back with it.
	EnqueueNotification(ctx context.Context, n Notification) error
}
