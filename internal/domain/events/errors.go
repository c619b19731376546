package events

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("event not found")
	ErrUserNotFound      = errors.New("user does not exist")
	ErrForbidden         = errors.New("you are not authorized to perform this action")
	ErrDuplicateTitle    = errors.New("you have already registered an event with this title")
	ErrCapacityExceeded  = errors.New("attendees exceed the event capacity")
	ErrCapacityFull      = errors.New("the event has reached its maximum capacity")
	ErrAlreadyRegistered = errors.New("you are already registered for this event")
	ErrNotRegistered     = errors.New("you are not registered for this event")
)

// CapacityError reports how many seats were asked for against how many exist.
type CapacityError struct {
	Attendees int
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("number of valid attendees (%d) exceeds the event capacity (%d)", e.Attendees, e.Capacity)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateTitle) || errors.Is(err, ErrAlreadyRegistered)
}

// IsCapacity reports whether err is a seat-count violation.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrCapacityFull)
}
