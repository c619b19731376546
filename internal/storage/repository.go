package storage

import (
	"context"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Events() events.Repository
	Users() users.Repository

	Ping(ctx context.Context) error
}
