package users

import "context"

// Repository persists user accounts.
type Repository interface {
	// CreateUser returns ErrEmailTaken when the email is already registered.
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// ExistingUserIDs returns the subset of ids that belong to a user.
	ExistingUserIDs(ctx context.Context, ids []string) ([]string, error)
	// SetUserToken stores the session token; an empty token ends the session.
	SetUserToken(ctx context.Context, id, token string) error
}
