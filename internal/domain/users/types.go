package users

import "time"

// User is an account that can create events and register for them.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	// Token is the last session JWT issued to the user. Empty after logout.
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Username        string `json:"username" validate:"required,min=3,max=30"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginInput is the payload for exchanging credentials for a session token.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CreateUserParams is what the repository persists for a new account.
type CreateUserParams struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
}

// Session is the result of a successful register or login.
type Session struct {
	User  *User
	Token string
}
