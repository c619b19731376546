package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/domain/validation"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Error types for user domain operations
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionExpired     = errors.New("session is no longer valid")
)

// BcryptCost is the cost factor for bcrypt password hashing
const BcryptCost = 12

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Generate(subject, username string) (string, error)
	Validate(token string) (*auth.Claims, error)
}

// Service handles account registration, login and session checks.
type Service struct {
	repo       Repository
	tokens     TokenIssuer
	validator  *validator.Validate
	bcryptCost int
	logger     zerolog.Logger
}

// NewService creates a new user service instance. A bcryptCost of zero uses
// BcryptCost.
func NewService(repo Repository, tokens TokenIssuer, bcryptCost int, logger zerolog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = BcryptCost
	}
	return &Service{
		repo:       repo,
		tokens:     tokens,
		validator:  NewValidator(),
		bcryptCost: bcryptCost,
		logger:     logger.With().Str("component", "users").Logger(),
	}
}

// Register creates an account and opens a session for it.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = normalizeEmail(input.Email)
	if err := validation.Struct(s.validator, input); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err == nil && existing != nil {
		return nil, fmt.Errorf("user with email %s already exists: %w", input.Email, ErrEmailTaken)
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		ID:           id,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, fmt.Errorf("user with email %s already exists: %w", input.Email, ErrEmailTaken)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Msg("user registered")
	return session, nil
}

// Login verifies credentials and replaces the user's session token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validation.Struct(s.validator, input); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Don't reveal whether the email exists
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user logged in")
	return session, nil
}

// Logout clears the stored session token so outstanding JWTs stop working.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.repo.SetUserToken(ctx, userID, ""); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("user logged out")
	return nil
}

// Authenticate resolves the user behind a session token. The token must be
// valid and still be the one stored for the user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if user.Token == "" || user.Token != token {
		return nil, ErrSessionExpired
	}
	return user, nil
}

// GetByID returns a user or ErrUserNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ExistingIDs returns the subset of ids that correspond to accounts.
func (s *Service) ExistingIDs(ctx context.Context, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	found, err := s.repo.ExistingUserIDs(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}
	return found, nil
}

func (s *Service) openSession(ctx context.Context, user *User) (*Session, error) {
	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	if err := s.repo.SetUserToken(ctx, user.ID, token); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	user.Token = token
	return &Session{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
