package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ users.Repository = (*UserRepository)(nil)

const (
	constraintUserEmail = "users_email_key"
	userColumns         = `id, username, email, password_hash, token, created_at, updated_at`
)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *UserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *UserRepository) CreateUser(ctx context.Context, params users.CreateUserParams) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO users (id, username, email, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING `+userColumns,
		params.ID, params.Username, params.Email, params.PasswordHash,
	)
	user, err := scanUser(row)
	if err != nil {
		if uniqueViolation(err) == constraintUserEmail {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) ExistingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.queryer().Query(ctx, `SELECT id FROM users WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan user ids: %w", err)
	}
	return found, nil
}

func (r *UserRepository) SetUserToken(ctx context.Context, id, token string) error {
	tag, err := r.queryer().Exec(ctx, `UPDATE users SET token = $2, updated_at = now() WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("set user token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Token, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
