package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Outbox queues notification jobs inside the caller's transaction so a
// notification exists if and only if the registration change committed.
type Outbox interface {
	EnqueueNotificationTx(ctx context.Context, tx pgx.Tx, n events.Notification) error
}

// Repository implements storage.Repository with a PostgreSQL backend.
type Repository struct {
	pool   *pgxpool.Pool
	outbox Outbox
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new PostgreSQL-backed repository. Notifications are
// dropped until an outbox is attached with WithOutbox.
func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

// WithOutbox returns a copy of the repository that queues notifications on
// outbox.
func (r *Repository) WithOutbox(outbox Outbox) *Repository {
	return &Repository{pool: r.pool, outbox: outbox}
}

// Events returns the events repository
func (r *Repository) Events() events.Repository {
	return &EventRepository{pool: r.pool, outbox: r.outbox}
}

// Users returns the users repository
func (r *Repository) Users() users.Repository {
	return &UserRepository{pool: r.pool}
}

// Audit returns the repository used by the capacity audit job.
func (r *Repository) Audit() *EventRepository {
	return &EventRepository{pool: r.pool}
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// pgxTx adapts pgx.Tx to the domain's commit/rollback contract.
type pgxTx struct {
	tx pgx.Tx
}

func (t pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op after Commit.
func (t pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// uniqueViolation returns the violated constraint name, or "" when err is not
// a unique violation.
func uniqueViolation(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

// SchemaVersion reads the version recorded by golang-migrate.
func (r *Repository) SchemaVersion(ctx context.Context) (int64, bool, error) {
	var version int64
	var dirty bool
	err := r.pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// ActiveJobs counts River jobs waiting or running. ok is false until River's
// tables have been migrated.
func (r *Repository) ActiveJobs(ctx context.Context) (int64, bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT to_regclass('river_job') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return 0, false, fmt.Errorf("check river tables: %w", err)
	}
	if !exists {
		return 0, false, nil
	}

	var active int64
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM river_job WHERE state = ANY($1)`, []string{"available", "running"}).Scan(&active)
	if err != nil {
		return 0, true, fmt.Errorf("count river jobs: %w", err)
	}
	return active, true, nil
}
