package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ events.Repository = (*EventRepository)(nil)

const (
	constraintEventTitle    = "events_creator_title_key"
	constraintAttendeePair  = "attendees_event_user_key"
	eventColumns            = `id, title, description, event_date, location, total_capacity, registered_count, created_by, created_at, updated_at`
	attendeeSelectStatement = `
SELECT a.id, a.event_id, a.user_id, u.username, a.created_at
  FROM attendees a
  JOIN users u ON u.id = a.user_id`
)

type EventRepository struct {
	pool   *pgxpool.Pool
	tx     pgx.Tx
	outbox Outbox
}

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *EventRepository) BeginTx(ctx context.Context) (events.Repository, events.TxCommitter, error) {
	if r.tx != nil {
		return nil, nil, fmt.Errorf("begin tx: already in a transaction")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	return &EventRepository{pool: r.pool, tx: tx, outbox: r.outbox}, pgxTx{tx: tx}, nil
}

func (r *EventRepository) CreateEvent(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO events (id, title, description, event_date, location, total_capacity, registered_count, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+eventColumns,
		params.ID,
		params.Title,
		params.Description,
		params.Date,
		params.Location,
		params.TotalCapacity,
		params.RegisteredCount,
		params.CreatedBy,
	)
	event, err := scanEvent(row)
	if err != nil {
		if uniqueViolation(err) == constraintEventTitle {
			return nil, events.ErrDuplicateTitle
		}
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) GetEvent(ctx context.Context, id string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) FindEventByTitle(ctx context.Context, creatorID, title string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE created_by = $1 AND title = $2`, creatorID, title)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("find event by title: %w", err)
	}
	return event, nil
}

func (r *EventRepository) ListEvents(ctx context.Context, filters events.Filters) (result events.ListResult, err error) {
	began := time.Now()
	defer func() { metrics.RecordQuery("list_events", began, err) }()

	queryer := r.queryer()

	var dayStart, dayEnd *time.Time
	if start, end, ok := filters.DayRange(); ok {
		dayStart, dayEnd = &start, &end
	}
	args := []any{
		escapeILIKEPattern(filters.Title),
		escapeILIKEPattern(filters.Location),
		dayStart,
		dayEnd,
		filters.Capacity,
	}
	const where = `
 WHERE ($1 = '' OR title ILIKE '%' || $1 || '%')
   AND ($2 = '' OR location ILIKE '%' || $2 || '%')
   AND ($3::timestamptz IS NULL OR event_date >= $3::timestamptz)
   AND ($4::timestamptz IS NULL OR event_date < $4::timestamptz)
   AND ($5::int IS NULL OR total_capacity - registered_count = $5::int)`

	var total int
	if err := queryer.QueryRow(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return events.ListResult{}, fmt.Errorf("count events: %w", err)
	}

	rows, err := queryer.Query(ctx, `SELECT `+eventColumns+` FROM events`+where+`
 ORDER BY event_date ASC, id ASC
 LIMIT $6 OFFSET $7`,
		append(args, filters.PageSize(), filters.Offset())...,
	)
	if err != nil {
		return events.ListResult{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items := make([]events.Event, 0, filters.PageSize())
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return events.ListResult{}, fmt.Errorf("scan events: %w", err)
		}
		items = append(items, *event)
	}
	if err := rows.Err(); err != nil {
		return events.ListResult{}, fmt.Errorf("iterate events: %w", err)
	}

	return events.ListResult{Events: items, Total: total}, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, id string, params events.UpdateParams) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `
UPDATE events
   SET title = COALESCE($2, title),
       description = COALESCE($3, description),
       event_date = COALESCE($4, event_date),
       location = COALESCE($5, location),
       total_capacity = COALESCE($6::int, total_capacity),
       updated_at = now()
 WHERE id = $1
   AND ($6::int IS NULL OR $6::int >= registered_count)
RETURNING `+eventColumns,
		id,
		params.Title,
		params.Description,
		params.Date,
		params.Location,
		params.TotalCapacity,
	)
	event, err := scanEvent(row)
	if err == nil {
		return event, nil
	}
	if uniqueViolation(err) == constraintEventTitle {
		return nil, events.ErrDuplicateTitle
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update event: %w", err)
	}

	// No row: either the event is gone or the capacity guard rejected it.
	if _, getErr := r.GetEvent(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, events.ErrCapacityExceeded
}

func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) IncrementRegistered(ctx context.Context, eventID string) (bool, error) {
	began := time.Now()
	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET registered_count = registered_count + 1,
       updated_at = now()
 WHERE id = $1
   AND registered_count < total_capacity`, eventID)
	metrics.RecordQuery("take_seat", began, err)
	if err != nil {
		return false, fmt.Errorf("increment registered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EventRepository) DecrementRegistered(ctx context.Context, eventID string) (bool, error) {
	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET registered_count = registered_count - 1,
       updated_at = now()
 WHERE id = $1
   AND registered_count > 0`, eventID)
	if err != nil {
		return false, fmt.Errorf("decrement registered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EventRepository) CreateAttendee(ctx context.Context, params events.AttendeeParams) (*events.Attendee, error) {
	row := r.queryer().QueryRow(ctx, `
WITH inserted AS (
  INSERT INTO attendees (id, event_id, user_id)
  VALUES ($1, $2, $3)
  RETURNING id, event_id, user_id, created_at
)
SELECT i.id, i.event_id, i.user_id, u.username, i.created_at
  FROM inserted i
  JOIN users u ON u.id = i.user_id`,
		params.ID, params.EventID, params.UserID,
	)
	attendee, err := scanAttendee(row)
	if err != nil {
		if uniqueViolation(err) == constraintAttendeePair {
			return nil, events.ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("insert attendee: %w", err)
	}
	return attendee, nil
}

func (r *EventRepository) CreateAttendees(ctx context.Context, params []events.AttendeeParams) error {
	if len(params) == 0 {
		return nil
	}
	_, err := r.queryer().CopyFrom(ctx,
		pgx.Identifier{"attendees"},
		[]string{"id", "event_id", "user_id"},
		pgx.CopyFromSlice(len(params), func(i int) ([]any, error) {
			return []any{params[i].ID, params[i].EventID, params[i].UserID}, nil
		}),
	)
	if err != nil {
		if uniqueViolation(err) == constraintAttendeePair {
			return events.ErrAlreadyRegistered
		}
		return fmt.Errorf("copy attendees: %w", err)
	}
	return nil
}

func (r *EventRepository) ListAttendees(ctx context.Context, eventID string) ([]events.Attendee, error) {
	rows, err := r.queryer().Query(ctx, attendeeSelectStatement+`
 WHERE a.event_id = $1
 ORDER BY a.created_at ASC, a.id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []events.Attendee
	for rows.Next() {
		attendee, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendees: %w", err)
		}
		out = append(out, *attendee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendees: %w", err)
	}
	return out, nil
}

func (r *EventRepository) FindAttendee(ctx context.Context, eventID, userID string) (*events.Attendee, error) {
	row := r.queryer().QueryRow(ctx, attendeeSelectStatement+`
 WHERE a.event_id = $1 AND a.user_id = $2`, eventID, userID)
	attendee, err := scanAttendee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotRegistered
		}
		return nil, fmt.Errorf("find attendee: %w", err)
	}
	return attendee, nil
}

func (r *EventRepository) DeleteAttendee(ctx context.Context, eventID, userID string) (bool, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM attendees WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("delete attendee: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EventRepository) DeleteAttendeesByEvent(ctx context.Context, eventID string) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM attendees WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("delete attendees: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EventRepository) EnqueueNotification(ctx context.Context, n events.Notification) error {
	if r.outbox == nil {
		return nil
	}
	if r.tx != nil {
		return r.outbox.EnqueueNotificationTx(ctx, r.tx, n)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := r.outbox.EnqueueNotificationTx(ctx, tx, n); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RepairRegisteredCounts resets registered_count to the number of attendee
// rows wherever the two disagree, and returns what it changed.
//
// Drifted rows are locked before they are recounted, so a registration that
// is mid-flight commits first and its attendee is included in the count.
func (r *EventRepository) RepairRegisteredCounts(ctx context.Context) ([]events.CountDrift, error) {
	if r.tx != nil {
		return repairRegisteredCounts(ctx, r.tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin repair: %w", err)
	}
	defer func() { _ = pgxTx{tx: tx}.Rollback(ctx) }()

	drifts, err := repairRegisteredCounts(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit repair: %w", err)
	}
	return drifts, nil
}

func repairRegisteredCounts(ctx context.Context, q queryer) ([]events.CountDrift, error) {
	candidates, err := collectIDs(ctx, q, `
SELECT e.id
  FROM events e
 WHERE e.registered_count <> (SELECT COUNT(*) FROM attendees a WHERE a.event_id = e.id)`)
	if err != nil {
		return nil, fmt.Errorf("find drifted events: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if _, err := collectIDs(ctx, q, `SELECT id FROM events WHERE id = ANY($1) ORDER BY id FOR UPDATE`, candidates); err != nil {
		return nil, fmt.Errorf("lock drifted events: %w", err)
	}

	rows, err := q.Query(ctx, `
WITH counted AS (
  SELECT e.id, e.registered_count AS stored, COUNT(a.id)::int AS actual
    FROM events e
    LEFT JOIN attendees a ON a.event_id = e.id
   WHERE e.id = ANY($1)
   GROUP BY e.id
)
UPDATE events e
   SET registered_count = c.actual,
       total_capacity = GREATEST(e.total_capacity, c.actual),
       updated_at = now()
  FROM counted c
 WHERE e.id = c.id
   AND c.stored <> c.actual
RETURNING e.id, c.stored, c.actual`, candidates)
	if err != nil {
		return nil, fmt.Errorf("repair registered counts: %w", err)
	}
	defer rows.Close()

	var drifts []events.CountDrift
	for rows.Next() {
		var d events.CountDrift
		if err := rows.Scan(&d.EventID, &d.Stored, &d.Counted); err != nil {
			return nil, fmt.Errorf("scan drift: %w", err)
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drifts: %w", err)
	}
	return drifts, nil
}

func collectIDs(ctx context.Context, q queryer, sql string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var e events.Event
	if err := row.Scan(
		&e.ID,
		&e.Title,
		&e.Description,
		&e.Date,
		&e.Location,
		&e.TotalCapacity,
		&e.RegisteredCount,
		&e.CreatedBy,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanAttendee(row pgx.Row) (*events.Attendee, error) {
	var a events.Attendee
	if err := row.Scan(&a.ID, &a.EventID, &a.UserID, &a.Username, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// escapeILIKEPattern escapes ILIKE metacharacters so user input matches
// literally.
func escapeILIKEPattern(input string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(input)
}
