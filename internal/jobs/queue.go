package jobs

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// TxInserter is the part of the River client used to enqueue jobs inside an
// existing transaction.
type TxInserter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// NotificationQueue is the outbound queue for registration notifications. A
// job inserted through it becomes visible to workers only when the caller's
// transaction commits.
type NotificationQueue struct {
	inserter TxInserter
	opts     river.InsertOpts
}

func NewNotificationQueue(inserter TxInserter, maxAttempts int) *NotificationQueue {
	return &NotificationQueue{
		inserter: inserter,
		opts:     NewRetryPolicy(maxAttempts).InsertOptsForKind(JobKindEventNotification),
	}
}

func (q *NotificationQueue) EnqueueNotificationTx(ctx context.Context, tx pgx.Tx, n events.Notification) error {
	opts := q.opts
	result, err := q.inserter.InsertTx(ctx, tx, NotificationArgs{
		UserID:     n.UserID,
		EventID:    n.EventID,
		EventTitle: n.EventTitle,
		Type:       n.Kind,
	}, &opts)
	if err != nil {
		return fmt.Errorf("enqueue %s notification: %w", n.Kind, err)
	}
	if result != nil && result.Job != nil {
		zerolog.Ctx(ctx).Debug().
			Int64("job_id", result.Job.ID).
			Str("event_id", n.EventID).
			Str("user_id", n.UserID).
			Str("kind", string(n.Kind)).
			Msg("notification queued")
	}
	return nil
}
