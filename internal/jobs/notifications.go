package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/riverqueue/river"
)

// NotificationArgs defines the job arguments for a registration email.
type NotificationArgs struct {
	UserID     string                  `json:"user_id"`
	EventID    string                  `json:"event_id"`
	EventTitle string                  `json:"event_title"`
	Type       events.NotificationKind `json:"kind"`
}

func (NotificationArgs) Kind() string { return JobKindEventNotification }

// UserLookup loads the recipient of a notification.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

// Mailer delivers rendered notifications.
type Mailer interface {
	SendEventNotification(ctx context.Context, to string, kind events.NotificationKind, data email.NotificationData) error
}

// NotificationWorker emails a user after they register for or cancel an
// event. Delivery failures are returned so River retries with backoff; a
// recipient that no longer exists cancels the job.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationArgs]
	Users  UserLookup
	Mailer Mailer
	Logger *slog.Logger
}

func (NotificationWorker) Kind() string { return JobKindEventNotification }

func (NotificationWorker) Timeout(*river.Job[NotificationArgs]) time.Duration {
	return 30 * time.Second
}

func (w NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	if job == nil {
		return fmt.Errorf("notification job missing")
	}
	if w.Users == nil || w.Mailer == nil {
		return fmt.Errorf("notification worker not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := job.Args
	if args.UserID == "" {
		return river.JobCancel(fmt.Errorf("user_id is required"))
	}

	user, err := w.Users.GetByID(ctx, args.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			logger.Warn("notification recipient no longer exists",
				"user_id", args.UserID,
				"event_id", args.EventID,
			)
			metrics.NotificationsTotal.WithLabelValues(string(args.Type), "cancelled").Inc()
			return river.JobCancel(err)
		}
		return fmt.Errorf("load user %s: %w", args.UserID, err)
	}

	err = w.Mailer.SendEventNotification(ctx, user.Email, args.Type, email.NotificationData{
		Username:   user.Username,
		EventTitle: args.EventTitle,
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(args.Type), "error").Inc()
		return fmt.Errorf("send notification: %w", err)
	}

	metrics.NotificationsTotal.WithLabelValues(string(args.Type), "sent").Inc()
	logger.Info("notification delivered",
		"user_id", args.UserID,
		"event_id", args.EventID,
		"kind", string(args.Type),
		"attempt", job.Attempt,
	)
	return nil
}
