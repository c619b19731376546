package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"
)

type stubUsers struct {
	getFn func(ctx context.Context, id string) (*users.User, error)
}

func (s stubUsers) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getFn(ctx, id)
}

type sentMail struct {
	to   string
	kind events.NotificationKind
	data email.NotificationData
}

type stubMailer struct {
	sent []sentMail
	err  error
}

func (m *stubMailer) SendEventNotification(_ context.Context, to string, kind events.NotificationKind, data email.NotificationData) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, kind: kind, data: data})
	return nil
}

type stubAuditor struct {
	drifts []events.CountDrift
	err    error
}

func (a stubAuditor) RepairRegisteredCounts(context.Context) ([]events.CountDrift, error) {
	return a.drifts, a.err
}

type stubInserter struct {
	args river.JobArgs
	opts *river.InsertOpts
	err  error
}

func (s *stubInserter) InsertTx(_ context.Context, _ pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.args = args
	s.opts = opts
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: 42}}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notificationJob(args NotificationArgs) *river.Job[NotificationArgs] {
	return &river.Job[NotificationArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Attempt: 1, Kind: JobKindEventNotification},
		Args:   args,
	}
}

func TestNotificationArgs_Kind(t *testing.T) {
	require.Equal(t, JobKindEventNotification, NotificationArgs{}.Kind())
	require.Equal(t, JobKindEventNotification, NotificationWorker{}.Kind())
	require.Equal(t, JobKindCapacityAudit, CapacityAuditArgs{}.Kind())
	require.Equal(t, JobKindCapacityAudit, CapacityAuditWorker{}.Kind())
}

func TestNotificationWorker_Sends(t *testing.T) {
	mailer := &stubMailer{}
	worker := NotificationWorker{
		Users: stubUsers{getFn: func(_ context.Context, id string) (*users.User, error) {
			return &users.User{ID: id, Username: "ada", Email: "ada@example.com"}, nil
		}},
		Mailer: mailer,
		Logger: discardLogger(),
	}
	before := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("registered", "sent"))

	err := worker.Work(context.Background(), notificationJob(NotificationArgs{
		UserID:     "U1",
		EventID:    "E1",
		EventTitle: "go night",
		Type:       events.NotificationRegistered,
	}))
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "ada@example.com", mailer.sent[0].to)
	require.Equal(t, events.NotificationRegistered, mailer.sent[0].kind)
	require.Equal(t, "ada", mailer.sent[0].data.Username)
	require.Equal(t, "go night", mailer.sent[0].data.EventTitle)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("registered", "sent")))
}

func TestNotificationWorker_SendFailureIsRetried(t *testing.T) {
	worker := NotificationWorker{
		Users: stubUsers{getFn: func(_ context.Context, id string) (*users.User, error) {
			return &users.User{ID: id, Username: "ada", Email: "ada@example.com"}, nil
		}},
		Mailer: &stubMailer{err: errors.New("smtp down")},
		Logger: discardLogger(),
	}

	err := worker.Work(context.Background(), notificationJob(NotificationArgs{UserID: "U1", Type: events.NotificationCancelled}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "smtp down")

	var cancelErr *rivertype.JobCancelError
	require.False(t, errors.As(err, &cancelErr), "delivery failures must be retried")
}

func TestNotificationWorker_MissingUserCancels(t *testing.T) {
	worker := NotificationWorker{
		Users: stubUsers{getFn: func(context.Context, string) (*users.User, error) {
			return nil, users.ErrUserNotFound
		}},
		Mailer: &stubMailer{},
		Logger: discardLogger(),
	}

	err := worker.Work(context.Background(), notificationJob(NotificationArgs{UserID: "gone", Type: events.NotificationRegistered}))
	require.Error(t, err)

	var cancelErr *rivertype.JobCancelError
	require.True(t, errors.As(err, &cancelErr))
}

func TestNotificationWorker_NotConfigured(t *testing.T) {
	err := NotificationWorker{}.Work(context.Background(), notificationJob(NotificationArgs{UserID: "U1"}))
	require.Error(t, err)
}

func TestCapacityAuditWorker(t *testing.T) {
	before := testutil.ToFloat64(metrics.CapacityAuditRepairs)
	worker := CapacityAuditWorker{
		Auditor: stubAuditor{drifts: []events.CountDrift{
			{EventID: "E1", Stored: 3, Counted: 2},
			{EventID: "E2", Stored: 0, Counted: 1},
		}},
		Logger: discardLogger(),
	}

	require.NoError(t, worker.Work(context.Background(), &river.Job[CapacityAuditArgs]{JobRow: &rivertype.JobRow{}}))
	require.Equal(t, before+2, testutil.ToFloat64(metrics.CapacityAuditRepairs))

	worker.Auditor = stubAuditor{err: errors.New("db gone")}
	require.Error(t, worker.Work(context.Background(), &river.Job[CapacityAuditArgs]{JobRow: &rivertype.JobRow{}}))
}

func TestNotificationQueue_InsertsWithQueueOptions(t *testing.T) {
	inserter := &stubInserter{}
	queue := NewNotificationQueue(inserter, 7)

	err := queue.EnqueueNotificationTx(context.Background(), nil, events.Notification{
		UserID:     "U1",
		EventID:    "E1",
		EventTitle: "go night",
		Kind:       events.NotificationRegistered,
	})
	require.NoError(t, err)
	require.Equal(t, NotificationArgs{
		UserID:     "U1",
		EventID:    "E1",
		EventTitle: "go night",
		Type:       events.NotificationRegistered,
	}, inserter.args)
	require.Equal(t, 7, inserter.opts.MaxAttempts)
	require.Equal(t, QueueNotifications, inserter.opts.Queue)

	inserter.err = errors.New("insert failed")
	err = queue.EnqueueNotificationTx(context.Background(), nil, events.Notification{Kind: events.NotificationCancelled})
	require.ErrorContains(t, err, "enqueue cancelled notification")
}

func TestNotificationArgs_EncodesType(t *testing.T) {
	raw, err := json.Marshal(NotificationArgs{UserID: "U1", Type: events.NotificationCancelled})
	require.NoError(t, err)
	require.JSONEq(t, `{"user_id":"U1","event_id":"","event_title":"","kind":"cancelled"}`, string(raw))

	var decoded NotificationArgs
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, events.NotificationCancelled, decoded.Type)
	require.Equal(t, JobKindEventNotification, decoded.Kind())
}

func TestNewWorkers(t *testing.T) {
	require.NotNil(t, NewWorkers(WorkerDeps{}))
}

func TestCountFailure(t *testing.T) {
	before := testutil.ToFloat64(metrics.JobFailures.WithLabelValues(JobKindEventNotification, "true"))
	CountFailure(context.Background(), &rivertype.JobRow{Kind: JobKindEventNotification, Attempt: 5, MaxAttempts: 5}, errors.New("x"))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.JobFailures.WithLabelValues(JobKindEventNotification, "true")))
}
