package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindEventNotification = "event_notification"
	JobKindCapacityAudit     = "capacity_audit"
)

const (
	NotificationMaxAttempts  = 5
	CapacityAuditMaxAttempts = 1
)

// QueueNotifications holds outbound email jobs so slow providers cannot
// starve the default queue.
const QueueNotifications = "notifications"

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// ClientOptions tunes the River client for this service.
type ClientOptions struct {
	NotificationWorkers     int
	NotificationMaxAttempts int
}

// NewRetryPolicy returns the retry policy. notificationAttempts overrides
// NotificationMaxAttempts when positive.
func NewRetryPolicy(notificationAttempts int) *RetryPolicy {
	if notificationAttempts <= 0 {
		notificationAttempts = NotificationMaxAttempts
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: NotificationMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindEventNotification: {
				MaxAttempts: notificationAttempts,
				BaseDelay:   30 * time.Second,
				MaxDelay:    15 * time.Minute,
			},
			JobKindCapacityAudit: {
				MaxAttempts: CapacityAuditMaxAttempts,
				BaseDelay:   0,
				MaxDelay:    0,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}

	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func (p *RetryPolicy) InsertOptsForKind(kind string) river.InsertOpts {
	opts := river.InsertOpts{MaxAttempts: p.configFor(kind).MaxAttempts}
	if kind == JobKindEventNotification {
		opts.Queue = QueueNotifications
	}
	return opts
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob, opts ClientOptions) *river.Config {
	notificationWorkers := opts.NotificationWorkers
	if notificationWorkers <= 0 {
		notificationWorkers = 10
	}

	policy := NewRetryPolicy(opts.NotificationMaxAttempts)
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
			QueueNotifications: {MaxWorkers: notificationWorkers},
		},
		Hooks: hooks,
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewAlertingErrorHandler(logger, CountFailure)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob, opts ClientOptions) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, hooks, periodicJobs, opts))
}

// NewPeriodicJobs creates the periodic job schedule. The capacity audit runs
// every auditInterval, starting at boot; a non-positive interval disables it.
func NewPeriodicJobs(auditInterval time.Duration) []*river.PeriodicJob {
	if auditInterval <= 0 {
		return nil
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(auditInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return CapacityAuditArgs{}, &river.InsertOpts{MaxAttempts: CapacityAuditMaxAttempts}
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: NotificationMaxAttempts, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
