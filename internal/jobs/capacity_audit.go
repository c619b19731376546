package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/riverqueue/river"
)

// CapacityAuditArgs defines the periodic seat-count audit.
type CapacityAuditArgs struct{}

func (CapacityAuditArgs) Kind() string { return JobKindCapacityAudit }

// CapacityAuditor repairs stored registered counts that disagree with the
// attendee rows.
type CapacityAuditor interface {
	RepairRegisteredCounts(ctx context.Context) ([]events.CountDrift, error)
}

// CapacityAuditWorker recomputes registered_count for every event.
type CapacityAuditWorker struct {
	river.WorkerDefaults[CapacityAuditArgs]
	Auditor CapacityAuditor
	Logger  *slog.Logger
}

func (CapacityAuditWorker) Kind() string { return JobKindCapacityAudit }

func (w CapacityAuditWorker) Work(ctx context.Context, job *river.Job[CapacityAuditArgs]) error {
	if w.Auditor == nil {
		return fmt.Errorf("capacity auditor not configured")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	drifts, err := w.Auditor.RepairRegisteredCounts(ctx)
	if err != nil {
		return fmt.Errorf("capacity audit: %w", err)
	}

	for _, d := range drifts {
		logger.Warn("repaired registered count",
			"event_id", d.EventID,
			"stored", d.Stored,
			"counted", d.Counted,
		)
	}
	metrics.CapacityAuditRepairs.Add(float64(len(drifts)))
	logger.Info("capacity audit complete", "repaired", len(drifts))
	return nil
}
