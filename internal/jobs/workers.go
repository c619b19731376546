package jobs

import (
	"log/slog"

	"github.com/riverqueue/river"
)

// WorkerDeps are the collaborators the workers need.
type WorkerDeps struct {
	Users   UserLookup
	Mailer  Mailer
	Auditor CapacityAuditor
	Logger  *slog.Logger
}

// NewWorkers registers every job kind the service runs.
func NewWorkers(deps WorkerDeps) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[NotificationArgs](workers, NotificationWorker{
		Users:  deps.Users,
		Mailer: deps.Mailer,
		Logger: deps.Logger,
	})
	river.AddWorker[CapacityAuditArgs](workers, CapacityAuditWorker{
		Auditor: deps.Auditor,
		Logger:  deps.Logger,
	})
	return workers
}
