package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all rsvp metrics
const namespace = "rsvp"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthCheckStatus tracks individual readiness check results
// Values: 0 = fail, 1 = warn, 2 = pass
var HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_status",
		Help:      "Individual health check status (0=fail, 1=warn, 2=pass)",
	},
	[]string{"check"},
)

// Registration metrics

// RegistrationsTotal counts register and cancel attempts by outcome
var RegistrationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration and cancellation attempts",
	},
	[]string{"action", "result"}, // action: register|cancel, result: ok|full|duplicate|not_registered|not_found|error
)

// EventsTotal counts event lifecycle operations
var EventsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Total number of event create, update and delete operations",
	},
	[]string{"operation", "result"},
)

// Notification metrics

// NotificationsTotal counts notification deliveries by kind and result
var NotificationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notification delivery attempts",
	},
	[]string{"kind", "result"}, // kind: registered|cancelled, result: sent|error|cancelled
)

// JobFailures counts failed job attempts; final is "true" once retries are exhausted
var JobFailures = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failures_total",
		Help:      "Total number of failed background job attempts",
	},
	[]string{"kind", "final"},
)

// CapacityAuditRepairs counts events whose registered count was corrected
var CapacityAuditRepairs = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capacity_audit_repairs_total",
		Help:      "Total number of events repaired by the capacity audit",
	},
)

// Init registers the runtime collectors and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
