package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	"github.com/smallbiznis/schemashift/pkg/db"
)

const (
	UnitFailureReasonDeadlineExceeded    = "deadline_exceeded"
	UnitFailureReasonUniqueViolation     = "unique_violation"
	UnitFailureReasonNotNullViolation    = "not_null_violation"
	UnitFailureReasonForeignKeyViolation = "foreign_key_violation"
	UnitFailureReasonIntegrity           = "integrity_violation"
	UnitFailureReasonDefinitionDrift     = "definition_drift"
	UnitFailureReasonInvalidIdentifier   = "invalid_identifier"
	UnitFailureReasonPermission          = "insufficient_privilege"
	UnitFailureReasonUnknown             = "unknown"
)

// MigrationMetrics captures unit run health for batch runs. A run is a
// short-lived process, so the registry is flushed to a textfile for the
// node exporter instead of being scraped.
type MigrationMetrics struct {
	registry     *prometheus.Registry
	unitDuration *prometheus.HistogramVec
	unitFailures *prometheus.CounterVec
	unitsApplied *prometheus.CounterVec
	lastSuccess  prometheus.Gauge
}

var (
	migrationMetricsOnce sync.Once
	migrationMetrics     *MigrationMetrics
)

// Migration returns the singleton migration metrics registry using config labels.
func Migration(cfg Config) *MigrationMetrics {
	migrationMetricsOnce.Do(func() {
		migrationMetrics = newMigrationMetrics(prometheus.NewRegistry(), cfg)
	})
	return migrationMetrics
}

// ResetMigrationMetricsForTest resets the migration metrics singleton for tests.
func ResetMigrationMetricsForTest() {
	migrationMetricsOnce = sync.Once{}
	migrationMetrics = nil
}

func newMigrationMetrics(registry *prometheus.Registry, cfg Config) *MigrationMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "schemashift"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	unitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "schemashift_unit_duration_seconds",
		Help:        "Unit transaction latency by direction.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"direction"})
	unitFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "schemashift_unit_failures_total",
		Help:        "Unit failures by direction and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"direction", "reason"})
	unitsApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "schemashift_units_completed_total",
		Help:        "Units that committed, by direction.",
		ConstLabels: constLabels,
	}, []string{"direction"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "schemashift_last_success_timestamp_seconds",
		Help:        "Unix time of the last run that finished without a failed unit.",
		ConstLabels: constLabels,
	})

	registry.MustRegister(unitDuration, unitFailures, unitsApplied, lastSuccess)

	return &MigrationMetrics{
		registry:     registry,
		unitDuration: unitDuration,
		unitFailures: unitFailures,
		unitsApplied: unitsApplied,
		lastSuccess:  lastSuccess,
	}
}

// ObserveUnit records one unit transaction. A nil err counts as completed.
func (m *MigrationMetrics) ObserveUnit(direction string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	direction = strings.TrimSpace(direction)
	m.unitDuration.WithLabelValues(direction).Observe(elapsed.Seconds())
	if err != nil {
		m.unitFailures.WithLabelValues(direction, ClassifyUnitFailure(err)).Inc()
		return
	}
	m.unitsApplied.WithLabelValues(direction).Inc()
}

// MarkRunSucceeded stamps the last successful run.
func (m *MigrationMetrics) MarkRunSucceeded(at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile flushes the registry in the node exporter textfile format.
func (m *MigrationMetrics) WriteTextfile(path string) error {
	if m == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ClassifyUnitFailure maps a unit error to a bounded reason label.
func ClassifyUnitFailure(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return UnitFailureReasonDeadlineExceeded
	case errors.Is(err, schemadomain.ErrDefinitionDrift):
		return UnitFailureReasonDefinitionDrift
	case errors.Is(err, schemadomain.ErrInvalidIdentifier):
		return UnitFailureReasonInvalidIdentifier
	case db.IsDuplicateKeyErr(err):
		return UnitFailureReasonUniqueViolation
	case db.IsNotNullViolation(err):
		return UnitFailureReasonNotNullViolation
	case db.IsForeignKeyViolation(err):
		return UnitFailureReasonForeignKeyViolation
	case errors.Is(err, schemadomain.ErrIntegrityViolation), db.IsIntegrityViolation(err):
		return UnitFailureReasonIntegrity
	case db.IsInsufficientPrivilege(err):
		return UnitFailureReasonPermission
	default:
		return UnitFailureReasonUnknown
	}
}
