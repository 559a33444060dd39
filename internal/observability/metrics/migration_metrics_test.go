package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyUnitFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("apply: %w", context.DeadlineExceeded), want: UnitFailureReasonDeadlineExceeded},
		{name: "drift", err: &schemadomain.DriftError{Kind: "index", Name: "idx"}, want: UnitFailureReasonDefinitionDrift},
		{name: "identifier", err: &schemadomain.IdentifierError{Name: "1x"}, want: UnitFailureReasonInvalidIdentifier},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: UnitFailureReasonUniqueViolation},
		{name: "not_null", err: &pgconn.PgError{Code: "23502"}, want: UnitFailureReasonNotNullViolation},
		{name: "foreign_key", err: &pgconn.PgError{Code: "23503"}, want: UnitFailureReasonForeignKeyViolation},
		{name: "integrity", err: fmt.Errorf("tighten: %w", schemadomain.ErrIntegrityViolation), want: UnitFailureReasonIntegrity},
		{name: "permission", err: &pgconn.PgError{Code: "42501"}, want: UnitFailureReasonPermission},
		{name: "unknown", err: errors.New("boom"), want: UnitFailureReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyUnitFailure(tc.err))
		})
	}
}

func TestObserveUnit(t *testing.T) {
	m := newMigrationMetrics(prometheus.NewRegistry(), Config{ServiceName: "schemashift", Environment: "test"})

	m.ObserveUnit("up", 20*time.Millisecond, nil)
	m.ObserveUnit("up", 10*time.Millisecond, &pgconn.PgError{Code: "23502"})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.unitsApplied.WithLabelValues("up")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.unitFailures.WithLabelValues("up", UnitFailureReasonNotNullViolation)))
}

func TestWriteTextfile(t *testing.T) {
	m := newMigrationMetrics(prometheus.NewRegistry(), Config{Environment: "test"})
	m.ObserveUnit("down", time.Millisecond, nil)
	m.MarkRunSucceeded(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "schemashift.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "schemashift_units_completed_total")
	assert.Contains(t, string(raw), `direction="down"`)
}

func TestNilMigrationMetricsIsSafe(t *testing.T) {
	var m *MigrationMetrics
	assert.NotPanics(t, func() {
		m.ObserveUnit("up", time.Second, errors.New("boom"))
		m.MarkRunSucceeded(time.Now())
	})
	assert.NoError(t, m.WriteTextfile("/nonexistent/x.prom"))
}
