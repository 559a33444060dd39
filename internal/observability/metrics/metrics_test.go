package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("direction", "up"),
		attribute.String("unit_id", "00000000000001_create_users"),
		attribute.String("entity", "organizations"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("direction"), attrs[0].Key)
	assert.Equal(t, attribute.Key("entity"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordUnitRun(context.Background(), "up", "applied", time.Second)
		m.RecordSchemaChange(context.Background(), "add_column", "applied")
		m.RecordBackfillRows(context.Background(), "organizations", 3)
	})
}

func TestRecordBackfillRows(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := New(Config{ServiceName: "schemashift"}, provider)
	require.NoError(t, err)

	m.RecordBackfillRows(context.Background(), "organizations", 3)
	m.RecordBackfillRows(context.Background(), "organizations", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			if md.Name != "schemashift_backfill_rows_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), total)
}
