package tracing

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/observability/logger"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// runSpanProcessor stamps every span, including gorm statement spans, with
// the migration run and unit found on the context.
type runSpanProcessor struct{}

func (runSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if runID := logger.RunIDFromContext(ctx); runID != "" {
		s.SetAttributes(attribute.String("schemashift.run_id", runID))
	}
	if unit := logger.UnitFromContext(ctx); unit != "" {
		s.SetAttributes(attribute.String("schemashift.unit", unit))
	}
}

func (runSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (runSpanProcessor) Shutdown(context.Context) error { return nil }

func (runSpanProcessor) ForceFlush(context.Context) error { return nil }
