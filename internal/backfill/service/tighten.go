package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/schemashift/internal/backfill/domain"
	"github.com/smallbiznis/schemashift/internal/observability/logger"
	"github.com/smallbiznis/schemashift/internal/observability/metrics"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	schemaservice "github.com/smallbiznis/schemashift/internal/schema/service"
	"github.com/smallbiznis/schemashift/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type tightener struct {
	catalog schemadomain.Catalog
	applier schemadomain.Applier
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewTightener(catalog schemadomain.Catalog, log *zap.Logger, m *metrics.Metrics) domain.Tightener {
	if log == nil {
		log = zap.NewNop()
	}
	return &tightener{
		catalog: catalog,
		applier: schemaservice.NewApplier(catalog, schemadomain.PreserveData, log, m),
		log:     log.Named("backfill.tighten"),
		metrics: m,
	}
}

func (t *tightener) WithTx(tx *gorm.DB) domain.Tightener {
	catalog := t.catalog.WithTx(tx)
	return &tightener{
		catalog: catalog,
		applier: schemaservice.NewApplier(catalog, schemadomain.PreserveData, t.log, t.metrics),
		log:     t.log,
		metrics: t.metrics,
	}
}

// Tighten refuses to touch the column while any row is still NULL. A NOT
// NULL violation raised by the store itself is reported the same way.
func (t *tightener) Tighten(ctx context.Context, table, column string, spec schemadomain.ColumnSpec) error {
	if spec.Nullable {
		return fmt.Errorf("%w: tightening %s.%s to a nullable spec", schemadomain.ErrInvalidColumnSpec, table, column)
	}

	residual, err := t.catalog.CountNull(ctx, table, column)
	if err != nil {
		return err
	}
	if residual > 0 {
		logger.WithContext(ctx, t.log).Warn("column left nullable",
			zap.String("table", table),
			zap.String("column", column),
			zap.Int64("residual_nulls", residual),
		)
		return &domain.TighteningError{Table: table, Column: column, Residual: residual}
	}

	if err := t.applier.ChangeColumnType(ctx, table, column, spec); err != nil {
		if db.IsNotNullViolation(err) {
			return &domain.TighteningError{Table: table, Column: column, Residual: -1, Err: err}
		}
		return err
	}
	return nil
}
