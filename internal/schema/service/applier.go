package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/schemashift/internal/observability/logger"
	"github.com/smallbiznis/schemashift/internal/observability/metrics"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"go.uber.org/zap"
)

type applier struct {
	catalog   domain.Catalog
	inspector domain.Inspector
	policy    domain.PreservationPolicy
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewApplier(catalog domain.Catalog, policy domain.PreservationPolicy, log *zap.Logger, m *metrics.Metrics) domain.Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &applier{
		catalog:   catalog,
		inspector: NewInspector(catalog),
		policy:    policy,
		log:       log.Named("schema.applier"),
		metrics:   m,
	}
}

func (a *applier) AddColumnIfAbsent(ctx context.Context, snap domain.TableSnapshot, column string, spec domain.ColumnSpec) (domain.TableSnapshot, error) {
	if !snap.Present() {
		return snap, fmt.Errorf("%w: %s", domain.ErrTableMissing, snap.Table())
	}
	if snap.HasColumn(column) {
		a.skipped(ctx, "add_column", zap.String("table", snap.Table()), zap.String("column", column))
		return snap, nil
	}

	if err := a.catalog.AddColumn(ctx, snap.Table(), domain.Column{Name: column, Spec: spec}); err != nil {
		return snap, err
	}
	a.applied(ctx, "add_column", zap.String("table", snap.Table()), zap.String("column", column))

	return snap.WithColumn(domain.ColumnInfo{
		Name:     column,
		DataType: a.catalog.ColumnType(spec.Type),
		Nullable: spec.Nullable,
		Default:  spec.Default,
	}), nil
}

func (a *applier) RemoveColumnIfPresent(ctx context.Context, snap domain.TableSnapshot, column string) (domain.TableSnapshot, error) {
	if !snap.HasColumn(column) {
		a.skipped(ctx, "drop_column", zap.String("table", snap.Table()), zap.String("column", column))
		return snap, nil
	}

	if err := a.catalog.DropColumn(ctx, snap.Table(), column); err != nil {
		return snap, err
	}
	a.applied(ctx, "drop_column", zap.String("table", snap.Table()), zap.String("column", column))

	return snap.WithoutColumn(column), nil
}

// ChangeColumnType is not guarded. The column must exist; re-running is left
// to unit tracking.
func (a *applier) ChangeColumnType(ctx context.Context, table, column string, spec domain.ColumnSpec) error {
	if err := a.catalog.AlterColumn(ctx, table, domain.Column{Name: column, Spec: spec}); err != nil {
		return err
	}
	a.applied(ctx, "alter_column",
		zap.String("table", table),
		zap.String("column", column),
		zap.String("type", string(spec.Type)),
		zap.Bool("nullable", spec.Nullable),
	)
	return nil
}

func (a *applier) CreateTableIfAbsent(ctx context.Context, def domain.TableDef) (domain.TableSnapshot, error) {
	snap, err := a.inspector.Describe(ctx, def.Name)
	if err != nil {
		return snap, err
	}
	if snap.Present() {
		a.skipped(ctx, "create_table", zap.String("table", def.Name))
		return snap, nil
	}

	if err := a.catalog.CreateTable(ctx, def); err != nil {
		return snap, err
	}
	a.applied(ctx, "create_table", zap.String("table", def.Name))

	return a.inspector.Describe(ctx, def.Name)
}

// DropTable reports whether the table was dropped. Under PreserveData a
// table that still holds rows is kept.
func (a *applier) DropTable(ctx context.Context, table string) (bool, error) {
	snap, err := a.inspector.Describe(ctx, table)
	if err != nil {
		return false, err
	}
	if !snap.Present() {
		a.skipped(ctx, "drop_table", zap.String("table", table))
		return false, nil
	}

	if a.policy == domain.PreserveData {
		rows, err := a.catalog.CountRows(ctx, table)
		if err != nil {
			return false, err
		}
		if rows > 0 {
			logger.WithContext(ctx, a.log).Warn("table preserved on reversal",
				zap.String("table", table),
				zap.Int64("rows", rows),
				zap.Stringer("policy", a.policy),
			)
			a.metrics.RecordSchemaChange(ctx, "drop_table", "preserved")
			return false, nil
		}
	}

	if err := a.catalog.DropTable(ctx, table); err != nil {
		return false, err
	}
	a.applied(ctx, "drop_table", zap.String("table", table), zap.Stringer("policy", a.policy))
	return true, nil
}

func (a *applier) EnsureExtension(ctx context.Context, name string) (domain.Capability, error) {
	capability, err := a.catalog.EnsureExtension(ctx, name)
	if err != nil {
		return capability, err
	}
	logger.WithContext(ctx, a.log).Info("extension checked",
		zap.String("extension", name),
		zap.String("capability", string(capability)),
	)
	return capability, nil
}

func (a *applier) UUIDAvailable(ctx context.Context) (bool, error) {
	return a.catalog.UUIDAvailable(ctx)
}

func (a *applier) applied(ctx context.Context, operation string, fields ...zap.Field) {
	logger.WithContext(ctx, a.log).Info(operation, append(fields, zap.String("outcome", string(domain.OutcomeApplied)))...)
	a.metrics.RecordSchemaChange(ctx, operation, string(domain.OutcomeApplied))
}

func (a *applier) skipped(ctx context.Context, operation string, fields ...zap.Field) {
	logger.WithContext(ctx, a.log).Debug(operation, append(fields, zap.String("outcome", string(domain.OutcomeSkipped)))...)
	a.metrics.RecordSchemaChange(ctx, operation, string(domain.OutcomeSkipped))
}
