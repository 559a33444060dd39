package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/schemashift/internal/observability/logger"
	"github.com/smallbiznis/schemashift/internal/observability/metrics"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"go.uber.org/zap"
)

type constraintManager struct {
	catalog domain.Catalog
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewConstraintManager(catalog domain.Catalog, log *zap.Logger, m *metrics.Metrics) domain.ConstraintManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &constraintManager{
		catalog: catalog,
		log:     log.Named("schema.constraints"),
		metrics: m,
	}
}

// AddForeignKeyIfAbsent skips when a foreign key of the same name and
// definition exists and returns a DriftError when only the name matches.
func (m *constraintManager) AddForeignKeyIfAbsent(ctx context.Context, fk domain.ForeignKey) (domain.Outcome, error) {
	if err := domain.ValidateIdentifiers(fk.Table, fk.Name); err != nil {
		return "", err
	}

	existing, err := m.catalog.ForeignKey(ctx, fk.Table, fk.Name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if !sameForeignKey(*existing, fk) {
			return "", &domain.DriftError{
				Kind:     "foreign key",
				Name:     fk.Name,
				Expected: describeForeignKey(fk),
				Actual:   describeForeignKey(*existing),
			}
		}
		return m.outcome(ctx, "add_foreign_key", domain.OutcomeSkipped, zap.String("constraint", fk.Name)), nil
	}

	if err := m.catalog.AddForeignKey(ctx, fk); err != nil {
		return "", err
	}
	return m.outcome(ctx, "add_foreign_key", domain.OutcomeApplied,
		zap.String("constraint", fk.Name),
		zap.String("definition", describeForeignKey(fk)),
	), nil
}

func (m *constraintManager) DropForeignKeyIfPresent(ctx context.Context, table, name string) (domain.Outcome, error) {
	if err := domain.ValidateIdentifiers(table, name); err != nil {
		return "", err
	}

	existing, err := m.catalog.ForeignKey(ctx, table, name)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return m.outcome(ctx, "drop_foreign_key", domain.OutcomeSkipped, zap.String("constraint", name)), nil
	}

	if err := m.catalog.DropForeignKey(ctx, table, name); err != nil {
		return "", err
	}
	return m.outcome(ctx, "drop_foreign_key", domain.OutcomeApplied, zap.String("constraint", name)), nil
}

func (m *constraintManager) AddIndexIfAbsent(ctx context.Context, idx domain.Index) (domain.Outcome, error) {
	if err := domain.ValidateIdentifiers(idx.Name, idx.Table); err != nil {
		return "", err
	}

	existing, err := m.catalog.Index(ctx, idx.Name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if !sameIndex(*existing, idx) {
			return "", &domain.DriftError{
				Kind:     "index",
				Name:     idx.Name,
				Expected: describeIndex(idx),
				Actual:   describeIndex(*existing),
			}
		}
		return m.outcome(ctx, "add_index", domain.OutcomeSkipped, zap.String("index", idx.Name)), nil
	}

	if err := m.catalog.CreateIndex(ctx, idx); err != nil {
		return "", err
	}
	return m.outcome(ctx, "add_index", domain.OutcomeApplied,
		zap.String("index", idx.Name),
		zap.String("definition", describeIndex(idx)),
	), nil
}

func (m *constraintManager) DropIndexIfPresent(ctx context.Context, table, name string) (domain.Outcome, error) {
	if err := domain.ValidateIdentifiers(table, name); err != nil {
		return "", err
	}

	existing, err := m.catalog.Index(ctx, name)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return m.outcome(ctx, "drop_index", domain.OutcomeSkipped, zap.String("index", name)), nil
	}
	if !strings.EqualFold(existing.Table, table) {
		return "", &domain.DriftError{
			Kind:     "index",
			Name:     name,
			Expected: "on " + table,
			Actual:   "on " + existing.Table,
		}
	}

	if err := m.catalog.DropIndex(ctx, *existing); err != nil {
		return "", err
	}
	return m.outcome(ctx, "drop_index", domain.OutcomeApplied, zap.String("index", name)), nil
}

func (m *constraintManager) outcome(ctx context.Context, operation string, outcome domain.Outcome, fields ...zap.Field) domain.Outcome {
	log := logger.WithContext(ctx, m.log)
	fields = append(fields, zap.String("outcome", string(outcome)))
	if outcome == domain.OutcomeApplied {
		log.Info(operation, fields...)
	} else {
		log.Debug(operation, fields...)
	}
	m.metrics.RecordSchemaChange(ctx, operation, string(outcome))
	return outcome
}

func normalizeAction(action domain.ReferentialAction) domain.ReferentialAction {
	if action == "" {
		return domain.ActionNoAction
	}
	return domain.ReferentialAction(strings.ToUpper(string(action)))
}

func sameForeignKey(a, b domain.ForeignKey) bool {
	return strings.EqualFold(a.Column, b.Column) &&
		strings.EqualFold(a.RefTable, b.RefTable) &&
		strings.EqualFold(a.RefColumn, b.RefColumn) &&
		normalizeAction(a.OnUpdate) == normalizeAction(b.OnUpdate) &&
		normalizeAction(a.OnDelete) == normalizeAction(b.OnDelete)
}

func describeForeignKey(fk domain.ForeignKey) string {
	return fmt.Sprintf("(%s) -> %s(%s) ON UPDATE %s ON DELETE %s",
		fk.Column, fk.RefTable, fk.RefColumn, normalizeAction(fk.OnUpdate), normalizeAction(fk.OnDelete))
}

func sameIndex(a, b domain.Index) bool {
	if !strings.EqualFold(a.Table, b.Table) || a.Unique != b.Unique || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if !strings.EqualFold(a.Columns[i], b.Columns[i]) {
			return false
		}
	}
	return true
}

func describeIndex(idx domain.Index) string {
	unique := ""
	if idx.Unique {
		unique = "unique "
	}
	return fmt.Sprintf("%son %s(%s)", unique, idx.Table, strings.Join(idx.Columns, ", "))
}
