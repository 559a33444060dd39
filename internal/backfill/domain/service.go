package domain

import (
	"context"

	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	"gorm.io/gorm"
)

// Executor derives the organization, team and membership graph for every
// candidate subject in one transaction.
type Executor interface {
	WithTx(tx *gorm.DB) Executor
	Backfill(ctx context.Context, plan Plan) (Report, error)
}

// Tightener makes a backfilled link column mandatory once no NULL remains.
type Tightener interface {
	WithTx(tx *gorm.DB) Tightener
	Tighten(ctx context.Context, table, column string, spec schemadomain.ColumnSpec) error
}
