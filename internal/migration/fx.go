package migration

import (
	backfilldomain "github.com/smallbiznis/schemashift/internal/backfill/domain"
	"github.com/smallbiznis/schemashift/internal/clock"
	"github.com/smallbiznis/schemashift/internal/config"
	"github.com/smallbiznis/schemashift/internal/observability/metrics"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Config           config.Config
	Units            Units
	Clock            clock.Clock
	Log              *zap.Logger
	Metrics          *metrics.Metrics          `optional:"true"`
	MigrationMetrics *metrics.MigrationMetrics `optional:"true"`
}

var Module = fx.Module("migration",
	fx.Provide(NewRunner),
)

func NewRunner(p Params) (*Runner, error) {
	policy := schemadomain.DiscardData
	if p.Config.Migration.PreserveData {
		policy = schemadomain.PreserveData
	}
	plan := backfilldomain.PlanFromConfig(p.Config.Backfill)

	return New(p.DB, p.Units, Options{
		LedgerTable:      p.Config.Migration.LedgerTable,
		Policy:           policy,
		Plan:             &plan,
		UUIDExtension:    p.Config.Migration.UUIDExtension,
		MetricsTextfile:  p.Config.Migration.MetricsTextfile,
		Clock:            p.Clock,
		Log:              p.Log,
		Metrics:          p.Metrics,
		MigrationMetrics: p.MigrationMetrics,
	})
}
