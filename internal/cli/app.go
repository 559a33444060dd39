package cli

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/clock"
	"github.com/smallbiznis/schemashift/internal/config"
	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/smallbiznis/schemashift/internal/migration/units"
	"github.com/smallbiznis/schemashift/internal/observability"
	"github.com/smallbiznis/schemashift/internal/organization"
	orgdomain "github.com/smallbiznis/schemashift/internal/organization/domain"
	"github.com/smallbiznis/schemashift/internal/seed"
	"github.com/smallbiznis/schemashift/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type deps struct {
	runner        *migration.Runner
	organizations orgdomain.Service
	seeder        *seed.Seeder
	log           *zap.Logger
}

// withApp starts the container for one command and stops it afterwards.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, d deps) error) error {
	var d deps
	app := fx.New(
		fx.Supply(config.Source{File: opts.configFile}),
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		units.Module,
		migration.Module,
		organization.Module,
		seed.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Populate(&d.runner, &d.organizations, &d.seeder, &d.log),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	startCtx, cancelStart := context.WithTimeout(ctx, app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancelStop := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
		defer cancelStop()
		if err := app.Stop(stopCtx); err != nil {
			d.log.Warn("shutdown", zap.Error(err))
		}
	}()

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	return fn(ctx, d)
}
