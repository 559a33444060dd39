package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	backfilldomain "github.com/smallbiznis/schemashift/internal/backfill/domain"
	backfillservice "github.com/smallbiznis/schemashift/internal/backfill/service"
	"github.com/smallbiznis/schemashift/internal/clock"
	"github.com/smallbiznis/schemashift/internal/observability/logger"
	"github.com/smallbiznis/schemashift/internal/observability/metrics"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	schemarepository "github.com/smallbiznis/schemashift/internal/schema/repository"
	schemaservice "github.com/smallbiznis/schemashift/internal/schema/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "github.com/smallbiznis/schemashift/internal/migration"

var ErrInvalidSteps = errors.New("invalid_steps")

// Options configures a Runner. Zero values fall back to defaults.
type Options struct {
	LedgerTable      string
	Policy           schemadomain.PreservationPolicy
	Plan             *backfilldomain.Plan
	UUIDExtension    string
	NodeID           int64
	MetricsTextfile  string
	Clock            clock.Clock
	Log              *zap.Logger
	Metrics          *metrics.Metrics
	MigrationMetrics *metrics.MigrationMetrics
}

// Runner applies and reverts units in order and records each outcome in the
// ledger.
type Runner struct {
	db        *gorm.DB
	catalog   schemadomain.Catalog
	ledger    *Ledger
	units     Units
	policy    schemadomain.PreservationPolicy
	plan      backfilldomain.Plan
	uuidExt   string
	textfile  string
	clock     clock.Clock
	log       *zap.Logger
	tracer    trace.Tracer
	node      *snowflake.Node
	metrics   *metrics.Metrics
	migration *metrics.MigrationMetrics
	backfill  backfilldomain.Executor
	tightener backfilldomain.Tightener
}

// RunSummary lists the units a single Up or Down call completed.
type RunSummary struct {
	RunID     string
	Direction Direction
	Units     []string
}

// UnitStatus is a unit joined with its ledger entry.
type UnitStatus struct {
	ID         string
	Version    uint64
	Name       string
	State      State
	Direction  Direction
	RunID      string
	Error      string
	Details    map[string]any
	UpdatedAt  *time.Time
	Reversible bool
	// Known is false for ledger rows whose unit is no longer registered.
	Known bool
}

func New(conn *gorm.DB, units []Unit, opts Options) (*Runner, error) {
	sorted, err := sortUnits(units)
	if err != nil {
		return nil, err
	}

	catalog, err := schemarepository.New(conn)
	if err != nil {
		return nil, err
	}

	table := opts.LedgerTable
	if table == "" {
		table = "schema_unit_ledger"
	}
	ledger, err := NewLedger(conn, table)
	if err != nil {
		return nil, err
	}

	plan := backfilldomain.DefaultPlan()
	if opts.Plan != nil {
		plan = *opts.Plan
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	ext := opts.UUIDExtension
	if ext == "" {
		ext = "pgcrypto"
	}

	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("run id generator: %w", err)
	}

	log = log.Named("migration")
	return &Runner{
		db:        conn,
		catalog:   catalog,
		ledger:    ledger,
		units:     sorted,
		policy:    opts.Policy,
		plan:      plan,
		uuidExt:   ext,
		textfile:  opts.MetricsTextfile,
		clock:     clk,
		log:       log,
		tracer:    otel.Tracer(tracerName),
		node:      node,
		metrics:   opts.Metrics,
		migration: opts.MigrationMetrics,
		backfill:  backfillservice.NewExecutor(conn, catalog, clk, log, opts.Metrics),
		tightener: backfillservice.NewTightener(catalog, log, opts.Metrics),
	}, nil
}

func (r *Runner) Units() Units { return r.units }

func (r *Runner) Ledger() *Ledger { return r.ledger }

// Up applies every unit that is not in effect, in version order. It stops at
// the first failure.
func (r *Runner) Up(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: r.node.Generate().String(), Direction: DirectionUp}
	ctx = logger.ContextWithRunID(ctx, summary.RunID)

	entries, err := r.prepare(ctx)
	if err != nil {
		return summary, err
	}

	for _, unit := range r.units {
		entry, seen := entries[unit.ID()]
		if seen && inEffect(entry) {
			continue
		}
		if err := r.run(ctx, summary.RunID, unit, DirectionUp, entry); err != nil {
			r.finish(ctx, summary, err)
			return summary, err
		}
		summary.Units = append(summary.Units, unit.ID())
	}

	r.finish(ctx, summary, nil)
	return summary, nil
}

// Down reverts the last steps units in effect, newest first.
func (r *Runner) Down(ctx context.Context, steps int) (RunSummary, error) {
	summary := RunSummary{RunID: r.node.Generate().String(), Direction: DirectionDown}
	if steps < 1 {
		return summary, fmt.Errorf("%w: %d", ErrInvalidSteps, steps)
	}
	ctx = logger.ContextWithRunID(ctx, summary.RunID)

	entries, err := r.prepare(ctx)
	if err != nil {
		return summary, err
	}

	for i := len(r.units) - 1; i >= 0 && steps > 0; i-- {
		unit := r.units[i]
		entry, seen := entries[unit.ID()]
		if !seen || !inEffect(entry) {
			continue
		}
		if !unit.Reversible() {
			err := &UnitError{Unit: unit.ID(), Direction: DirectionDown, Err: ErrIrreversible}
			r.finish(ctx, summary, err)
			return summary, err
		}
		if err := r.run(ctx, summary.RunID, unit, DirectionDown, entry); err != nil {
			r.finish(ctx, summary, err)
			return summary, err
		}
		summary.Units = append(summary.Units, unit.ID())
		steps--
	}

	r.finish(ctx, summary, nil)
	return summary, nil
}

// Status reports every registered unit, pending when it never ran, followed by
// ledger rows for units that are no longer registered.
func (r *Runner) Status(ctx context.Context) ([]UnitStatus, error) {
	entries, err := r.ledger.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]UnitStatus, 0, len(r.units))
	for _, unit := range r.units {
		status := UnitStatus{
			ID:         unit.ID(),
			Version:    unit.Version,
			Name:       unit.Name,
			State:      StatePending,
			Reversible: unit.Reversible(),
			Known:      true,
		}
		if entry, ok := entries[unit.ID()]; ok {
			applyEntry(&status, entry)
			delete(entries, unit.ID())
		}
		out = append(out, status)
	}

	unknown := make([]string, 0, len(entries))
	for id := range entries {
		unknown = append(unknown, id)
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		status := UnitStatus{ID: id}
		applyEntry(&status, entries[id])
		out = append(out, status)
	}
	return out, nil
}

func applyEntry(status *UnitStatus, entry LedgerEntry) {
	updated := entry.UpdatedAt
	status.State = entry.State
	status.Direction = entry.Direction
	status.RunID = entry.RunID
	status.Error = entry.Error
	status.Details = entry.Details
	status.UpdatedAt = &updated
}

func (r *Runner) prepare(ctx context.Context) (map[string]LedgerEntry, error) {
	if err := r.ledger.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger: %w", err)
	}
	return r.ledger.Load(ctx)
}

// run executes one step of unit. prev is the unit's ledger entry, zero when the
// unit never ran.
func (r *Runner) run(ctx context.Context, runID string, unit Unit, direction Direction, prev LedgerEntry) error {
	from := prev.State
	if from == "" {
		from = StatePending
	}
	ctx = logger.ContextWithUnit(ctx, unit.ID())
	ctx, span := r.tracer.Start(ctx, "migration.unit", trace.WithAttributes(
		attribute.String("unit.id", unit.ID()),
		attribute.String("unit.direction", string(direction)),
	))
	defer span.End()

	active, done, step := StateApplying, StateApplied, unit.Up
	if direction == DirectionDown {
		active, done, step = StateReverting, StateReverted, unit.Down
	}
	if err := Transition(from, active); err != nil {
		return &UnitError{Unit: unit.ID(), Direction: direction, Err: err}
	}

	log := logger.WithContext(ctx, r.log)
	started := r.clock.Now()
	log.Info("unit started", zap.String("direction", string(direction)), zap.String("from", string(from)))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := r.ledger.WithTx(tx)
		if err := ledger.Record(ctx, LedgerEntry{
			UnitID:    unit.ID(),
			State:     active,
			Direction: direction,
			RunID:     runID,
			StartedAt: &started,
			UpdatedAt: started,
		}); err != nil {
			return err
		}

		session := r.session(tx, log, prev.Details)
		if err := step(ctx, session); err != nil {
			return err
		}
		if err := Transition(active, done); err != nil {
			return err
		}

		finished := r.clock.Now()
		return ledger.Record(ctx, LedgerEntry{
			UnitID:     unit.ID(),
			State:      done,
			Direction:  direction,
			RunID:      runID,
			Details:    session.details,
			StartedAt:  &started,
			FinishedAt: &finished,
			UpdatedAt:  finished,
		})
	})

	elapsed := r.clock.Now().Sub(started)
	r.migration.ObserveUnit(string(direction), elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordUnitRun(ctx, string(direction), string(StateFailed), elapsed)
		r.recordFailure(ctx, runID, unit, direction, active, started, prev.Details, err)
		log.Error("unit failed", zap.String("direction", string(direction)), zap.Duration("elapsed", elapsed), zap.Error(err))
		return &UnitError{Unit: unit.ID(), Direction: direction, Err: err}
	}

	r.metrics.RecordUnitRun(ctx, string(direction), string(done), elapsed)
	log.Info("unit finished", zap.String("direction", string(direction)), zap.String("state", string(done)), zap.Duration("elapsed", elapsed))
	return nil
}

// recordFailure writes the failed row after the unit transaction rolled back.
// The details of the last completed step are kept so a retried reversal still
// sees what the forward step recorded.
func (r *Runner) recordFailure(ctx context.Context, runID string, unit Unit, direction Direction, active State,
	started time.Time, details map[string]any, cause error) {
	if err := Transition(active, StateFailed); err != nil {
		r.log.Error("unexpected transition", zap.Error(err))
		return
	}

	// the unit context may be the reason the transaction failed
	ctx = context.WithoutCancel(ctx)
	finished := r.clock.Now()
	err := r.ledger.Record(ctx, LedgerEntry{
		UnitID:     unit.ID(),
		State:      StateFailed,
		Direction:  direction,
		RunID:      runID,
		Error:      cause.Error(),
		Details:    details,
		StartedAt:  &started,
		FinishedAt: &finished,
		UpdatedAt:  finished,
	})
	if err != nil {
		logger.WithContext(ctx, r.log).Error("record unit failure", zap.Error(err))
	}
}

func (r *Runner) session(tx *gorm.DB, log *zap.Logger, recorded map[string]any) *Session {
	catalog := r.catalog.WithTx(tx)
	return &Session{
		Tx:            tx,
		Catalog:       catalog,
		Inspector:     schemaservice.NewInspector(catalog),
		Applier:       schemaservice.NewApplier(catalog, r.policy, r.log, r.metrics),
		Constraints:   schemaservice.NewConstraintManager(catalog, r.log, r.metrics),
		Backfill:      r.backfill.WithTx(tx),
		Tightener:     r.tightener.WithTx(tx),
		Plan:          r.plan,
		UUIDExtension: r.uuidExt,
		Log:           log,
		details:       map[string]any{},
		recorded:      recorded,
	}
}

func (r *Runner) finish(ctx context.Context, summary RunSummary, err error) {
	log := logger.WithContext(ctx, r.log)
	if err == nil {
		r.migration.MarkRunSucceeded(r.clock.Now())
		log.Info("run finished", zap.String("direction", string(summary.Direction)), zap.Int("units", len(summary.Units)))
	}
	if werr := r.migration.WriteTextfile(r.textfile); werr != nil {
		log.Warn("write metrics textfile", zap.String("path", r.textfile), zap.Error(werr))
	}
}
