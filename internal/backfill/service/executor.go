package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/smallbiznis/schemashift/internal/backfill/domain"
	"github.com/smallbiznis/schemashift/internal/clock"
	"github.com/smallbiznis/schemashift/internal/observability/logger"
	"github.com/smallbiznis/schemashift/internal/observability/metrics"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	schemaservice "github.com/smallbiznis/schemashift/internal/schema/service"
	"github.com/smallbiznis/schemashift/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// catalogType guards type names read back from the catalog before they are
// reused in the staging table definition.
var catalogType = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ (),]*(\[\])?$`)

type executor struct {
	db      *gorm.DB
	catalog schemadomain.Catalog
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewExecutor(conn *gorm.DB, catalog schemadomain.Catalog, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) domain.Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &executor{
		db:      conn,
		catalog: catalog,
		clock:   clk,
		log:     log.Named("backfill"),
		metrics: m,
	}
}

func (e *executor) WithTx(tx *gorm.DB) domain.Executor {
	return &executor{
		db:      tx,
		catalog: e.catalog.WithTx(tx),
		clock:   e.clock,
		log:     e.log,
		metrics: e.metrics,
	}
}

// snapshots are the live shapes the statements are built from.
type snapshots struct {
	subjects      schemadomain.TableSnapshot
	organizations schemadomain.TableSnapshot
	teams         schemadomain.TableSnapshot
	memberships   schemadomain.TableSnapshot
}

// Backfill runs every statement inside one transaction (a savepoint when
// the caller already holds one). Any failure rolls back all of them.
func (e *executor) Backfill(ctx context.Context, plan domain.Plan) (domain.Report, error) {
	if err := plan.Validate(); err != nil {
		return domain.Report{}, err
	}

	var report domain.Report
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run := &backfillRun{
			tx:      tx,
			catalog: e.catalog.WithTx(tx),
			plan:    plan,
			now:     e.clock.Now(),
		}
		var err error
		report, err = run.execute(ctx)
		return err
	})
	if err != nil {
		return domain.Report{}, err
	}

	e.record(ctx, report)
	return report, nil
}

func (e *executor) record(ctx context.Context, report domain.Report) {
	log := logger.WithContext(ctx, e.log)
	if report.Empty() {
		log.Info("no backfill candidates")
		return
	}
	log.Info("backfill committed to unit transaction",
		zap.Int64("candidates", report.Candidates),
		zap.Int64("organizations", report.OrganizationsCreated),
		zap.Int64("subjects_linked", report.SubjectsLinked),
		zap.Int64("teams", report.TeamsCreated),
		zap.Int64("memberships", report.MembershipsCreated),
	)
	e.metrics.RecordBackfillRows(ctx, "organizations", report.OrganizationsCreated)
	e.metrics.RecordBackfillRows(ctx, "subjects", report.SubjectsLinked)
	e.metrics.RecordBackfillRows(ctx, "teams", report.TeamsCreated)
	e.metrics.RecordBackfillRows(ctx, "memberships", report.MembershipsCreated)
}

type backfillRun struct {
	tx      *gorm.DB
	catalog schemadomain.Catalog
	plan    domain.Plan
	now     time.Time
	tables  snapshots
	// profile holds the profile columns present on both subjects and organizations.
	profile []string
}

func (r *backfillRun) execute(ctx context.Context) (domain.Report, error) {
	var report domain.Report

	if err := r.inspect(ctx); err != nil {
		return report, err
	}

	candidates, err := r.catalog.CountNull(ctx, r.plan.Subjects.Table, r.plan.Subjects.LinkColumn)
	if err != nil {
		return report, r.fail("count_candidates", err)
	}
	report.Candidates = candidates
	if candidates == 0 {
		return report, nil
	}

	createStaging, err := r.createStagingSQL()
	if err != nil {
		return report, err
	}
	if _, err := r.exec(ctx, "create_staging", createStaging); err != nil {
		return report, err
	}

	stageSQL, stageArgs := r.stageSQL()
	if _, err := r.exec(ctx, "stage_candidates", stageSQL, stageArgs...); err != nil {
		return report, err
	}

	orgSQL := r.insertOrganizationsSQL()
	if report.OrganizationsCreated, err = r.exec(ctx, "insert_organizations", orgSQL); err != nil {
		return report, err
	}

	linkSQL, linkArgs := r.linkSubjectsSQL()
	if report.SubjectsLinked, err = r.exec(ctx, "link_subjects", linkSQL, linkArgs...); err != nil {
		return report, err
	}

	teamSQL, teamArgs := r.insertTeamsSQL()
	if report.TeamsCreated, err = r.exec(ctx, "insert_teams", teamSQL, teamArgs...); err != nil {
		return report, err
	}

	memberSQL, memberArgs := r.insertMembershipsSQL()
	if report.MembershipsCreated, err = r.exec(ctx, "insert_memberships", memberSQL, memberArgs...); err != nil {
		return report, err
	}

	if _, err := r.exec(ctx, "drop_staging", `DROP TABLE `+r.q(r.plan.StagingTable)); err != nil {
		return report, err
	}

	if report.OrganizationsCreated != candidates || report.SubjectsLinked != candidates {
		return report, &domain.BackfillError{
			Step:      "verify_counts",
			Integrity: true,
			Err: fmt.Errorf("staged %d subjects but created %d organizations and linked %d subjects",
				candidates, report.OrganizationsCreated, report.SubjectsLinked),
		}
	}
	return report, nil
}

func (r *backfillRun) inspect(ctx context.Context) error {
	inspector := schemaservice.NewInspector(r.catalog)
	describe := func(table string) (schemadomain.TableSnapshot, error) {
		p, err := inspector.Describe(ctx, table)
		if err != nil {
			return p, err
		}
		if !p.Present() {
			return p, fmt.Errorf("%w: %s", schemadomain.ErrTableMissing, table)
		}
		return p, nil
	}

	var err error
	if r.tables.subjects, err = describe(r.plan.Subjects.Table); err != nil {
		return err
	}
	if r.tables.organizations, err = describe(r.plan.Organization.Table); err != nil {
		return err
	}
	if r.tables.teams, err = describe(r.plan.Team.Table); err != nil {
		return err
	}
	if r.tables.memberships, err = describe(r.plan.Membership.Table); err != nil {
		return err
	}

	required := []struct {
		table  schemadomain.TableSnapshot
		column string
	}{
		{r.tables.subjects, r.plan.Subjects.Key},
		{r.tables.subjects, r.plan.Subjects.LinkColumn},
		{r.tables.organizations, r.plan.Organization.Key},
		{r.tables.organizations, r.plan.Organization.NameColumn},
		{r.tables.teams, r.plan.Team.Key},
		{r.tables.teams, r.plan.Team.OrganizationColumn},
		{r.tables.teams, r.plan.Team.NameColumn},
		{r.tables.memberships, r.plan.Membership.Key},
		{r.tables.memberships, r.plan.Membership.TeamColumn},
		{r.tables.memberships, r.plan.Membership.SubjectColumn},
	}
	if r.plan.Subjects.RoleColumn != "" {
		required = append(required, struct {
			table  schemadomain.TableSnapshot
			column string
		}{r.tables.subjects, r.plan.Subjects.RoleColumn})
	}
	for _, req := range required {
		if !req.table.HasColumn(req.column) {
			return fmt.Errorf("%w: %s.%s", schemadomain.ErrColumnMissing, req.table.Table(), req.column)
		}
	}

	r.profile = r.profile[:0]
	for _, col := range r.plan.Subjects.ProfileColumns {
		if r.tables.subjects.HasColumn(col) && r.tables.organizations.HasColumn(col) {
			r.profile = append(r.profile, col)
		}
	}
	return nil
}

func (r *backfillRun) q(name string) string { return r.catalog.Quote(name) }

// has reports whether an optional plan column is set and exists on the table.
func has(table schemadomain.TableSnapshot, column string) bool {
	return column != "" && table.HasColumn(column)
}

func (r *backfillRun) columnType(snap schemadomain.TableSnapshot, column string, fallback schemadomain.ColumnType) (string, error) {
	col, ok := snap.Column(column)
	if !ok || strings.TrimSpace(col.DataType) == "" {
		return r.catalog.ColumnType(fallback), nil
	}
	if !catalogType.MatchString(col.DataType) {
		return "", fmt.Errorf("%w: unexpected type %q on %s.%s",
			schemadomain.ErrInvalidColumnSpec, col.DataType, snap.Table(), column)
	}
	return col.DataType, nil
}

func (r *backfillRun) createStagingSQL() (string, error) {
	p := r.plan
	type stagingColumn struct {
		name     string
		snap     schemadomain.TableSnapshot
		source   string
		fallback schemadomain.ColumnType
	}
	columns := []stagingColumn{
		{"subject_id", r.tables.subjects, p.Subjects.Key, schemadomain.TypeUUID},
		{"organization_id", r.tables.organizations, p.Organization.Key, schemadomain.TypeUUID},
		{"team_id", r.tables.teams, p.Team.Key, schemadomain.TypeUUID},
		{"membership_id", r.tables.memberships, p.Membership.Key, schemadomain.TypeUUID},
		{"name", r.tables.organizations, p.Organization.NameColumn, schemadomain.TypeText},
		{"plan", r.tables.organizations, p.Organization.PlanColumn, schemadomain.TypeText},
		{"created_at", r.tables.organizations, domain.CreatedAtColumn, schemadomain.TypeTimestamp},
		{"updated_at", r.tables.organizations, domain.UpdatedAtColumn, schemadomain.TypeTimestamp},
	}
	for _, col := range r.profile {
		columns = append(columns, stagingColumn{col, r.tables.subjects, col, schemadomain.TypeText})
	}

	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		typ, err := r.columnType(col.snap, col.source, col.fallback)
		if err != nil {
			return "", err
		}
		defs = append(defs, r.q(col.name)+" "+typ)
	}
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s)%s",
		r.q(p.StagingTable), strings.Join(defs, ", "), r.catalog.TempTableSuffix()), nil
}

// nameExpr is the trimmed company name, else "{first} {last} {suffix}".
func (r *backfillRun) nameExpr() (string, []any) {
	s := r.plan.Subjects
	part := func(column string) string {
		if has(r.tables.subjects, column) {
			return "COALESCE(s." + r.q(column) + ", '')"
		}
		return "''"
	}
	fallback := fmt.Sprintf("TRIM(TRIM(%s || ' ' || %s) || ' ' || %s)",
		part(s.FirstNameColumn), part(s.LastNameColumn), r.catalog.Placeholder(schemadomain.TypeText))
	args := []any{r.plan.Organization.FallbackSuffix}

	if has(r.tables.subjects, s.CompanyColumn) {
		return fmt.Sprintf("COALESCE(NULLIF(TRIM(s.%s), ''), %s)", r.q(s.CompanyColumn), fallback), args
	}
	return fallback, args
}

func (r *backfillRun) planExpr() string {
	placeholder := r.catalog.Placeholder(schemadomain.TypeText)
	if has(r.tables.subjects, r.plan.Subjects.PlanColumn) {
		return fmt.Sprintf("COALESCE(NULLIF(TRIM(s.%s), ''), %s)", r.q(r.plan.Subjects.PlanColumn), placeholder)
	}
	return placeholder
}

func (r *backfillRun) timestampExpr(column string) string {
	placeholder := r.catalog.Placeholder(schemadomain.TypeTimestamp)
	if has(r.tables.subjects, column) {
		return fmt.Sprintf("COALESCE(s.%s, %s)", r.q(column), placeholder)
	}
	return placeholder
}

func (r *backfillRun) stageSQL() (string, []any) {
	s := r.plan.Subjects
	uuid := r.catalog.UUIDExpr()

	name, args := r.nameExpr()
	args = append(args, r.plan.Organization.DefaultPlan, r.now, r.now)

	targets := []string{"subject_id", "organization_id", "team_id", "membership_id", "name", "plan", "created_at", "updated_at"}
	values := []string{
		"s." + r.q(s.Key), uuid, uuid, uuid, name, r.planExpr(),
		r.timestampExpr(s.CreatedAtColumn), r.timestampExpr(s.UpdatedAtColumn),
	}
	for _, col := range r.profile {
		targets = append(targets, col)
		values = append(values, "s."+r.q(col))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s s WHERE s.%s IS NULL",
		r.q(r.plan.StagingTable), r.quoteAll(targets), strings.Join(values, ", "),
		r.q(s.Table), r.q(s.LinkColumn))
	return sql, args
}

func (r *backfillRun) insertOrganizationsSQL() string {
	o := r.plan.Organization
	targets := []string{o.Key, o.NameColumn}
	sources := []string{"organization_id", "name"}
	if has(r.tables.organizations, o.PlanColumn) {
		targets = append(targets, o.PlanColumn)
		sources = append(sources, "plan")
	}
	for _, ts := range []string{domain.CreatedAtColumn, domain.UpdatedAtColumn} {
		if r.tables.organizations.HasColumn(ts) {
			targets = append(targets, ts)
			sources = append(sources, ts)
		}
	}
	targets = append(targets, r.profile...)
	sources = append(sources, r.profile...)

	// WHERE true keeps SQLite from parsing ON CONFLICT as a join constraint.
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE true ON CONFLICT (%s) DO NOTHING",
		r.q(o.Table), r.quoteAll(targets), r.quoteAll(sources), r.q(r.plan.StagingTable), r.q(o.Key))
}

func (r *backfillRun) linkSubjectsSQL() (string, []any) {
	s := r.plan.Subjects
	table := r.q(s.Table)
	staging := r.q(r.plan.StagingTable)

	set := fmt.Sprintf("%s = (SELECT c.%s FROM %s c WHERE c.%s = %s.%s)",
		r.q(s.LinkColumn), r.q("organization_id"), staging, r.q("subject_id"), table, r.q(s.Key))
	var args []any
	if s.RoleColumn != "" {
		set += fmt.Sprintf(", %s = ?", r.q(s.RoleColumn))
		args = append(args, s.Role)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (SELECT %s FROM %s)",
		table, set, r.q(s.Key), r.q("subject_id"), staging)
	return sql, args
}

func (r *backfillRun) insertTeamsSQL() (string, []any) {
	t := r.plan.Team
	targets := []string{t.Key, t.OrganizationColumn, t.NameColumn}
	sources := []string{r.q("team_id"), r.q("organization_id"), r.catalog.Placeholder(schemadomain.TypeText)}
	args := []any{t.Name}
	for _, ts := range []string{domain.CreatedAtColumn, domain.UpdatedAtColumn} {
		if r.tables.teams.HasColumn(ts) {
			targets = append(targets, ts)
			sources = append(sources, r.catalog.Placeholder(schemadomain.TypeTimestamp))
			args = append(args, r.now)
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		r.q(t.Table), r.quoteAll(targets), strings.Join(sources, ", "), r.q(r.plan.StagingTable)), args
}

func (r *backfillRun) insertMembershipsSQL() (string, []any) {
	m := r.plan.Membership
	targets := []string{m.Key, m.TeamColumn, m.SubjectColumn}
	sources := []string{r.q("membership_id"), r.q("team_id"), r.q("subject_id")}
	var args []any
	if has(r.tables.memberships, m.OrganizationColumn) {
		targets = append(targets, m.OrganizationColumn)
		sources = append(sources, r.q("organization_id"))
	}
	if has(r.tables.memberships, m.RoleColumn) {
		targets = append(targets, m.RoleColumn)
		sources = append(sources, r.catalog.Placeholder(schemadomain.TypeText))
		args = append(args, m.Role)
	}
	for _, ts := range []string{domain.CreatedAtColumn, domain.UpdatedAtColumn} {
		if r.tables.memberships.HasColumn(ts) {
			targets = append(targets, ts)
			sources = append(sources, r.catalog.Placeholder(schemadomain.TypeTimestamp))
			args = append(args, r.now)
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		r.q(m.Table), r.quoteAll(targets), strings.Join(sources, ", "), r.q(r.plan.StagingTable)), args
}

func (r *backfillRun) quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = r.q(name)
	}
	return strings.Join(quoted, ", ")
}

func (r *backfillRun) exec(ctx context.Context, step, sql string, args ...any) (int64, error) {
	res := r.tx.WithContext(ctx).Exec(sql, args...)
	if res.Error != nil {
		return 0, r.fail(step, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *backfillRun) fail(step string, err error) error {
	return &domain.BackfillError{
		Step:      step,
		Integrity: db.IsIntegrityViolation(err),
		Err:       err,
	}
}
