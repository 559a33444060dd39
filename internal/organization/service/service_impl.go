package service

import (
	"context"
	"fmt"

	backfilldomain "github.com/smallbiznis/schemashift/internal/backfill/domain"
	"github.com/smallbiznis/schemashift/internal/config"
	"github.com/smallbiznis/schemashift/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const unlinkedSample = 10

type service struct {
	db   *gorm.DB
	repo domain.Repository
	plan backfilldomain.Plan
	log  *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, cfg config.Config, log *zap.Logger) domain.Service {
	return &service{
		db:   db,
		repo: repo,
		plan: backfilldomain.PlanFromConfig(cfg.Backfill),
		log:  log.Named("organization.service"),
	}
}

func (s *service) Verify(ctx context.Context) (*domain.VerifyReport, error) {
	for _, table := range []string{"users", "organizations", "teams", "team_memberships"} {
		if !s.db.WithContext(ctx).Migrator().HasTable(table) {
			return nil, fmt.Errorf("%w: table %s is missing", domain.ErrSchemaNotReady, table)
		}
	}
	if !s.db.WithContext(ctx).Migrator().HasColumn(&domain.User{}, "organization_id") {
		return nil, fmt.Errorf("%w: users.organization_id is missing", domain.ErrSchemaNotReady)
	}

	coverage, err := s.repo.Coverage(ctx, s.plan.Team.Name)
	if err != nil {
		return nil, err
	}
	report := &domain.VerifyReport{Coverage: coverage, TeamName: s.plan.Team.Name}

	if coverage.UsersWithoutOrganization > 0 {
		users, err := s.repo.ListUnlinkedUsers(ctx, unlinkedSample)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			report.Unlinked = append(report.Unlinked, u.Email)
		}
	}

	if !report.Complete() {
		s.log.Warn("backfill coverage incomplete",
			zap.Int64("users_without_organization", coverage.UsersWithoutOrganization),
			zap.Int64("primary_teams_without_member", coverage.PrimaryTeamsWithoutMember),
		)
	}
	return report, nil
}
