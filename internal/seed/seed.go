// Package seed inserts demo users so the backfill can be exercised locally.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	backfilldomain "github.com/smallbiznis/schemashift/internal/backfill/domain"
	backfillservice "github.com/smallbiznis/schemashift/internal/backfill/service"
	"github.com/smallbiznis/schemashift/internal/clock"
	"github.com/smallbiznis/schemashift/internal/config"
	"github.com/smallbiznis/schemashift/internal/observability/metrics"
	"github.com/smallbiznis/schemashift/internal/organization/domain"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	schemarepository "github.com/smallbiznis/schemashift/internal/schema/repository"
	schemaservice "github.com/smallbiznis/schemashift/internal/schema/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const demoOrganizationName = "Existing Co"

var (
	ErrUsersMissing  = errors.New("users_table_missing")
	ErrLinkTightened = errors.New("user_link_tightened")
)

// Result counts the rows a seed run wrote.
type Result struct {
	Users         int   `json:"users"`
	Organizations int64 `json:"organizations"`
	Linked        int64 `json:"linked"`
}

type Seeder struct {
	db        *gorm.DB
	repo      domain.Repository
	inspector schemadomain.Inspector
	backfill  backfilldomain.Executor
	plan      backfilldomain.Plan
	clock     clock.Clock
	log       *zap.Logger
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Repo    domain.Repository
	Config  config.Config
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

var Module = fx.Module("seed",
	fx.Provide(New),
)

func New(p Params) (*Seeder, error) {
	if p.DB == nil {
		return nil, errors.New("seed database handle is required")
	}
	catalog, err := schemarepository.New(p.DB)
	if err != nil {
		return nil, err
	}
	log := p.Log.Named("seed")
	return &Seeder{
		db:        p.DB,
		repo:      p.Repo,
		inspector: schemaservice.NewInspector(catalog),
		backfill:  backfillservice.NewExecutor(p.DB, catalog, p.Clock, log, p.Metrics),
		plan:      backfilldomain.PlanFromConfig(p.Config.Backfill),
		clock:     p.Clock,
		log:       log,
	}, nil
}

// Demo inserts a user with a company name and one without. Once users carry
// an organization link, a third user attached to an existing organization is
// added and every unlinked user is backfilled in the same transaction. Users
// are matched by email so the run is repeatable.
func (s *Seeder) Demo(ctx context.Context) (Result, error) {
	var result Result
	subjects := s.plan.Subjects

	snap, err := s.inspector.Describe(ctx, subjects.Table)
	if err != nil {
		return result, err
	}
	if !snap.Present() {
		return result, fmt.Errorf("%w: run up first", ErrUsersMissing)
	}
	link, linkable := snap.Column(subjects.LinkColumn)
	if linkable && !link.Nullable {
		return result, fmt.Errorf("%w: %s.%s is NOT NULL, run down --steps 1 before seeding and up afterwards",
			ErrLinkTightened, subjects.Table, subjects.LinkColumn)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.clock.Now()

		users := []domain.User{
			{ID: uuid.NewString(), FirstName: ptr("Ann"), LastName: ptr("Smith"), Email: "ann@acme.test",
				CompanyName: ptr("Acme"), SubscriptionTier: ptr("pro"), Website: ptr("https://acme.test"),
				Country: ptr("ID"), City: ptr("Jakarta"), CreatedAt: &now, UpdatedAt: &now},
			{ID: uuid.NewString(), FirstName: ptr("Jo"), LastName: ptr("Lin"), Email: "jo@lin.test",
				CreatedAt: &now, UpdatedAt: &now},
		}

		if linkable {
			orgID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(demoOrganizationName)).String()
			created, err := repo.EnsureOrganization(ctx, domain.Organization{
				ID: orgID, Name: demoOrganizationName, Plan: "pro", CreatedAt: &now, UpdatedAt: &now,
			})
			if err != nil {
				return err
			}
			if created {
				result.Organizations++
			}
			users = append(users, domain.User{
				ID: uuid.NewString(), FirstName: ptr("Cy"), LastName: ptr("Dee"), Email: "cy@existing.test",
				CompanyName: ptr(demoOrganizationName), OrganizationID: &orgID, CreatedAt: &now, UpdatedAt: &now,
			})
		}

		for _, u := range users {
			created, err := repo.EnsureUser(ctx, u)
			if err != nil {
				return err
			}
			if created {
				result.Users++
			}
		}

		if !linkable {
			return nil
		}
		report, err := s.backfill.WithTx(tx).Backfill(ctx, s.plan)
		if err != nil {
			return err
		}
		result.Organizations += report.OrganizationsCreated
		result.Linked = report.SubjectsLinked
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("demo data seeded",
		zap.Int("users", result.Users),
		zap.Int64("organizations", result.Organizations),
		zap.Int64("linked", result.Linked),
	)
	return result, nil
}

func ptr(s string) *string { return &s }
