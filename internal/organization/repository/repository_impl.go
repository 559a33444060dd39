package repository

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Coverage(ctx context.Context, teamName string) (domain.Coverage, error) {
	var coverage domain.Coverage
	db := r.db.WithContext(ctx)

	if err := db.Raw(`SELECT COUNT(*) FROM users`).Scan(&coverage.Users).Error; err != nil {
		return coverage, err
	}
	if err := db.Raw(
		`SELECT COUNT(*) FROM users WHERE organization_id IS NULL`,
	).Scan(&coverage.UsersWithoutOrganization).Error; err != nil {
		return coverage, err
	}
	if err := db.Raw(
		`SELECT COUNT(*)
		 FROM teams t
		 WHERE t.name = ? AND NOT EXISTS (
		   SELECT 1 FROM team_memberships m WHERE m.team_id = t.id
		 )`,
		teamName,
	).Scan(&coverage.PrimaryTeamsWithoutMember).Error; err != nil {
		return coverage, err
	}
	if err := db.Raw(
		`SELECT COUNT(*)
		 FROM organizations o
		 WHERE NOT EXISTS (
		   SELECT 1 FROM teams t WHERE t.organization_id = o.id AND t.name = ?
		 )`,
		teamName,
	).Scan(&coverage.OrganizationsWithoutTeam).Error; err != nil {
		return coverage, err
	}
	if err := db.Raw(
		`SELECT COUNT(*)
		 FROM users u
		 WHERE NOT EXISTS (
		   SELECT 1 FROM team_memberships m WHERE m.user_id = u.id
		 )`,
	).Scan(&coverage.UsersWithoutMembership).Error; err != nil {
		return coverage, err
	}

	return coverage, nil
}

func (r *repository) ListUnlinkedUsers(ctx context.Context, limit int) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("organization_id IS NULL").
		Order("email ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	return users, nil
}

// EnsureUser inserts the user unless the email is taken. It reports whether a
// row was written.
func (r *repository) EnsureUser(ctx context.Context, user domain.User) (bool, error) {
	db := r.db.WithContext(ctx)
	if !db.Migrator().HasColumn(&domain.User{}, "organization_id") {
		db = db.Omit("organization_id", "role")
	} else if !db.Migrator().HasColumn(&domain.User{}, "role") {
		db = db.Omit("role")
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) EnsureOrganization(ctx context.Context, org domain.Organization) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&org)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
