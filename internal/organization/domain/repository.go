package domain

import (
	"context"

	"gorm.io/gorm"
)

// Coverage counts users and the organization graph around them. Only
// UsersWithoutOrganization and PrimaryTeamsWithoutMember break the backfill
// guarantees; organizations and users that were linked before the backfill
// keep their own shape and are counted for information.
type Coverage struct {
	Users                     int64 `json:"users"`
	UsersWithoutOrganization  int64 `json:"users_without_organization"`
	PrimaryTeamsWithoutMember int64 `json:"primary_teams_without_member"`
	OrganizationsWithoutTeam  int64 `json:"organizations_without_team"`
	UsersWithoutMembership    int64 `json:"users_without_membership"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Coverage(ctx context.Context, teamName string) (Coverage, error)
	ListUnlinkedUsers(ctx context.Context, limit int) ([]User, error)
	EnsureUser(ctx context.Context, user User) (bool, error)
	EnsureOrganization(ctx context.Context, org Organization) (bool, error)
}
