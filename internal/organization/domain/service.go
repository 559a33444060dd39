package domain

import (
	"context"
	"errors"
)

var ErrSchemaNotReady = errors.New("organization_schema_not_ready")

type Service interface {
	Verify(ctx context.Context) (*VerifyReport, error)
}

// VerifyReport is Coverage plus a sample of users still unlinked.
type VerifyReport struct {
	Coverage
	TeamName string   `json:"team_name"`
	Unlinked []string `json:"unlinked,omitempty"`
}

// Complete reports whether every user has an organization and every primary
// team has a member.
func (r VerifyReport) Complete() bool {
	return r.UsersWithoutOrganization == 0 && r.PrimaryTeamsWithoutMember == 0
}
