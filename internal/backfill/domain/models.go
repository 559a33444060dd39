// Package domain describes the derived-entity backfill as data: which
// subjects are candidates and how each derived row is shaped.
package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/schemashift/internal/config"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
)

// SubjectSource selects the candidates: rows of Table whose LinkColumn is null.
type SubjectSource struct {
	Table      string
	Key        string
	LinkColumn string
	// RoleColumn, when set, receives Role on every linked subject.
	RoleColumn string
	Role       string

	CompanyColumn   string
	FirstNameColumn string
	LastNameColumn  string
	PlanColumn      string
	CreatedAtColumn string
	UpdatedAtColumn string
	// ProfileColumns are copied to the organization when both tables have them.
	ProfileColumns []string
}

// OrganizationTemplate shapes one organization per candidate.
type OrganizationTemplate struct {
	Table          string
	Key            string
	NameColumn     string
	PlanColumn     string
	FallbackSuffix string
	DefaultPlan    string
}

// TeamTemplate shapes the single team created under each new organization.
type TeamTemplate struct {
	Table              string
	Key                string
	OrganizationColumn string
	NameColumn         string
	Name               string
}

// MembershipTemplate shapes the membership linking the subject to its team.
type MembershipTemplate struct {
	Table              string
	Key                string
	TeamColumn         string
	SubjectColumn      string
	OrganizationColumn string
	RoleColumn         string
	Role               string
}

// Plan is the full backfill query object.
type Plan struct {
	Subjects     SubjectSource
	Organization OrganizationTemplate
	Team         TeamTemplate
	Membership   MembershipTemplate
	StagingTable string
}

const (
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// DefaultPlan is the users to organizations expansion.
func DefaultPlan() Plan {
	return PlanFromConfig(config.DefaultBackfillConfig())
}

// PlanFromConfig applies the configured naming and role policy to the
// default users to organizations expansion.
func PlanFromConfig(cfg config.BackfillConfig) Plan {
	return Plan{
		Subjects: SubjectSource{
			Table:           "users",
			Key:             "id",
			LinkColumn:      "organization_id",
			RoleColumn:      "role",
			Role:            cfg.SubjectRole,
			CompanyColumn:   "company_name",
			FirstNameColumn: "first_name",
			LastNameColumn:  "last_name",
			PlanColumn:      "subscription_tier",
			CreatedAtColumn: CreatedAtColumn,
			UpdatedAtColumn: UpdatedAtColumn,
			ProfileColumns:  []string{"website", "address", "country", "city"},
		},
		Organization: OrganizationTemplate{
			Table:          "organizations",
			Key:            "id",
			NameColumn:     "name",
			PlanColumn:     "plan",
			FallbackSuffix: cfg.FallbackSuffix,
			DefaultPlan:    cfg.DefaultPlan,
		},
		Team: TeamTemplate{
			Table:              "teams",
			Key:                "id",
			OrganizationColumn: "organization_id",
			NameColumn:         "name",
			Name:               cfg.TeamName,
		},
		Membership: MembershipTemplate{
			Table:              "team_memberships",
			Key:                "id",
			TeamColumn:         "team_id",
			SubjectColumn:      "user_id",
			OrganizationColumn: "organization_id",
			RoleColumn:         "role",
			Role:               cfg.MembershipRole,
		},
		StagingTable: "backfill_candidates",
	}
}

var ErrInvalidPlan = errors.New("invalid_backfill_plan")

// Validate checks every identifier in the plan. Optional columns may be empty.
func (p Plan) Validate() error {
	required := []string{
		p.Subjects.Table, p.Subjects.Key, p.Subjects.LinkColumn,
		p.Organization.Table, p.Organization.Key, p.Organization.NameColumn,
		p.Team.Table, p.Team.Key, p.Team.OrganizationColumn, p.Team.NameColumn,
		p.Membership.Table, p.Membership.Key, p.Membership.TeamColumn, p.Membership.SubjectColumn,
		p.StagingTable,
	}
	for _, name := range required {
		if name == "" {
			return fmt.Errorf("%w: missing required table or column", ErrInvalidPlan)
		}
	}
	if err := schemadomain.ValidateIdentifiers(required...); err != nil {
		return err
	}

	optional := append([]string{
		p.Subjects.RoleColumn, p.Subjects.CompanyColumn, p.Subjects.FirstNameColumn,
		p.Subjects.LastNameColumn, p.Subjects.PlanColumn, p.Subjects.CreatedAtColumn,
		p.Subjects.UpdatedAtColumn, p.Organization.PlanColumn,
		p.Membership.OrganizationColumn, p.Membership.RoleColumn,
	}, p.Subjects.ProfileColumns...)
	for _, name := range optional {
		if name == "" {
			continue
		}
		if err := schemadomain.ValidateIdentifiers(name); err != nil {
			return err
		}
	}

	if p.Team.Name == "" {
		return fmt.Errorf("%w: team name", ErrInvalidPlan)
	}
	if p.Organization.DefaultPlan == "" {
		return fmt.Errorf("%w: default plan", ErrInvalidPlan)
	}
	if p.Subjects.RoleColumn != "" && p.Subjects.Role == "" {
		return fmt.Errorf("%w: subject role", ErrInvalidPlan)
	}
	if p.Membership.RoleColumn != "" && p.Membership.Role == "" {
		return fmt.Errorf("%w: membership role", ErrInvalidPlan)
	}
	return nil
}

// Report counts what a backfill wrote.
type Report struct {
	Candidates           int64 `json:"candidates"`
	OrganizationsCreated int64 `json:"organizations_created"`
	SubjectsLinked       int64 `json:"subjects_linked"`
	TeamsCreated         int64 `json:"teams_created"`
	MembershipsCreated   int64 `json:"memberships_created"`
}

func (r Report) Empty() bool { return r.Candidates == 0 }

// Details flattens the report for the ledger.
func (r Report) Details() map[string]any {
	return map[string]any{
		"candidates":            r.Candidates,
		"organizations_created": r.OrganizationsCreated,
		"subjects_linked":       r.SubjectsLinked,
		"teams_created":         r.TeamsCreated,
		"memberships_created":   r.MembershipsCreated,
	}
}
