package config

import "errors"

// BackfillConfig holds the naming and role policy applied when organizations
// are derived from users.
type BackfillConfig struct {
	TeamName       string
	MembershipRole string
	SubjectRole    string
	DefaultPlan    string
	FallbackSuffix string
}

func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		TeamName:       "primary_team",
		MembershipRole: "lead",
		SubjectRole:    "admin",
		DefaultPlan:    "free",
		FallbackSuffix: "Org",
	}
}

func validateBackfillConfig(cfg BackfillConfig) error {
	if cfg.TeamName == "" {
		return errors.New("backfill.team_name cannot be empty")
	}
	if cfg.MembershipRole == "" {
		return errors.New("backfill.membership_role cannot be empty")
	}
	if cfg.SubjectRole == "" {
		return errors.New("backfill.subject_role cannot be empty")
	}
	if cfg.DefaultPlan == "" {
		return errors.New("backfill.default_plan cannot be empty")
	}
	return nil
}
