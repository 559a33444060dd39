// Package domain contains persistence models for the organization graph the
// backfill derives from users.
package domain

import "time"

// User is a subject. OrganizationID is NULL until the backfill links it.
type User struct {
	ID               string     `gorm:"primaryKey" json:"id"`
	FirstName        *string    `gorm:"column:first_name" json:"first_name"`
	LastName         *string    `gorm:"column:last_name" json:"last_name"`
	Email            string     `gorm:"type:text;not null" json:"email"`
	CompanyName      *string    `gorm:"column:company_name" json:"company_name"`
	SubscriptionTier *string    `gorm:"column:subscription_tier" json:"subscription_tier"`
	Website          *string    `gorm:"column:website" json:"website"`
	Country          *string    `gorm:"column:country" json:"country"`
	City             *string    `gorm:"column:city" json:"city"`
	OrganizationID   *string    `gorm:"column:organization_id" json:"organization_id"`
	Role             *string    `gorm:"column:role" json:"role"`
	CreatedAt        *time.Time `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Organization is created once per unlinked user.
type Organization struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"type:text;not null" json:"name"`
	Plan      string     `gorm:"type:text;not null" json:"plan"`
	Website   *string    `json:"website"`
	Country   *string    `json:"country"`
	City      *string    `json:"city"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

type Team struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	OrganizationID string     `gorm:"column:organization_id;not null" json:"organization_id"`
	Name           string     `gorm:"type:text;not null" json:"name"`
	Description    *string    `json:"description"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

// TableName sets the database table name.
func (Team) TableName() string { return "teams" }

type TeamMembership struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	TeamID         string     `gorm:"column:team_id;not null" json:"team_id"`
	UserID         string     `gorm:"column:user_id;not null" json:"user_id"`
	OrganizationID *string    `gorm:"column:organization_id" json:"organization_id"`
	Role           string     `gorm:"type:text;not null" json:"role"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

// TableName sets the database table name.
func (TeamMembership) TableName() string { return "team_memberships" }
