package models

import (
	"time"
)

// AdminPrincipal is the single authentication identity bound to an organization
type AdminPrincipal struct {
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// Organization is the metadata record of one tenant
type Organization struct {
	ID               string         `json:"id"`
	OrganizationName string         `json:"organization_name"`
	NormalizedName   string         `json:"normalized_name"`
	CollectionName   string         `json:"collection_name"`
	Admin            AdminPrincipal `json:"admin"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TableName returns the default metadata collection for Organization records
func (Organization) TableName() string {
	return "organizations"
}

// NewOrganization builds an unsaved record; the store assigns ID on insert
func NewOrganization(name, normalized, collection, adminEmail, passwordHash string) *Organization {
	return &Organization{
		OrganizationName: name,
		NormalizedName:   normalized,
		CollectionName:   collection,
		Admin: AdminPrincipal{
			Email:        adminEmail,
			PasswordHash: passwordHash,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// OrganizationSummary is returned by create and update
type OrganizationSummary struct {
	OrganizationName string `json:"organization_name"`
	CollectionName   string `json:"collection_name"`
	AdminEmail       string `json:"admin_email"`
	ID               string `json:"id"`
}

// OrganizationExtra carries fields outside the summary
type OrganizationExtra struct {
	CreatedAt time.Time `json:"created_at"`
}

// OrganizationDetail is returned by get
type OrganizationDetail struct {
	OrganizationSummary
	Extra OrganizationExtra `json:"extra"`
}

// Summary projects the public fields of the record
func (o *Organization) Summary() OrganizationSummary {
	return OrganizationSummary{
		OrganizationName: o.OrganizationName,
		CollectionName:   o.CollectionName,
		AdminEmail:       o.Admin.Email,
		ID:               o.ID,
	}
}

// Detail projects the public fields plus creation time
func (o *Organization) Detail() OrganizationDetail {
	return OrganizationDetail{
		OrganizationSummary: o.Summary(),
		Extra:               OrganizationExtra{CreatedAt: o.CreatedAt},
	}
}
