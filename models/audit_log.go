package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionOrganizationCreated AuditAction = "organization_created"
	AuditActionOrganizationRenamed AuditAction = "organization_renamed"
	AuditActionOrganizationDeleted AuditAction = "organization_deleted"
	AuditActionAdminLogin          AuditAction = "admin_login"
	AuditActionAdminLoginFailed    AuditAction = "admin_login_failed"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID               string                 `json:"id"`
	Action           AuditAction            `json:"action"`
	OrganizationID   string                 `json:"organization_id,omitempty"`
	OrganizationName string                 `json:"organization_name,omitempty"`
	ActorEmail       string                 `json:"actor_email,omitempty"`
	RequestID        string                 `json:"request_id,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

// TableName returns the collection name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, orgName string) *AuditLog {
	return &AuditLog{
		ID:               uuid.NewString(),
		Action:           action,
		OrganizationName: orgName,
		Timestamp:        time.Now().UTC(),
	}
}

// WithOrganization sets the organization id
func (a *AuditLog) WithOrganization(id string) *AuditLog {
	a.OrganizationID = id
	return a
}

// WithActor sets the admin email that triggered the action
func (a *AuditLog) WithActor(email string) *AuditLog {
	a.ActorEmail = email
	return a
}

// WithRequest sets the request id
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}

// WithDetail adds one detail entry
func (a *AuditLog) WithDetail(key string, value interface{}) *AuditLog {
	if a.Details == nil {
		a.Details = make(map[string]interface{})
	}
	a.Details[key] = value
	return a
}
