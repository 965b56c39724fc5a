package repositories

import (
	"context"
	"fmt"

	"github.com/upb/org-control-plane/models"
)

type auditRepository struct {
	store      DocumentStore
	collection string
}

// NewAuditRepository stores audit entries as documents in collection
func NewAuditRepository(store DocumentStore, collection string) AuditRepository {
	if collection == "" {
		collection = models.AuditLog{}.TableName()
	}
	return &auditRepository{store: store, collection: collection}
}

func (r *auditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	doc := Document{
		"audit_id":          log.ID,
		"action":            string(log.Action),
		"organization_id":   log.OrganizationID,
		"organization_name": log.OrganizationName,
		"actor_email":       log.ActorEmail,
		"request_id":        log.RequestID,
		"timestamp":         log.Timestamp,
	}
	if len(log.Details) > 0 {
		doc["details"] = CloneValue(log.Details)
	}

	if _, err := r.store.InsertOne(ctx, r.collection, doc); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error) {
	cur, err := r.store.Find(ctx, r.collection, Filter{"organization_id": orgID},
		FindOptions{SortField: "timestamp", Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	docs, err := ReadAll(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}

	logs := make([]*models.AuditLog, 0, len(docs))
	for _, doc := range docs {
		entry := &models.AuditLog{}
		entry.ID, _ = doc["audit_id"].(string)
		action, _ := doc["action"].(string)
		entry.Action = models.AuditAction(action)
		entry.OrganizationID, _ = doc["organization_id"].(string)
		entry.OrganizationName, _ = doc["organization_name"].(string)
		entry.ActorEmail, _ = doc["actor_email"].(string)
		entry.RequestID, _ = doc["request_id"].(string)
		if details, ok := asMap(doc["details"]); ok {
			entry.Details = details
		}
		if entry.Timestamp, err = DecodeTime(doc["timestamp"]); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
