// Package documents stores application-defined documents in the collection
// of the caller's organization.
package documents

import (
	"context"
	"errors"

	"github.com/upb/org-control-plane/models"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/services"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Service reads and writes tenant documents
type Service struct {
	store  repositories.DocumentStore
	orgs   repositories.OrganizationRepository
	logger *zap.Logger
}

// NewService creates a documents service
func NewService(store repositories.DocumentStore, orgs repositories.OrganizationRepository, logger *zap.Logger) *Service {
	return &Service{store: store, orgs: orgs, logger: logger}
}

// resolve finds the current record by id, so a token issued before a rename
// still reaches the migrated collection.
func (s *Service) resolve(ctx context.Context, orgID string) (*models.Organization, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, repositories.ErrDocumentNotFound) {
			return nil, services.ErrOrganizationNotFound
		}
		return nil, services.WrapStorage("failed to read organization", err)
	}
	return org, nil
}

// Insert stores doc in the organization's collection and returns its id
func (s *Service) Insert(ctx context.Context, orgID string, doc repositories.Document) (string, error) {
	if len(doc) == 0 {
		return "", services.NewDomainError(services.ErrorTypeValidation, "document must not be empty", nil)
	}
	org, err := s.resolve(ctx, orgID)
	if err != nil {
		return "", err
	}

	id, err := s.store.InsertOne(ctx, org.CollectionName, doc)
	if err != nil {
		return "", services.WrapStorage("failed to insert document", err)
	}
	s.logger.Debug("document inserted",
		zap.String("collection", org.CollectionName),
		zap.String("document_id", id))
	return id, nil
}

// List returns up to limit documents of the organization's collection
func (s *Service) List(ctx context.Context, orgID string, limit int) ([]repositories.Document, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	org, err := s.resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}

	cur, err := s.store.Find(ctx, org.CollectionName, repositories.Filter{}, repositories.FindOptions{Limit: limit})
	if err != nil {
		return nil, services.WrapStorage("failed to list documents", err)
	}
	docs, err := repositories.ReadAll(ctx, cur)
	if err != nil {
		return nil, services.WrapStorage("failed to list documents", err)
	}
	if docs == nil {
		docs = []repositories.Document{}
	}
	return docs, nil
}
