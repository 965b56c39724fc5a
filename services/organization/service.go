// Package organization implements the tenant lifecycle: the metadata record of
// every organization and the dedicated collection it owns.
package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/org-control-plane/auth"
	"github.com/upb/org-control-plane/config"
	"github.com/upb/org-control-plane/internal/naming"
	"github.com/upb/org-control-plane/internal/observability"
	"github.com/upb/org-control-plane/models"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/services"
	"github.com/upb/org-control-plane/services/audit"
	"github.com/upb/org-control-plane/services/provisioner"
	"go.uber.org/zap"
)

// Policy holds the tenancy decisions the registry enforces
type Policy struct {
	CollectionPrefix string
	// EmailScope is config.EmailScopeShared or config.EmailScopeUnique
	EmailScope string
	// ProvisioningPolicy is config.ProvisioningBestEffort or config.ProvisioningStrict
	ProvisioningPolicy        string
	RejectEmptyNormalizedName bool
}

// DefaultPolicy mirrors the base tenancy behavior
func DefaultPolicy() Policy {
	return Policy{
		CollectionPrefix:   naming.DefaultCollectionPrefix,
		EmailScope:         config.EmailScopeShared,
		ProvisioningPolicy: config.ProvisioningBestEffort,
	}
}

// PolicyFromConfig builds a Policy from the tenancy section
func PolicyFromConfig(cfg config.TenancyConfig) Policy {
	return Policy{
		CollectionPrefix:          cfg.CollectionPrefix,
		EmailScope:                cfg.EmailScope,
		ProvisioningPolicy:        cfg.ProvisioningPolicy,
		RejectEmptyNormalizedName: cfg.RejectEmptyNormalizedName,
	}
}

// CreateRequest carries the inputs of Create
type CreateRequest struct {
	OrganizationName string
	Email            string
	Password         string
}

// RenameRequest carries the inputs of Rename. Nil Email/Password keep the
// current admin values. A non-empty RequestedBy must be the current admin.
type RenameRequest struct {
	CurrentName string
	NewName     string
	Email       *string
	Password    *string
	RequestedBy string
}

// Service is the organization registry
type Service struct {
	orgs        repositories.OrganizationRepository
	provisioner *provisioner.Provisioner
	vault       auth.CredentialVault
	audit       audit.Recorder
	policy      Policy
	logger      *zap.Logger
}

// NewService creates the registry. A nil recorder disables auditing.
func NewService(
	orgs repositories.OrganizationRepository,
	prov *provisioner.Provisioner,
	vault auth.CredentialVault,
	recorder audit.Recorder,
	policy Policy,
	logger *zap.Logger,
) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		orgs:        orgs,
		provisioner: prov,
		vault:       vault,
		audit:       recorder,
		policy:      policy,
		logger:      logger,
	}
}

// Create registers a new organization and provisions its collection
func (s *Service) Create(ctx context.Context, req CreateRequest) (org *models.Organization, err error) {
	defer func() { observability.RecordOperation("create", err) }()
	logger := observability.FromContext(ctx, s.logger)

	if _, found, err := s.lookup(ctx, req.OrganizationName); err != nil {
		return nil, err
	} else if found {
		return nil, services.ErrOrganizationExists
	}

	normalized, err := s.normalize(req.OrganizationName)
	if err != nil {
		return nil, err
	}
	if err := s.checkEmailScope(ctx, req.Email, ""); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	collection := naming.CollectionName(s.policy.CollectionPrefix, normalized)
	if err := s.ensureCollection(ctx, "create", collection); err != nil {
		return nil, err
	}

	org = models.NewOrganization(req.OrganizationName, normalized, collection, req.Email, hash)
	if err := s.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, services.ErrOrganizationExists
		}
		return nil, services.WrapStorage("failed to store organization", err)
	}

	logger.Info("organization created",
		zap.String("organization_id", org.ID),
		zap.String("organization_name", org.OrganizationName),
		zap.String("collection", org.CollectionName))
	s.audit.Record(ctx, models.NewAuditLog(models.AuditActionOrganizationCreated, org.OrganizationName).
		WithOrganization(org.ID).
		WithActor(org.Admin.Email).
		WithDetail("collection_name", org.CollectionName))

	return org, nil
}

// Get returns the organization with exactly this name, or nil when there is none
func (s *Service) Get(ctx context.Context, name string) (*models.Organization, error) {
	org, _, err := s.lookup(ctx, name)
	return org, err
}

// Rename changes the name and admin credentials of an organization. When the
// derived collection changes, documents are copied into the new collection and
// the old one is left in place.
func (s *Service) Rename(ctx context.Context, req RenameRequest) (org *models.Organization, err error) {
	defer func() { observability.RecordOperation("rename", err) }()
	logger := observability.FromContext(ctx, s.logger)

	org, found, err := s.lookup(ctx, req.CurrentName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, services.ErrOrganizationNotFound
	}
	if req.RequestedBy != "" && req.RequestedBy != org.Admin.Email {
		return nil, services.ErrForbidden
	}

	newName := req.NewName
	if newName == "" {
		newName = org.OrganizationName
	}
	if newName != org.OrganizationName {
		if _, taken, err := s.lookup(ctx, newName); err != nil {
			return nil, err
		} else if taken {
			return nil, services.ErrNameConflict
		}
	}

	normalized, err := s.normalize(newName)
	if err != nil {
		return nil, err
	}
	if req.Email != nil && *req.Email != org.Admin.Email {
		if err := s.checkEmailScope(ctx, *req.Email, org.ID); err != nil {
			return nil, err
		}
	}

	admin := org.Admin
	if req.Email != nil {
		admin.Email = *req.Email
	}
	if req.Password != nil {
		hash, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		admin.PasswordHash = hash
	}

	oldName := org.OrganizationName
	oldCollection := org.CollectionName
	newCollection := naming.CollectionName(s.policy.CollectionPrefix, normalized)
	copied := 0
	if newCollection != oldCollection {
		if err := s.ensureCollection(ctx, "rename", newCollection); err != nil {
			return nil, err
		}
		copied, err = s.provisioner.CopyAll(ctx, oldCollection, newCollection)
		if err != nil {
			return nil, err
		}
	}

	updated := *org
	updated.OrganizationName = newName
	updated.NormalizedName = normalized
	updated.CollectionName = newCollection
	updated.Admin = admin

	if err := s.orgs.Update(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateKey):
			return nil, services.ErrNameConflict
		case errors.Is(err, repositories.ErrDocumentNotFound):
			return nil, services.ErrOrganizationNotFound
		}
		return nil, services.WrapStorage("failed to update organization", err)
	}

	logger.Info("organization updated",
		zap.String("organization_id", updated.ID),
		zap.String("previous_name", oldName),
		zap.String("organization_name", updated.OrganizationName),
		zap.String("collection", updated.CollectionName),
		zap.Int("documents_copied", copied))
	s.audit.Record(ctx, models.NewAuditLog(models.AuditActionOrganizationRenamed, updated.OrganizationName).
		WithOrganization(updated.ID).
		WithActor(req.RequestedBy).
		WithDetail("previous_name", oldName).
		WithDetail("previous_collection", oldCollection).
		WithDetail("collection_name", updated.CollectionName).
		WithDetail("documents_copied", copied))

	return &updated, nil
}

// Delete removes the organization and drops its collection. Only the
// organization's admin may delete it.
func (s *Service) Delete(ctx context.Context, name, requestingAdminEmail string) (err error) {
	defer func() { observability.RecordOperation("delete", err) }()
	logger := observability.FromContext(ctx, s.logger)

	org, found, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return services.ErrOrganizationNotFound
	}
	if requestingAdminEmail != org.Admin.Email {
		return services.ErrForbidden
	}

	if err := s.dropCollection(ctx, org.CollectionName); err != nil {
		return err
	}

	if err := s.orgs.Delete(ctx, org.ID); err != nil {
		if errors.Is(err, repositories.ErrDocumentNotFound) {
			return services.ErrOrganizationNotFound
		}
		return services.WrapStorage("failed to delete organization", err)
	}

	logger.Info("organization deleted",
		zap.String("organization_id", org.ID),
		zap.String("organization_name", org.OrganizationName))
	s.audit.Record(ctx, models.NewAuditLog(models.AuditActionOrganizationDeleted, org.OrganizationName).
		WithOrganization(org.ID).
		WithActor(requestingAdminEmail).
		WithDetail("collection_name", org.CollectionName))

	return nil
}

func (s *Service) lookup(ctx context.Context, name string) (*models.Organization, bool, error) {
	org, err := s.orgs.GetByName(ctx, name)
	switch {
	case err == nil:
		return org, true, nil
	case errors.Is(err, repositories.ErrDocumentNotFound):
		return nil, false, nil
	default:
		return nil, false, services.WrapStorage("failed to read organization", err)
	}
}

// hashPassword runs before any collection is touched so a rejected password
// leaves nothing behind.
func (s *Service) hashPassword(password string) (string, error) {
	hash, err := s.vault.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", services.NewDomainError(services.ErrorTypeValidation, "password must be at most 72 bytes", err)
	}
	return hash, err
}

func (s *Service) normalize(name string) (string, error) {
	normalized := naming.Normalize(name)
	if normalized == "" && s.policy.RejectEmptyNormalizedName {
		return "", services.ErrEmptyNormalizedName
	}
	return normalized, nil
}

// checkEmailScope rejects an admin email owned by another organization when
// emails are unique per registry. exceptID is the organization being updated.
func (s *Service) checkEmailScope(ctx context.Context, email, exceptID string) error {
	if s.policy.EmailScope != config.EmailScopeUnique {
		return nil
	}
	owners, err := s.orgs.FindByAdminEmail(ctx, email)
	if err != nil {
		return services.WrapStorage("failed to check admin email", err)
	}
	for _, owner := range owners {
		if owner.ID != exceptID {
			return services.ErrAdminEmailInUse
		}
	}
	return nil
}

func (s *Service) ensureCollection(ctx context.Context, step, name string) error {
	res, err := s.provisioner.EnsureCollection(ctx, name)
	if err != nil {
		return s.provisioningFailure(ctx, step+"_ensure_collection", name, err)
	}
	s.logger.Debug("collection ensured", zap.String("collection", name), zap.Stringer("result", res))
	return nil
}

func (s *Service) dropCollection(ctx context.Context, name string) error {
	res, err := s.provisioner.DropCollection(ctx, name)
	if err != nil {
		return s.provisioningFailure(ctx, "delete_drop_collection", name, err)
	}
	s.logger.Debug("collection dropped", zap.String("collection", name), zap.Stringer("result", res))
	return nil
}

// provisioningFailure surfaces err under the strict policy and swallows it
// otherwise. A name the store rejects is a caller error under either policy.
func (s *Service) provisioningFailure(ctx context.Context, step, collection string, err error) error {
	if services.IsValidationError(err) {
		return err
	}
	if s.policy.ProvisioningPolicy == config.ProvisioningStrict {
		return fmt.Errorf("%s: %w", step, err)
	}
	observability.FromContext(ctx, s.logger).Warn("collection provisioning failed, continuing",
		zap.String("step", step),
		zap.String("collection", collection),
		zap.Error(err))
	observability.ProvisioningFailuresSwallowedTotal.WithLabelValues(step).Inc()
	return nil
}
