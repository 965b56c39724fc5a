// Package reconcile repairs drift between organization records and the
// physical tenant collections they point at.
package reconcile

import (
	"context"
	"sort"
	"strings"

	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/services"
	"github.com/upb/org-control-plane/services/provisioner"
	"go.uber.org/zap"
)

// Options controls what a run is allowed to change
type Options struct {
	// PurgeOrphans drops prefixed collections no record references
	PurgeOrphans bool
}

// Report describes one reconciliation run
type Report struct {
	Organizations int      `json:"organizations"`
	Reprovisioned []string `json:"reprovisioned"`
	Orphans       []string `json:"orphans"`
	Purged        []string `json:"purged"`
}

// Service reconciles metadata against the store
type Service struct {
	orgs        repositories.OrganizationRepository
	provisioner *provisioner.Provisioner
	prefix      string
	reserved    map[string]struct{}
	logger      *zap.Logger
}

// NewService creates a reconciler for collections named with prefix. Reserved
// collections (metadata, audit) are never treated as orphans.
func NewService(
	orgs repositories.OrganizationRepository,
	prov *provisioner.Provisioner,
	prefix string,
	reserved []string,
	logger *zap.Logger,
) *Service {
	set := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		set[name] = struct{}{}
	}
	return &Service{
		orgs:        orgs,
		provisioner: prov,
		prefix:      prefix,
		reserved:    set,
		logger:      logger,
	}
}

// Run re-provisions collections missing for live records and reports, or
// purges, prefixed collections that no record references. Records are read
// again right before and right after each drop: an orphan claimed in the
// meantime is kept, and one claimed while it was being dropped is recreated.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return nil, services.WrapStorage("failed to list organizations", err)
	}
	existing, err := s.provisioner.ListCollectionNames(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Organizations: len(orgs),
		Reprovisioned: []string{},
		Orphans:       []string{},
		Purged:        []string{},
	}

	referenced := make(map[string]struct{}, len(orgs))
	for _, org := range orgs {
		referenced[org.CollectionName] = struct{}{}
		if _, ok := existing[org.CollectionName]; ok {
			continue
		}
		if _, err := s.provisioner.EnsureCollection(ctx, org.CollectionName); err != nil {
			return report, err
		}
		existing[org.CollectionName] = struct{}{}
		report.Reprovisioned = append(report.Reprovisioned, org.CollectionName)
		s.logger.Info("re-provisioned missing collection",
			zap.String("organization_name", org.OrganizationName),
			zap.String("collection", org.CollectionName))
	}

	for name := range existing {
		if !strings.HasPrefix(name, s.prefix) {
			continue
		}
		if _, ok := s.reserved[name]; ok {
			continue
		}
		if _, ok := referenced[name]; !ok {
			report.Orphans = append(report.Orphans, name)
		}
	}
	sort.Strings(report.Orphans)

	for _, name := range report.Orphans {
		if !opts.PurgeOrphans {
			s.logger.Info("orphaned collection", zap.String("collection", name))
			continue
		}
		claimed, err := s.referenced(ctx, name)
		if err != nil {
			return report, err
		}
		if claimed {
			s.logger.Info("orphaned collection claimed during run, kept", zap.String("collection", name))
			continue
		}
		if _, err := s.provisioner.DropCollection(ctx, name); err != nil {
			return report, err
		}

		claimed, err = s.referenced(ctx, name)
		if err != nil {
			return report, err
		}
		if claimed {
			if _, err := s.provisioner.EnsureCollection(ctx, name); err != nil {
				return report, err
			}
			report.Reprovisioned = append(report.Reprovisioned, name)
			s.logger.Warn("collection claimed while being purged, re-provisioned", zap.String("collection", name))
			continue
		}
		report.Purged = append(report.Purged, name)
		s.logger.Info("purged orphaned collection", zap.String("collection", name))
	}

	return report, nil
}

// referenced reports whether any current record points at the collection
func (s *Service) referenced(ctx context.Context, collection string) (bool, error) {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return false, services.WrapStorage("failed to list organizations", err)
	}
	for _, org := range orgs {
		if org.CollectionName == collection {
			return true, nil
		}
	}
	return false, nil
}
