package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/org-control-plane/auth"
	"github.com/upb/org-control-plane/config"
	"github.com/upb/org-control-plane/middleware"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/repositories/arango"
	"github.com/upb/org-control-plane/repositories/memory"
	"github.com/upb/org-control-plane/repositories/mongo"
	"github.com/upb/org-control-plane/repositories/postgres"
	"github.com/upb/org-control-plane/services/adminauth"
	"github.com/upb/org-control-plane/services/audit"
	"github.com/upb/org-control-plane/services/documents"
	"github.com/upb/org-control-plane/services/organization"
	"github.com/upb/org-control-plane/services/provisioner"
	"github.com/upb/org-control-plane/services/ratelimit"
	"github.com/upb/org-control-plane/services/reconcile"
	"go.uber.org/zap"
)

const auditDrainTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Store  repositories.DocumentStore
	Logger *zap.Logger

	// Repositories
	Repositories *repositories.Repositories

	// Services
	Provisioner   *provisioner.Provisioner
	Organizations *organization.Service
	Auth          *adminauth.Gateway
	Documents     *documents.Service
	AuditTrail    *audit.AuditService
	Reconciler    *reconcile.Service

	// Auth
	AuthMiddleware *middleware.AuthMiddleware

	auditStarted bool
	stopLimiter  func() error
	closeOnce    sync.Once
	closeErr     error
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize the document store
	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(ctx, cfg); err != nil {
		_ = deps.Store.Close(ctx)
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("store_driver", cfg.Store.Driver))
	return deps, nil
}

// initStore opens the configured document store backend
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	var (
		store repositories.DocumentStore
		err   error
	)

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		d.Logger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore()
	case config.StoreDriverMongo:
		store, err = mongo.NewStore(ctx, cfg.Store.Mongo, cfg.Store.ConnectMaxElapsed, d.Logger)
	case config.StoreDriverArango:
		store, err = arango.NewStore(ctx, cfg.Store.Arango, cfg.Store.ConnectMaxElapsed, d.Logger)
	case config.StoreDriverPostgres:
		var db *postgres.DB
		db, err = postgres.NewDB(cfg.Store.Postgres, d.Logger)
		if err == nil {
			store = postgres.NewStore(db, d.Logger)
		}
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return err
	}

	d.Store = repositories.WithTimeout(store, cfg.Store.OperationTimeout)
	return nil
}

// initRepositories builds the metadata and audit repositories over the store
func (d *Dependencies) initRepositories(ctx context.Context, cfg *config.Config) error {
	d.Repositories = repositories.NewRepositories(d.Store, cfg.Tenancy.MetadataCollection, cfg.Tenancy.AuditCollection)

	if err := d.Repositories.Organizations.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure organization indexes: %w", err)
	}

	d.Logger.Info("repositories initialized",
		zap.String("metadata_collection", cfg.Tenancy.MetadataCollection),
		zap.String("audit_collection", cfg.Tenancy.AuditCollection))
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	vault := auth.NewBcryptVault(cfg.Auth.BcryptCost)

	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT_SECRET not set, generated a random secret; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	limiter, stopLimiter := ratelimit.New(cfg.RateLimit, d.Logger)
	d.stopLimiter = stopLimiter

	d.AuditTrail = audit.NewAuditService(d.Repositories.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		if err := d.AuditTrail.Start(); err != nil {
			return err
		}
		d.auditStarted = true
		recorder = d.AuditTrail
	}

	d.Provisioner = provisioner.New(d.Store, cfg.Tenancy.CopyBatchSize, d.Logger)
	d.Organizations = organization.NewService(
		d.Repositories.Organizations,
		d.Provisioner,
		vault,
		recorder,
		organization.PolicyFromConfig(cfg.Tenancy),
		d.Logger,
	)
	d.Auth = adminauth.NewGateway(d.Repositories.Organizations, vault, tokens, limiter, recorder, d.Logger)
	d.Documents = documents.NewService(d.Store, d.Repositories.Organizations, d.Logger)
	d.Reconciler = reconcile.NewService(
		d.Repositories.Organizations,
		d.Provisioner,
		cfg.Tenancy.CollectionPrefix,
		[]string{cfg.Tenancy.MetadataCollection, cfg.Tenancy.AuditCollection},
		d.Logger,
	)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Auth, d.Logger)

	d.Logger.Info("services initialized",
		zap.Bool("audit_enabled", cfg.Audit.Enabled),
		zap.Bool("login_rate_limit_enabled", cfg.RateLimit.Enabled))
	return nil
}

// Close gracefully shuts down all dependencies. Later calls return the
// result of the first.
func (d *Dependencies) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.close(ctx)
	})
	return d.closeErr
}

func (d *Dependencies) close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain audit events before the store goes away
	if d.auditStarted {
		if err := d.AuditTrail.Stop(auditDrainTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.stopLimiter != nil {
		if err := d.stopLimiter(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop rate limiter: %w", err))
		}
	}

	if d.Store != nil {
		if err := d.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		} else {
			d.Logger.Info("store closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
