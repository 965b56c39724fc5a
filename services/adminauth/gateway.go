// Package adminauth authenticates tenant administrators: password login that
// yields a bearer token, and resolution of that token back to the admin.
package adminauth

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/org-control-plane/auth"
	"github.com/upb/org-control-plane/internal/observability"
	"github.com/upb/org-control-plane/models"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/services"
	"github.com/upb/org-control-plane/services/audit"
	"github.com/upb/org-control-plane/services/ratelimit"
	"go.uber.org/zap"
)

// Principal is the admin identity bound into a token
type Principal struct {
	AdminEmail       string
	OrganizationID   string
	OrganizationName string
}

// LoginResult is returned by a successful login
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	Principal   Principal
}

// Gateway implements admin login and token authentication
type Gateway struct {
	orgs    repositories.OrganizationRepository
	vault   auth.CredentialVault
	tokens  *auth.TokenIssuer
	limiter ratelimit.Limiter
	audit   audit.Recorder
	logger  *zap.Logger
}

// NewGateway creates a gateway. A nil limiter or recorder disables that concern.
func NewGateway(
	orgs repositories.OrganizationRepository,
	vault auth.CredentialVault,
	tokens *auth.TokenIssuer,
	limiter ratelimit.Limiter,
	recorder audit.Recorder,
	logger *zap.Logger,
) *Gateway {
	if limiter == nil {
		limiter = ratelimit.NopLimiter{}
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Gateway{
		orgs:    orgs,
		vault:   vault,
		tokens:  tokens,
		limiter: limiter,
		audit:   recorder,
		logger:  logger,
	}
}

// Login verifies the admin's password against the first organization, by
// creation time, whose admin has this email and issues a token bound to it.
func (g *Gateway) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	defer func() { observability.RecordOperation("login", err) }()
	logger := observability.FromContext(ctx, g.logger)

	key := strings.ToLower(strings.TrimSpace(email))
	allowed, err := g.limiter.Allow(ctx, key)
	if err != nil {
		// A limiter outage fails open
		logger.Warn("login rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		g.audit.Record(ctx, models.NewAuditLog(models.AuditActionAdminLoginFailed, "").
			WithActor(email).
			WithDetail("reason", "rate_limited"))
		return nil, services.ErrTooManyAttempts
	}

	owners, err := g.orgs.FindByAdminEmail(ctx, email)
	if err != nil {
		return nil, services.WrapStorage("failed to look up admin", err)
	}
	if len(owners) == 0 {
		g.recordFailure(ctx, email, nil, "unknown_email")
		return nil, services.ErrInvalidCredentials
	}
	org := owners[0]

	if err := g.vault.Verify(org.Admin.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			logger.Error("password verification failed",
				zap.String("organization_id", org.ID),
				zap.Error(err))
		}
		g.recordFailure(ctx, email, org, "bad_password")
		return nil, services.ErrInvalidCredentials
	}

	token, err := g.tokens.Issue(org.Admin.Email, org.ID, org.OrganizationName)
	if err != nil {
		return nil, err
	}

	if err := g.limiter.Reset(ctx, key); err != nil {
		logger.Warn("failed to reset login attempts", zap.Error(err))
	}
	if len(owners) > 1 {
		logger.Info("admin email shared by several organizations, using oldest",
			zap.Int("matches", len(owners)),
			zap.String("organization_id", org.ID))
	}
	g.audit.Record(ctx, models.NewAuditLog(models.AuditActionAdminLogin, org.OrganizationName).
		WithOrganization(org.ID).
		WithActor(org.Admin.Email))

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(g.tokens.TTL().Seconds()),
		Principal: Principal{
			AdminEmail:       org.Admin.Email,
			OrganizationID:   org.ID,
			OrganizationName: org.OrganizationName,
		},
	}, nil
}

func (g *Gateway) recordFailure(ctx context.Context, email string, org *models.Organization, reason string) {
	entry := models.NewAuditLog(models.AuditActionAdminLoginFailed, "").
		WithActor(email).
		WithDetail("reason", reason)
	if org != nil {
		entry.OrganizationName = org.OrganizationName
		entry.WithOrganization(org.ID)
	}
	g.audit.Record(ctx, entry)
}

// Authenticate resolves a bearer token to the admin it was issued for
func (g *Gateway) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := g.tokens.Validate(token)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeUnauthenticated, "invalid or expired token", err)
	}
	return &Principal{
		AdminEmail:       claims.AdminEmail,
		OrganizationID:   claims.OrganizationID,
		OrganizationName: claims.OrganizationName,
	}, nil
}
