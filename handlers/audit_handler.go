package handlers

import (
	"context"
	"net/http"

	"github.com/upb/org-control-plane/middleware"
	"github.com/upb/org-control-plane/models"
	"github.com/upb/org-control-plane/services"
	"github.com/upb/org-control-plane/utils"
	"go.uber.org/zap"
)

// Audit listing bounds
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// AuditTrail lists stored audit entries
type AuditTrail interface {
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error)
}

// AuditResponse is returned by GET /org/audit
type AuditResponse struct {
	Entries []*models.AuditLog `json:"entries"`
	Count   int                `json:"count"`
}

// AuditHandler serves the caller organization's audit trail
type AuditHandler struct {
	trail  AuditTrail
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(trail AuditTrail, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		trail:  trail,
		logger: logger,
	}
}

// HandleList handles GET /org/audit?limit=
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, err := utils.ParseLimit(r, DefaultAuditLimit, MaxAuditLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	entries, err := h.trail.ListByOrganization(ctx, principal.OrganizationID, limit)
	if err != nil {
		HandleServiceError(w, services.WrapStorage("failed to list audit entries", err), h.logger)
		return
	}
	if entries == nil {
		entries = []*models.AuditLog{}
	}

	if err := utils.WriteOK(w, AuditResponse{Entries: entries, Count: len(entries)}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
