package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/org-control-plane/middleware"
	"github.com/upb/org-control-plane/models"
	"github.com/upb/org-control-plane/services"
	"github.com/upb/org-control-plane/services/organization"
	"github.com/upb/org-control-plane/utils"
	"go.uber.org/zap"
)

// CreateOrganizationRequest is the body of POST /org/create
type CreateOrganizationRequest struct {
	OrganizationName string `json:"organization_name" validate:"required,min=3,max=100"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=6,max=72"`
}

// UpdateOrganizationRequest is the body of PUT /org/update
type UpdateOrganizationRequest struct {
	OrganizationName    string  `json:"organization_name" validate:"required"`
	NewOrganizationName string  `json:"new_organization_name" validate:"required,max=100"`
	Email               *string `json:"email,omitempty" validate:"omitempty,email"`
	Password            *string `json:"password,omitempty" validate:"omitempty,min=6,max=72"`
}

// DeleteOrganizationResponse is returned by DELETE /org/delete
type DeleteOrganizationResponse struct {
	Status string `json:"status"`
}

// OrganizationService is the registry surface the handlers need
type OrganizationService interface {
	Create(ctx context.Context, req organization.CreateRequest) (*models.Organization, error)
	Get(ctx context.Context, name string) (*models.Organization, error)
	Rename(ctx context.Context, req organization.RenameRequest) (*models.Organization, error)
	Delete(ctx context.Context, name, requestingAdminEmail string) error
}

// OrganizationHandler handles the organization lifecycle endpoints
type OrganizationHandler struct {
	orgs   OrganizationService
	logger *zap.Logger
}

// NewOrganizationHandler creates a new OrganizationHandler
func NewOrganizationHandler(orgs OrganizationService, logger *zap.Logger) *OrganizationHandler {
	return &OrganizationHandler{
		orgs:   orgs,
		logger: logger,
	}
}

// HandleCreate handles POST /org/create
func (h *OrganizationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateOrganizationRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	org, err := h.orgs.Create(ctx, organization.CreateRequest{
		OrganizationName: req.OrganizationName,
		Email:            req.Email,
		Password:         req.Password,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, org.Summary()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGet handles GET /org/get?org_name=
func (h *OrganizationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name, ok := orgNameParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "org_name query parameter is required", nil)
		return
	}

	org, err := h.orgs.Get(r.Context(), name)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if org == nil {
		_ = utils.WriteNotFound(w, "organization not found")
		return
	}

	if err := utils.WriteOK(w, org.Detail()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleUpdate handles PUT /org/update. The caller must be the admin of the
// organization being renamed.
func (h *OrganizationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req UpdateOrganizationRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	org, err := h.orgs.Rename(ctx, organization.RenameRequest{
		CurrentName: req.OrganizationName,
		NewName:     req.NewOrganizationName,
		Email:       req.Email,
		Password:    req.Password,
		RequestedBy: principal.AdminEmail,
	})
	if err != nil {
		// A missing source organization is a bad update request
		if services.IsNotFoundError(err) {
			_ = utils.WriteBadRequest(w, errorMessage(err), nil)
			return
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, org.Summary()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleDelete handles DELETE /org/delete?org_name=
func (h *OrganizationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	name, ok := orgNameParam(r)
	if !ok {
		_ = utils.WriteBadRequest(w, "org_name query parameter is required", nil)
		return
	}

	if err := h.orgs.Delete(ctx, name, principal.AdminEmail); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, DeleteOrganizationResponse{Status: "deleted"}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// orgNameParam reads org_name, or its camel-case alias orgName
func orgNameParam(r *http.Request) (string, bool) {
	query := r.URL.Query()
	name := query.Get("org_name")
	if name == "" {
		name = query.Get("orgName")
	}
	if strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}
