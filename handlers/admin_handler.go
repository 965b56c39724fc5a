package handlers

import (
	"context"
	"net/http"

	"github.com/upb/org-control-plane/services/adminauth"
	"github.com/upb/org-control-plane/utils"
	"go.uber.org/zap"
)

// LoginRequest is the body of POST /admin/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued bearer token
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AdminAuthService performs admin password login
type AdminAuthService interface {
	Login(ctx context.Context, email, password string) (*adminauth.LoginResult, error)
}

// AdminHandler handles admin authentication endpoints
type AdminHandler struct {
	auth   AdminAuthService
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(auth AdminAuthService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		auth:   auth,
		logger: logger,
	}
}

// HandleLogin handles POST /admin/login
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, LoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   result.ExpiresIn,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
