package handlers

import (
	"context"
	"net/http"

	"github.com/upb/org-control-plane/middleware"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/services/documents"
	"github.com/upb/org-control-plane/utils"
	"go.uber.org/zap"
)

// InsertDocumentResponse is returned by POST /org/documents
type InsertDocumentResponse struct {
	ID string `json:"id"`
}

// ListDocumentsResponse is returned by GET /org/documents
type ListDocumentsResponse struct {
	Documents []repositories.Document `json:"documents"`
	Count     int                     `json:"count"`
}

// DocumentService reads and writes the caller organization's documents
type DocumentService interface {
	Insert(ctx context.Context, orgID string, doc repositories.Document) (string, error)
	List(ctx context.Context, orgID string, limit int) ([]repositories.Document, error)
}

// DocumentHandler handles tenant document endpoints
type DocumentHandler struct {
	docs   DocumentService
	logger *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(docs DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		docs:   docs,
		logger: logger,
	}
}

// HandleInsert handles POST /org/documents
func (h *DocumentHandler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var doc map[string]interface{}
	if err := utils.DecodeJSON(w, r, &doc); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if doc == nil {
		_ = utils.WriteBadRequest(w, "document must be a JSON object", nil)
		return
	}

	id, err := h.docs.Insert(ctx, principal.OrganizationID, repositories.Document(doc))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, InsertDocumentResponse{ID: id}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleList handles GET /org/documents?limit=
func (h *DocumentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, err := utils.ParseLimit(r, documents.DefaultListLimit, documents.MaxListLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	docs, err := h.docs.List(ctx, principal.OrganizationID, limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, ListDocumentsResponse{Documents: docs, Count: len(docs)}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
