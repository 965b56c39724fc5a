package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/org-control-plane/middleware"
	"github.com/upb/org-control-plane/models"
	"github.com/upb/org-control-plane/repositories"
	"github.com/upb/org-control-plane/services/adminauth"
	"github.com/upb/org-control-plane/services/organization"
)

type MockOrganizationService struct {
	mock.Mock
}

func (m *MockOrganizationService) Create(ctx context.Context, req organization.CreateRequest) (*models.Organization, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Organization), args.Error(1)
}

func (m *MockOrganizationService) Get(ctx context.Context, name string) (*models.Organization, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Organization), args.Error(1)
}

func (m *MockOrganizationService) Rename(ctx context.Context, req organization.RenameRequest) (*models.Organization, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Organization), args.Error(1)
}

func (m *MockOrganizationService) Delete(ctx context.Context, name, requestingAdminEmail string) error {
	args := m.Called(ctx, name, requestingAdminEmail)
	return args.Error(0)
}

type MockAdminAuthService struct {
	mock.Mock
}

func (m *MockAdminAuthService) Login(ctx context.Context, email, password string) (*adminauth.LoginResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*adminauth.LoginResult), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Insert(ctx context.Context, orgID string, doc repositories.Document) (string, error) {
	args := m.Called(ctx, orgID, doc)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, orgID string, limit int) ([]repositories.Document, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.Document), args.Error(1)
}

type MockAuditTrail struct {
	mock.Mock
}

func (m *MockAuditTrail) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func acmePrincipal() *adminauth.Principal {
	return &adminauth.Principal{
		AdminEmail:       "a@x.com",
		OrganizationID:   "org-1",
		OrganizationName: "Acme",
	}
}

func acmeOrganization() *models.Organization {
	org := models.NewOrganization("Acme", "acme", "org_acme", "a@x.com", "hash")
	org.ID = "org-1"
	return org
}

// newJSONRequest builds a request with body encoded from v (or used as-is
// when v is a string)
func newJSONRequest(t *testing.T, method, target string, v interface{}) *http.Request {
	t.Helper()
	var body []byte
	switch b := v.(type) {
	case nil:
	case string:
		body = []byte(b)
	default:
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// authenticated attaches the principal the auth middleware would set
func authenticated(req *http.Request, principal *adminauth.Principal) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), principal))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}
