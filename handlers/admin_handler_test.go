package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/org-control-plane/services"
	"github.com/upb/org-control-plane/services/adminauth"
	"go.uber.org/zap"
)

func TestHandleLogin(t *testing.T) {
	logger := zap.NewNop()
	credentials := map[string]string{"email": "a@x.com", "password": "secret1"}

	t.Run("returns bearer token", func(t *testing.T) {
		svc := new(MockAdminAuthService)
		handler := NewAdminHandler(svc, logger)

		svc.On("Login", mock.Anything, "a@x.com", "secret1").Return(&adminauth.LoginResult{
			AccessToken: "signed.jwt.token",
			TokenType:   "bearer",
			ExpiresIn:   3600,
			Principal:   *acmePrincipal(),
		}, nil)

		w := httptest.NewRecorder()
		handler.HandleLogin(w, newJSONRequest(t, http.MethodPost, "/admin/login", credentials))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"access_token":"signed.jwt.token","token_type":"bearer","expires_in":3600}`, w.Body.String())
	})

	t.Run("wrong password returns 401", func(t *testing.T) {
		svc := new(MockAdminAuthService)
		handler := NewAdminHandler(svc, logger)

		svc.On("Login", mock.Anything, "a@x.com", "secret1").Return(nil, services.ErrInvalidCredentials)

		w := httptest.NewRecorder()
		handler.HandleLogin(w, newJSONRequest(t, http.MethodPost, "/admin/login", credentials))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid email or password", decodeBody(t, w)["message"])
	})

	t.Run("throttled login returns 429", func(t *testing.T) {
		svc := new(MockAdminAuthService)
		handler := NewAdminHandler(svc, logger)

		svc.On("Login", mock.Anything, "a@x.com", "secret1").Return(nil, services.ErrTooManyAttempts)

		w := httptest.NewRecorder()
		handler.HandleLogin(w, newJSONRequest(t, http.MethodPost, "/admin/login", credentials))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("missing password returns 400", func(t *testing.T) {
		svc := new(MockAdminAuthService)
		handler := NewAdminHandler(svc, logger)

		w := httptest.NewRecorder()
		handler.HandleLogin(w, newJSONRequest(t, http.MethodPost, "/admin/login", map[string]string{"email": "a@x.com"}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Login")
	})

	t.Run("empty body returns 400", func(t *testing.T) {
		svc := new(MockAdminAuthService)
		handler := NewAdminHandler(svc, logger)

		w := httptest.NewRecorder()
		handler.HandleLogin(w, newJSONRequest(t, http.MethodPost, "/admin/login", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
