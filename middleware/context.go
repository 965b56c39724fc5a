package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/org-control-plane/services/adminauth"
)

// Context key type to avoid collisions
type contextKey string

// PrincipalKey is the context key for the authenticated admin
const PrincipalKey contextKey = "principal"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetPrincipalFromContext retrieves the authenticated admin from context
func GetPrincipalFromContext(ctx context.Context) *adminauth.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if principal, ok := val.(*adminauth.Principal); ok {
			return principal
		}
	}
	return nil
}

// WithPrincipal adds the authenticated admin to the context
func WithPrincipal(ctx context.Context, principal *adminauth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}
