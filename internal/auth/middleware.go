package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const partnerIDKey contextKey = "auth_partner_id"

// PartnerFromContext extracts the authenticated partner id from request context.
func PartnerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(partnerIDKey).(string)
	return id
}

// AuthenticatePartner returns middleware that validates partner JWT tokens
// and injects the partner id into the request context.
func AuthenticatePartner(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			claims, err := jwtMgr.ValidatePartnerToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), partnerIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
