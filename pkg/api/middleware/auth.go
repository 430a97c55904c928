// Package middleware provides HTTP middleware for the dittocdn API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/api/auth"
	"github.com/marmos91/dittocdn/pkg/api/handlers"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext returns the claims JWTAuth stored, or nil.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// extractBearerToken returns the token of a "Bearer <token>" header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWTAuth rejects requests without a valid access token and stores the
// claims in the request context.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				handlers.Unauthorized(w, "Authorization header required")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				logger.DebugCtx(r.Context(), "Rejected API token", logger.Err(err))
				handlers.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
