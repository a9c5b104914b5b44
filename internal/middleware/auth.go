package middleware

import (
	"context"
	"errors"
	"net/http"

	"go-auth-core/internal/model"
	"go-auth-core/internal/token"
)

type accessVerifier interface {
	VerifyAccessToken(tokenString string) (model.AccessClaims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

type AuthMiddleware struct {
	verifier accessVerifier
}

func NewAuthMiddleware(verifier accessVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeAuthError(w, "MISSING_TOKEN", "authorization header is required", http.StatusUnauthorized)
			return
		}

		raw, ok := token.ExtractTokenFromHeader(header)
		if !ok {
			writeAuthError(w, "INVALID_TOKEN_FORMAT", "authorization header must be 'Bearer <token>'", http.StatusUnauthorized)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(raw)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				writeAuthError(w, "TOKEN_EXPIRED", "access token expired", http.StatusUnauthorized)
				return
			}
			writeAuthError(w, "INVALID_TOKEN", "access token is invalid", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	roleSet := map[string]struct{}{}
	for _, role := range allowedRoles {
		roleSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeAuthError(w, "MISSING_TOKEN", "authentication required", http.StatusUnauthorized)
				return
			}

			if _, allowed := roleSet[claims.Role]; !allowed {
				writeAuthError(w, "FORBIDDEN", "insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (model.AccessClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(model.AccessClaims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, code string, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: message},
	})
}
