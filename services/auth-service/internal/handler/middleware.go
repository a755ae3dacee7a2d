package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	authtypes "github.com/TheSpideX/supporthub-api/services/auth-service/pkg/types"
)

type contextKey string

const (
	userContextKey   contextKey = "auth.user"
	claimsContextKey contextKey = "auth.claims"
)

// requireAuth resolves the access token from the auth cookie or the
// Authorization header and rejects requests whose token or backing session is
// no longer valid.
func (h *AuthHandler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := h.accessTokenFromRequest(r)
		if accessToken == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, claims, err := h.auth.GetUserFromToken(r.Context(), accessToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(h.cookies.AccessTokenName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
		return strings.TrimPrefix(bearer, "Bearer ")
	}
	return ""
}

func userFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok
}

func claimsFromContext(ctx context.Context) (*authtypes.JWTClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*authtypes.JWTClaims)
	return claims, ok
}
