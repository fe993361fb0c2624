package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cosmetica/apiserver/internal/token"
)

// RequireAuth verifies the bearer access token and injects the username
// and role codes into the request context.
func RequireAuth(tokens *token.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := tokens.ParseAccess(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextUsernameKey, claims.Username)
			ctx = context.WithValue(ctx, contextRolesKey, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles allows the request through when the caller holds any of
// the given role codes. It must run after RequireAuth.
func RequireRoles(allowed ...int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles := rolesFromContext(r.Context())
			if len(roles) == 0 {
				writeError(w, http.StatusForbidden, "access denied: user roles not found")
				return
			}
			for _, role := range roles {
				for _, want := range allowed {
					if want != 0 && role == want {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			writeError(w, http.StatusForbidden, "access denied: you do not have the required permissions")
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", errors.New("invalid authorization")
	}
	return tokenString, nil
}
