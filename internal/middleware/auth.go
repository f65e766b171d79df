package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"parcel-tracking/internal/auth"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// Authenticate проверяет bearer токен и кладет идентичность в контекст запроса
func Authenticate(tokens *auth.TokenService, log *logger.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}

			identity, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				log.WithError(err).Debug("Token verification failed")
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRoles пропускает запрос только для перечисленных ролей
func RequireRoles(roles ...models.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			for _, role := range roles {
				if identity.Role == role {
					next(w, r)
					return
				}
			}

			writeAuthError(w, http.StatusForbidden, "Insufficient role")
		}
	}
}

// IdentityFromContext достает идентичность из контекста запроса
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*auth.Identity)
	return identity, ok
}

// WithIdentity кладет идентичность в контекст. Используется в тестах.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func writeAuthError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(statusCode),
		"message": message,
	})
}
