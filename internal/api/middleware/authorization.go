package middleware

import (
	"net/http"
	"strings"

	internaljwt "canvas-relay/internal/jwt"

	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// ValidateJWTMiddleware rejects requests without a valid bearer token for
// role. ParseToken already enforces the exp claim.
func ValidateJWTMiddleware(role internaljwt.Role) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := internaljwt.ParseToken(strings.TrimPrefix(header, bearerPrefix), role)
			if err != nil {
				zap.L().Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if id, ok := claims["id"].(string); ok {
				r.Header.Set("X-Operator-ID", id)
			}
			next(w, r)
		}
	}
}

var ValidateAdminJWT = ValidateJWTMiddleware(internaljwt.RoleAdmin)
