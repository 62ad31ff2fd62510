/**
 * @description
 * Custom middleware for the HTTP router: session token authentication and the
 * admin gate.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5 (via app.AuthService): HS256 session tokens.
 */

package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/wirebuddy/ledger-service/internal/app"
)

// sessionContextKey is a custom type for the context key to avoid collisions.
type sessionContextKey string

const claimsKey sessionContextKey = "sessionClaims"

// TokenParser validates a session token. app.AuthService implements it.
type TokenParser interface {
	ParseToken(tokenString string) (*app.Claims, error)
}

// AuthMiddleware requires a valid "Bearer <token>" session and stores its claims in the
// request context.
func AuthMiddleware(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims, err := parser.ParseToken(strings.TrimSpace(tokenString))
			if err != nil {
				log.Printf("level=warn component=api outcome=reject reason=invalid_token err=%v", err)
				writeError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly rejects sessions without the admin claim. It must run after AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || !claims.Admin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext retrieves the authenticated session's claims.
func ClaimsFromContext(ctx context.Context) (*app.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*app.Claims)
	return claims, ok && claims != nil
}
