package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionClaims is the identity-provider session token payload. The subject
// is the provider's stable external user ID; profile fields ride along so a
// first sync can create the user without a second round trip.
type SessionClaims struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ExternalID returns the identity provider's user identifier.
func (c *SessionClaims) ExternalID() string {
	return c.Subject
}

// AuthMiddleware validates identity-provider session tokens.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// RequireSession verifies the Bearer token and injects the session claims
// into the request context.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if auth := r.Header.Get("Authorization"); auth != "" {
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		claims := &SessionClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid || claims.Subject == "" {
			jsonError(w, http.StatusUnauthorized, "invalid session token")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionFromContext retrieves the validated session claims, or nil.
func GetSessionFromContext(ctx context.Context) *SessionClaims {
	claims, ok := ctx.Value(sessionContextKey).(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
