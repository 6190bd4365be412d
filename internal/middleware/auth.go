package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quietriver/reframe/backend/pkg/utils"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDFrom returns the authenticated user id set by Auth.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Auth extracts the user identity from an HS256 bearer token (subject
// claim). With an empty secret it falls back to the X-User-ID header for
// local development. The engine downstream trusts the resulting id.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolveUserID(r, secret)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveUserID(r *http.Request, secret string) (string, error) {
	if secret == "" {
		if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
			return id, nil
		}
		return "", fmt.Errorf("missing X-User-ID header")
	}

	header := r.Header.Get("Authorization")
	// SSE and websocket clients cannot set headers, so accept ?token= too.
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" || raw == header {
		raw = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if raw == "" {
		return "", fmt.Errorf("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}
