package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Check if origin is allowed
			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

// SubjectKey holds the authenticated token subject.
const SubjectKey contextKey = "subject"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (subject string, err error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the token subject in the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				respondError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			subject, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject extracts the token subject from context.
func GetSubject(ctx context.Context) string {
	if s, ok := ctx.Value(SubjectKey).(string); ok {
		return s
	}
	return ""
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message},
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
