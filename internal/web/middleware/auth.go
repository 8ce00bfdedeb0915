package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/classifieds/internal/auth"
	"github.com/JonMunkholm/classifieds/internal/restore"
)

// APIKeyAuth resolves the caller from the X-API-Key header and stores the
// principal in the request context. When required is false every request
// runs as auth.Anonymous.
func APIKeyAuth(keys *auth.KeyRing, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), auth.Anonymous)))
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "AUTH_MISSING_KEY", "missing API key")
				return
			}

			principal, ok := keys.Lookup(apiKey)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "AUTH_INVALID_KEY", "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// RequireCapability rejects callers whose principal lacks c under policy.
func RequireCapability(policy *auth.Policy, c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.FromContext(r.Context())

			if err := policy.Authorize(principal, c); err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					writeAuthError(w, http.StatusUnauthorized, "AUTH_MISSING_KEY", "authentication required")
					return
				}
				slog.Warn("auth: capability denied",
					"principal", principal.ID,
					"role", principal.Role,
					"capability", c,
					"path", r.URL.Path,
				)
				msg := restore.MapError(restore.ErrForbidden)
				writeAuthError(w, http.StatusForbidden, msg.Code, msg.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"message": message,
		"code":    code,
	})
}
