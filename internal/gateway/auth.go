package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/deskclaw/internal/security"
)

// authMiddleware validates a Bearer token using constant-time comparison.
// Failures are recorded on the audit trail.
func authMiddleware(token string, audit *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				emitAuthFailure(audit, r, "missing authorization header")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, token) {
				next.ServeHTTP(w, r)
				return
			}

			emitAuthFailure(audit, r, "invalid credentials")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func emitAuthFailure(audit *security.AuditLogger, r *http.Request, detail string) {
	audit.Log(security.AuditEvent{
		Type:   security.EventAuthFailure,
		Detail: detail,
		Metadata: map[string]string{
			"source":      "gateway",
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
