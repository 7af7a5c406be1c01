package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/citycontent/internal/model"
)

// NewAdminAuthMiddleware は管理APIをBearerトークンで保護するミドルウェアを返す。
// tokenが空の場合は管理APIを無効とし、すべてのリクエストを403で拒否する。
func NewAdminAuthMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteAPIError(w, model.NewAdminDisabledError())
				return
			}

			presented, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				slog.Warn("admin authentication failed",
					slog.String("client_ip", ClientIP(r)),
					slog.String("path", r.URL.Path),
				)
				WriteAPIError(w, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
