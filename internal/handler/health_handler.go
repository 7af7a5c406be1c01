package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout はリモートストア疎通確認の上限時間。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はリモートストアへの疎通確認を行う。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
	Remote string `json:"remote"`
}

// NewHealthHandler はヘルスチェックハンドラーを返す。
// 読み取りはスナップショットとローカルストアで継続できるため、
// リモートストアに到達できなくても200を返し、statusをdegradedにする。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Remote: "ok"}

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				slog.Warn("remote store unreachable", slog.String("error", err.Error()))
				resp = healthResponse{Status: "degraded", Remote: "unavailable"}
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
