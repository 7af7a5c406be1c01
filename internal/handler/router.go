package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/citycontent/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// コンテンツ
	Reader ContentReader
	Writer ContentWriter

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	StatusRecorder middleware.StatusRecorder

	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminToken        string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
//
// 管理API（/api/admin/*）にはさらに RateLimit → AdminAuth を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	h := NewContentHandler(deps.Reader, deps.Writer)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 読み取りAPI（認証不要） ---
	r.Route("/api", func(r chi.Router) {
		r.Get("/homepage", h.Homepage)

		r.Route("/content", func(r chi.Router) {
			r.Get("/", h.ListAll)
			r.Get("/slug/{slug}", h.GetBySlug)
			r.Get("/{id}", h.GetByID)
		})

		r.Get("/cities/{city}/articles", h.CityArticles)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.Events)
			r.Get("/upcoming", h.UpcomingEvents)
		})

		r.Get("/categories/{category}", h.ByCategory)
		r.Get("/featured/{surface}", h.Featured)

		// --- 管理API ---
		// ミドルウェアスタック: RateLimit → AdminAuth
		r.Route("/admin", func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}
			r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken))

			r.Post("/content", h.Create)
			r.Put("/content/{id}", h.Update)
			r.Delete("/content/{id}", h.Delete)
			r.Post("/sync", h.Sync)
		})
	})

	return r
}
