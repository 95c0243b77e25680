package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/geotrail/internal/metrics"
	"github.com/hitoshi/geotrail/internal/middleware"
)

// HealthChecker はデータベースの疎通確認を行うインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker HealthChecker
	RateLimiter   *middleware.RateLimiter
	Metrics       metrics.MetricsCollector
	MetricsRoute  http.Handler
	Logger        *slog.Logger

	AnalyticsService AnalyticsServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → RateLimit（/api のみ）
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsRoute != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsRoute)
	}

	h := NewAnalyticsHandler(deps.AnalyticsService, deps.Metrics, deps.Logger)

	r.Route("/api/analytics", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/counts", h.Counts)
		r.Get("/average-activities", h.AverageActivities)
		r.Get("/top-users", h.TopUsers)
		r.Get("/users-by-mode", h.UsersByMode)
		r.Get("/modes", h.Modes)
		r.Get("/busiest-year", h.BusiestYear)
		r.Get("/distance", h.Distance)
		r.Get("/altitude-gain", h.AltitudeGain)
		r.Get("/invalid-activities", h.InvalidActivities)
		r.Get("/visitors", h.Visitors)
		r.Get("/top-modes", h.TopModes)
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// healthHandler はデータベースの疎通を確認し、結果を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "unknown"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "down"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "up"})
	}
}
