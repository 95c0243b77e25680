package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/hitoshi/geotrail/internal/analytics"
	"github.com/hitoshi/geotrail/internal/metrics"
	"github.com/hitoshi/geotrail/internal/middleware"
	"github.com/hitoshi/geotrail/internal/model"
	"github.com/hitoshi/geotrail/internal/repository"
)

// maxRankLimit はランキング系クエリで指定できる件数の上限。
const maxRankLimit = 1000

// AnalyticsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type AnalyticsServiceInterface interface {
	Counts(ctx context.Context) (*analytics.Counts, error)
	AverageActivities(ctx context.Context) (float64, error)
	TopUsers(ctx context.Context, n int) ([]repository.UserActivityCount, error)
	UsersByMode(ctx context.Context, mode string) ([]string, error)
	ModeHistogram(ctx context.Context) ([]repository.ModeCount, error)
	BusiestYear(ctx context.Context) (*analytics.YearSummary, error)
	Distance(ctx context.Context, filter model.ActivityFilter) (*analytics.DistanceResult, error)
	AltitudeGain(ctx context.Context, n int) ([]analytics.UserTotal, error)
	InvalidActivities(ctx context.Context) ([]analytics.UserTotal, error)
	Visitors(ctx context.Context, region analytics.Region) ([]string, error)
	TopModes(ctx context.Context) ([]analytics.UserMode, error)
}

// AnalyticsHandler は集計クエリのHTTPハンドラー。すべて読み取り専用。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface, collector metrics.MetricsCollector, logger *slog.Logger) *AnalyticsHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AnalyticsHandler{
		service: service,
		metrics: collector,
		logger:  logger,
	}
}

type averageResponse struct {
	AverageActivities float64 `json:"average_activities_per_user"`
}

type usersResponse struct {
	Mode  string   `json:"transportation_mode,omitempty"`
	Users []string `json:"users"`
}

// Counts はユーザー・アクティビティ・トラックポイントの件数を返す。
// GET /api/analytics/counts
func (h *AnalyticsHandler) Counts(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "counts", func(ctx context.Context) (any, error) {
		return h.service.Counts(ctx)
	})
}

// AverageActivities はユーザーあたりの平均アクティビティ数を返す。
// GET /api/analytics/average-activities
func (h *AnalyticsHandler) AverageActivities(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "average-activities", func(ctx context.Context) (any, error) {
		avg, err := h.service.AverageActivities(ctx)
		if err != nil {
			return nil, err
		}
		return averageResponse{AverageActivities: avg}, nil
	})
}

// TopUsers はアクティビティ数の多いユーザーを返す。
// GET /api/analytics/top-users?limit=20
func (h *AnalyticsHandler) TopUsers(w http.ResponseWriter, r *http.Request) {
	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	h.serve(w, r, "top-users", func(ctx context.Context) (any, error) {
		return h.service.TopUsers(ctx, limit)
	})
}

// UsersByMode は指定モードのアクティビティを持つユーザーを返す。
// GET /api/analytics/users-by-mode?mode=taxi
func (h *AnalyticsHandler) UsersByMode(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		writeAPIError(w, model.NewMissingParameterError("mode"))
		return
	}
	h.serve(w, r, "users-by-mode", func(ctx context.Context) (any, error) {
		users, err := h.service.UsersByMode(ctx, mode)
		if err != nil {
			return nil, err
		}
		return usersResponse{Mode: mode, Users: users}, nil
	})
}

// Modes はモード別のアクティビティ数を返す。
// GET /api/analytics/modes
func (h *AnalyticsHandler) Modes(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "modes", func(ctx context.Context) (any, error) {
		return h.service.ModeHistogram(ctx)
	})
}

// BusiestYear は最も活動の多い年と最も記録時間の長い年を返す。
// GET /api/analytics/busiest-year
func (h *AnalyticsHandler) BusiestYear(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "busiest-year", func(ctx context.Context) (any, error) {
		return h.service.BusiestYear(ctx)
	})
}

// Distance は条件に一致するアクティビティの移動距離を返す。
// GET /api/analytics/distance?user=112&year=2008&mode=walk
func (h *AnalyticsHandler) Distance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ActivityFilter{
		UserID: q.Get("user"),
		Mode:   q.Get("mode"),
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1 || year > 9999 {
			writeAPIError(w, model.NewInvalidParameterError("year", raw))
			return
		}
		filter.Year = year
	}
	h.serve(w, r, "distance", func(ctx context.Context) (any, error) {
		return h.service.Distance(ctx, filter)
	})
}

// AltitudeGain は累積上昇高度の大きいユーザーを返す。
// GET /api/analytics/altitude-gain?limit=20
func (h *AnalyticsHandler) AltitudeGain(w http.ResponseWriter, r *http.Request) {
	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	h.serve(w, r, "altitude-gain", func(ctx context.Context) (any, error) {
		return h.service.AltitudeGain(ctx, limit)
	})
}

// InvalidActivities は記録間隔の空きを含むアクティビティの数をユーザーごとに返す。
// GET /api/analytics/invalid-activities
func (h *AnalyticsHandler) InvalidActivities(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "invalid-activities", func(ctx context.Context) (any, error) {
		return h.service.InvalidActivities(ctx)
	})
}

// Visitors は指定地点を訪れたユーザーを返す。地点の既定値は故宮。
// GET /api/analytics/visitors?lat=39.916&lon=116.397
func (h *AnalyticsHandler) Visitors(w http.ResponseWriter, r *http.Request) {
	region, apiErr := parseRegion(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	h.serve(w, r, "visitors", func(ctx context.Context) (any, error) {
		users, err := h.service.Visitors(ctx, region)
		if err != nil {
			return nil, err
		}
		return analytics.RegionVisitors{Lat: region.Center.Lat(), Lon: region.Center.Lon(), Users: users}, nil
	})
}

// TopModes はラベル付きユーザーごとに最も多く使った移動手段を返す。
// GET /api/analytics/top-modes
func (h *AnalyticsHandler) TopModes(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "top-modes", func(ctx context.Context) (any, error) {
		return h.service.TopModes(ctx)
	})
}

// serve はクエリを実行し、所要時間を記録してJSONで返す。
func (h *AnalyticsHandler) serve(w http.ResponseWriter, r *http.Request, name string, query func(ctx context.Context) (any, error)) {
	start := time.Now()
	result, err := query(r.Context())
	h.metrics.RecordQueryLatency(name, time.Since(start))

	if err != nil {
		h.handleServiceError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (h *AnalyticsHandler) handleServiceError(w http.ResponseWriter, name string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	h.logger.Error("query failed",
		slog.String("query", name),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

func parseLimit(r *http.Request) (int, *model.APIError) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return analytics.TopN, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxRankLimit {
		return 0, model.NewInvalidParameterError("limit", raw)
	}
	return n, nil
}

// parseRegion は lat と lon を読む。両方省略時は既定の地点、片方だけの指定は不正。
func parseRegion(r *http.Request) (analytics.Region, *model.APIError) {
	q := r.URL.Query()
	rawLat, rawLon := q.Get("lat"), q.Get("lon")
	if rawLat == "" && rawLon == "" {
		return analytics.NewRegion(analytics.ForbiddenCity.Lat(), analytics.ForbiddenCity.Lon()), nil
	}
	if rawLat == "" {
		return analytics.Region{}, model.NewMissingParameterError("lat")
	}
	if rawLon == "" {
		return analytics.Region{}, model.NewMissingParameterError("lon")
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil || lat < -90 || lat > 90 {
		return analytics.Region{}, model.NewInvalidParameterError("lat", rawLat)
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil || lon < -180 || lon > 180 {
		return analytics.Region{}, model.NewInvalidParameterError("lon", rawLon)
	}
	return analytics.NewRegion(lat, lon), nil
}

func writeAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, middleware.StatusForAPIError(apiErr), apiErr)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
