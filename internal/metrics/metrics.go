// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 取り込みをスキップした理由のラベル値。
const (
	SkipReasonOversize  = "oversize"
	SkipReasonMalformed = "malformed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 取り込みパイプラインとHTTP層から利用する。
type MetricsCollector interface {
	RecordUserIngested(hasLabel bool)
	RecordActivityIngested(labeled bool)
	RecordTrackPointsIngested(count int)
	RecordActivitySkipped(reason string)
	RecordIngestDuration(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordQueryLatency(query string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	usersIngested       *prometheus.CounterVec
	activitiesIngested  *prometheus.CounterVec
	trackPointsIngested prometheus.Counter
	activitiesSkipped   *prometheus.CounterVec
	ingestDuration      prometheus.Histogram
	httpStatus          *prometheus.CounterVec
	queryLatency        *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		usersIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrail_users_ingested_total",
			Help: "取り込んだユーザー数（ラベル有無別）",
		}, []string{"has_label"}),
		activitiesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrail_activities_ingested_total",
			Help: "取り込んだアクティビティ数（ラベル照合結果別）",
		}, []string{"labeled"}),
		trackPointsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotrail_trackpoints_ingested_total",
			Help: "取り込んだトラックポイントの合計数",
		}),
		activitiesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrail_activities_skipped_total",
			Help: "取り込まなかった軌跡ファイル数（理由別）",
		}, []string{"reason"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geotrail_ingest_duration_seconds",
			Help:    "取り込み1回あたりの所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotrail_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geotrail_query_latency_seconds",
			Help:    "集計クエリのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
	}

	reg.MustRegister(
		c.usersIngested,
		c.activitiesIngested,
		c.trackPointsIngested,
		c.activitiesSkipped,
		c.ingestDuration,
		c.httpStatus,
		c.queryLatency,
	)

	return c
}

// RecordUserIngested は取り込んだユーザーを記録する。
func (c *Collector) RecordUserIngested(hasLabel bool) {
	c.usersIngested.WithLabelValues(strconv.FormatBool(hasLabel)).Inc()
}

// RecordActivityIngested は取り込んだアクティビティを記録する。
// labeledはラベル照合でモードが設定されたかどうか。
func (c *Collector) RecordActivityIngested(labeled bool) {
	c.activitiesIngested.WithLabelValues(strconv.FormatBool(labeled)).Inc()
}

// RecordTrackPointsIngested は取り込んだトラックポイント数を加算する。
func (c *Collector) RecordTrackPointsIngested(count int) {
	c.trackPointsIngested.Add(float64(count))
}

// RecordActivitySkipped は取り込まなかった軌跡ファイルを記録する。
func (c *Collector) RecordActivitySkipped(reason string) {
	c.activitiesSkipped.WithLabelValues(reason).Inc()
}

// RecordIngestDuration は取り込み全体の所要時間を記録する。
func (c *Collector) RecordIngestDuration(duration time.Duration) {
	c.ingestDuration.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordQueryLatency は集計クエリのレイテンシを記録する。
func (c *Collector) RecordQueryLatency(query string, duration time.Duration) {
	c.queryLatency.WithLabelValues(query).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを公開しないコマンド（report等）で使う。
type NopCollector struct{}

func (NopCollector) RecordUserIngested(bool)                  {}
func (NopCollector) RecordActivityIngested(bool)              {}
func (NopCollector) RecordTrackPointsIngested(int)            {}
func (NopCollector) RecordActivitySkipped(string)             {}
func (NopCollector) RecordIngestDuration(time.Duration)       {}
func (NopCollector) RecordHTTPStatus(int)                     {}
func (NopCollector) RecordQueryLatency(string, time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
