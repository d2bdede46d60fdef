// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// キャプション生成の結果ラベル。
const (
	CaptionStructured = "structured"
	CaptionFallback   = "fallback"
	CaptionFailed     = "failed"
)

// 画像補正の結果ラベル。
const (
	EnhanceApplied     = "applied"
	EnhancePassthrough = "passthrough"
	EnhanceFailed      = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordCaption(outcome string, duration time.Duration)
	RecordEnhancement(outcome string)
	RecordLinkedInPublish(step string, success bool)
	RecordTokenRefresh(success bool)
	RecordHTTPStatus(statusCode int)
	RecordSessionsPurged(count int64)
	RecordRateLimited(limit string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	captions        *prometheus.CounterVec
	captionLatency  prometheus.Histogram
	enhancements    *prometheus.CounterVec
	linkedInPublish *prometheus.CounterVec
	tokenRefresh    *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	sessionsPurged  prometheus.Counter
	rateLimited     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		captions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arsia_caption_generations_total",
			Help: "結果別のキャプション生成数",
		}, []string{"outcome"}),
		captionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arsia_caption_latency_seconds",
			Help:    "キャプション生成のレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		enhancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arsia_image_enhancements_total",
			Help: "結果別の画像補正数",
		}, []string{"outcome"}),
		linkedInPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arsia_linkedin_publish_total",
			Help: "ステップと結果別のLinkedIn投稿数",
		}, []string{"step", "result"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arsia_linkedin_token_refresh_total",
			Help: "結果別のLinkedInトークン更新数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arsia_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arsia_revoked_sessions_purged_total",
			Help: "削除された期限切れ失効セッションの合計数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arsia_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"limit"}),
	}

	reg.MustRegister(
		c.captions,
		c.captionLatency,
		c.enhancements,
		c.linkedInPublish,
		c.tokenRefresh,
		c.httpStatus,
		c.sessionsPurged,
		c.rateLimited,
	)

	return c
}

// RecordCaption はキャプション生成の結果とレイテンシを記録する。
func (c *Collector) RecordCaption(outcome string, duration time.Duration) {
	c.captions.WithLabelValues(outcome).Inc()
	c.captionLatency.Observe(duration.Seconds())
}

// RecordEnhancement は画像補正の結果を記録する。
func (c *Collector) RecordEnhancement(outcome string) {
	c.enhancements.WithLabelValues(outcome).Inc()
}

// RecordLinkedInPublish はLinkedIn投稿の結果を記録する。失敗時のstepは失敗したステップ名。
func (c *Collector) RecordLinkedInPublish(step string, success bool) {
	c.linkedInPublish.WithLabelValues(step, resultLabel(success)).Inc()
}

// RecordTokenRefresh はトークン更新の結果を記録する。
func (c *Collector) RecordTokenRefresh(success bool) {
	c.tokenRefresh.WithLabelValues(resultLabel(success)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsPurged は削除された失効セッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// RecordRateLimited はレート制限による拒否を制限種別ごとに記録する。
func (c *Collector) RecordRateLimited(limit string) {
	c.rateLimited.WithLabelValues(limit).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないMetricsCollector。メトリクス不要な呼び出し元で使う。
type Nop struct{}

func (Nop) RecordCaption(string, time.Duration) {}
func (Nop) RecordEnhancement(string)            {}
func (Nop) RecordLinkedInPublish(string, bool)  {}
func (Nop) RecordTokenRefresh(bool)             {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordSessionsPurged(int64)          {}
func (Nop) RecordRateLimited(string)            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集エラー時は部分的な結果を返さず500にする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.HTTPErrorOnError,
		EnableOpenMetrics: true,
	})
}

// SetupMetricsRoute は/metricsだけを提供するHTTPハンドラーを返す。
// ワーカーのようにAPIルーターを持たないプロセスで使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
