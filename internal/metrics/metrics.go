// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordBorrow(count int)
	RecordReturn()
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordCoverFetchFailure(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	borrows      prometheus.Counter
	returns      prometheus.Counter
	loginSuccess prometheus.Counter
	loginFail    prometheus.Counter
	httpStatus   *prometheus.CounterVec
	latency      prometheus.Histogram
	coverFail    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		borrows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_borrows_total",
			Help: "貸出冊数の合計",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_returns_total",
			Help: "返却処理の合計数",
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toshokan_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toshokan_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		coverFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toshokan_cover_fetch_fail_total",
			Help: "表紙画像取得失敗の理由別合計数",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.borrows,
		c.returns,
		c.loginSuccess,
		c.loginFail,
		c.httpStatus,
		c.latency,
		c.coverFail,
	)

	return c
}

// RecordBorrow は貸出冊数を記録する。
func (c *Collector) RecordBorrow(count int) {
	c.borrows.Add(float64(count))
}

// RecordReturn は返却処理を記録する。
func (c *Collector) RecordReturn() {
	c.returns.Inc()
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.latency.Observe(duration.Seconds())
}

// RecordCoverFetchFailure は表紙画像取得の失敗を理由付きで記録する。
func (c *Collector) RecordCoverFetchFailure(reason string) {
	c.coverFail.WithLabelValues(reason).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
