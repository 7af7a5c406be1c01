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
// リゾルバー、バックグラウンドワーカー、HTTP層から利用する。
type MetricsCollector interface {
	RecordTierResult(operation, tier string, hit bool)
	RecordRemoteFailure(operation, reason string)
	RecordRemoteLatency(operation string, duration time.Duration)
	RecordSharedFetch(operation string)
	RecordRefreshTask(kind string, err error)
	RecordRefreshDropped(kind string)
	RecordSnapshotSize(bytes int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tierResults    *prometheus.CounterVec
	remoteFail     *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	sharedFetches  *prometheus.CounterVec
	refreshTasks   *prometheus.CounterVec
	refreshDropped *prometheus.CounterVec
	snapshotSize   prometheus.Gauge
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tierResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycontent_tier_results_total",
			Help: "読み取り層ごとのヒット・ミス数",
		}, []string{"operation", "tier", "result"}),
		remoteFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycontent_remote_fail_total",
			Help: "リモートストア呼び出し失敗の合計数",
		}, []string{"operation", "reason"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citycontent_remote_latency_seconds",
			Help:    "リモートストア呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sharedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycontent_shared_fetch_total",
			Help: "同時リクエストの重複排除で共有された取得の数",
		}, []string{"operation"}),
		refreshTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycontent_refresh_tasks_total",
			Help: "バックグラウンド書き込みタスクの実行結果",
		}, []string{"kind", "result"}),
		refreshDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycontent_refresh_dropped_total",
			Help: "キュー満杯で破棄されたバックグラウンドタスク数",
		}, []string{"kind"}),
		snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "citycontent_snapshot_size_bytes",
			Help: "最後に書き込んだスナップショットファイルのサイズ",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citycontent_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.tierResults,
		c.remoteFail,
		c.remoteLatency,
		c.sharedFetches,
		c.refreshTasks,
		c.refreshDropped,
		c.snapshotSize,
		c.httpStatus,
	)

	return c
}

// RecordTierResult は読み取り層のヒット・ミスを記録する。
func (c *Collector) RecordTierResult(operation, tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.tierResults.WithLabelValues(operation, tier, result).Inc()
}

// RecordRemoteFailure はリモート呼び出しの失敗を記録する。
func (c *Collector) RecordRemoteFailure(operation, reason string) {
	c.remoteFail.WithLabelValues(operation, reason).Inc()
}

// RecordRemoteLatency はリモート呼び出しのレイテンシを記録する。
func (c *Collector) RecordRemoteLatency(operation string, duration time.Duration) {
	c.remoteLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSharedFetch は重複排除により結果を共有した取得を記録する。
func (c *Collector) RecordSharedFetch(operation string) {
	c.sharedFetches.WithLabelValues(operation).Inc()
}

// RecordRefreshTask はバックグラウンドタスクの結果を記録する。
func (c *Collector) RecordRefreshTask(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.refreshTasks.WithLabelValues(kind, result).Inc()
}

// RecordRefreshDropped は破棄されたタスクを記録する。
func (c *Collector) RecordRefreshDropped(kind string) {
	c.refreshDropped.WithLabelValues(kind).Inc()
}

// RecordSnapshotSize はスナップショットのサイズを記録する。
func (c *Collector) RecordSnapshotSize(bytes int64) {
	c.snapshotSize.Set(float64(bytes))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordTierResult(string, string, bool) {}
func (Nop) RecordRemoteFailure(string, string) {}
func (Nop) RecordRemoteLatency(string, time.Duration) {}
func (Nop) RecordSharedFetch(string) {}
func (Nop) RecordRefreshTask(string, error) {}
func (Nop) RecordRefreshDropped(string) {}
func (Nop) RecordSnapshotSize(int64) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても、収集できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
