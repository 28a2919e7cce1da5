// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordCycleResult(result string)
	RecordCycleOverlapSkip()
	RecordDomainFailure(domain string)
	RecordDomainSkip(domain string)
	RecordDiffsDetected(domain string, count int)
	RecordNotificationEmitted(channelID string)
	RecordCycleLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cycleResult   *prometheus.CounterVec
	cycleOverlap  prometheus.Counter
	domainFail    *prometheus.CounterVec
	domainSkip    *prometheus.CounterVec
	diffsDetected *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cycleLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycleResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartable_sync_cycle_total",
			Help: "同期サイクルの結果別の合計数",
		}, []string{"result"}),
		cycleOverlap: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartable_sync_cycle_overlap_skip_total",
			Help: "実行中サイクルとの重複によりスキップされたサイクルの合計数",
		}),
		domainFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartable_domain_fail_total",
			Help: "ドメイン別の更新失敗の合計数",
		}, []string{"domain"}),
		domainSkip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartable_domain_skip_total",
			Help: "ドメイン別の更新スキップの合計数",
		}, []string{"domain"}),
		diffsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartable_diffs_detected_total",
			Help: "ドメイン別の検出差分アイテムの合計数",
		}, []string{"domain"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartable_notifications_emitted_total",
			Help: "チャネル別の発火済み通知の合計数",
		}, []string{"channel"}),
		cycleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cartable_sync_cycle_latency_seconds",
			Help:    "同期サイクルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.cycleResult,
		c.cycleOverlap,
		c.domainFail,
		c.domainSkip,
		c.diffsDetected,
		c.notifications,
		c.cycleLatency,
	)

	return c
}

// RecordCycleResult は同期サイクルの結果（no_data, new_data, failed）を記録する。
func (c *Collector) RecordCycleResult(result string) {
	c.cycleResult.WithLabelValues(result).Inc()
}

// RecordCycleOverlapSkip は重複実行によるサイクルスキップを記録する。
func (c *Collector) RecordCycleOverlapSkip() {
	c.cycleOverlap.Inc()
}

// RecordDomainFailure はドメインの更新失敗を記録する。
func (c *Collector) RecordDomainFailure(domain string) {
	c.domainFail.WithLabelValues(domain).Inc()
}

// RecordDomainSkip はドメインの更新スキップを記録する。
func (c *Collector) RecordDomainSkip(domain string) {
	c.domainSkip.WithLabelValues(domain).Inc()
}

// RecordDiffsDetected は検出された差分アイテム数を記録する。
func (c *Collector) RecordDiffsDetected(domain string, count int) {
	c.diffsDetected.WithLabelValues(domain).Add(float64(count))
}

// RecordNotificationEmitted は通知の発火を記録する。
func (c *Collector) RecordNotificationEmitted(channelID string) {
	c.notifications.WithLabelValues(channelID).Inc()
}

// RecordCycleLatency は同期サイクルのレイテンシを記録する。
func (c *Collector) RecordCycleLatency(duration time.Duration) {
	c.cycleLatency.Observe(duration.Seconds())
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
