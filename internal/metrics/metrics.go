// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// トラッカーや通知処理から利用する。
type MetricsCollector interface {
	RecordCheck(outcome string, duration time.Duration, inserted int)
	RecordNotification(sink string, ok bool)
	RecordNotificationDropped()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	checks        *prometheus.CounterVec
	checkLatency  prometheus.Histogram
	itemsInserted prometheus.Counter
	notifications *prometheus.CounterVec
	notifyDropped prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingwatch_checks_total",
			Help: "結果別の検索チェック数",
		}, []string{"outcome"}),
		checkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "listingwatch_check_duration_seconds",
			Help: "検索チェック1回あたりの所要時間（秒）",
			// 人間らしい待機を含むため数十秒から数分かかる
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		itemsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingwatch_items_inserted_total",
			Help: "新規に保存された掲載の合計数",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingwatch_notifications_total",
			Help: "通知先と結果別の通知送信数",
		}, []string{"sink", "result"}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingwatch_notifications_dropped_total",
			Help: "キューが満杯のため破棄された通知数",
		}),
	}

	reg.MustRegister(
		c.checks,
		c.checkLatency,
		c.itemsInserted,
		c.notifications,
		c.notifyDropped,
	)

	return c
}

// RecordCheck はチェック結果を記録する。
func (c *Collector) RecordCheck(outcome string, duration time.Duration, inserted int) {
	c.checks.WithLabelValues(outcome).Inc()
	c.checkLatency.Observe(duration.Seconds())
	if inserted > 0 {
		c.itemsInserted.Add(float64(inserted))
	}
}

// RecordNotification は通知の送信結果を記録する。
func (c *Collector) RecordNotification(sink string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.notifications.WithLabelValues(sink, result).Inc()
}

// RecordNotificationDropped は破棄された通知を記録する。
func (c *Collector) RecordNotificationDropped() {
	c.notifyDropped.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
