// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/clubcal/internal/provider"
)

// MetricsCollector はメトリクス収集のインターフェース。
// プロバイダー、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordProviderCall(op string, duration time.Duration, err error)
	RecordGroupCreated()
	RecordMembershipChange(action string)
	RecordOccurrences(horizon string, count int)
	RecordCleanup(kind string, deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	providerCalls     *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	groupsCreated     prometheus.Counter
	membershipChanges *prometheus.CounterVec
	occurrences       *prometheus.HistogramVec
	cleanupDeleted    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcal_provider_calls_total",
			Help: "カレンダープロバイダー呼び出しの合計数",
		}, []string{"op", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubcal_provider_call_latency_seconds",
			Help:    "カレンダープロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		groupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clubcal_groups_created_total",
			Help: "作成されたグループの合計数",
		}),
		membershipChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcal_membership_changes_total",
			Help: "メンバーシップ変更の合計数",
		}, []string{"action"}),
		occurrences: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubcal_occurrences_expanded",
			Help:    "1回のイベント一覧で展開された発生回数",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		}, []string{"horizon"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcal_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除されたレコードの合計数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.providerCalls,
		c.providerLatency,
		c.groupsCreated,
		c.membershipChanges,
		c.occurrences,
		c.cleanupDeleted,
	)

	return c
}

// RecordProviderCall はプロバイダー呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordProviderCall(op string, duration time.Duration, err error) {
	c.providerCalls.WithLabelValues(op, callResult(err)).Inc()
	c.providerLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, provider.ErrNotFound):
		return "not_found"
	case errors.Is(err, provider.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// RecordGroupCreated はグループ作成を記録する。
func (c *Collector) RecordGroupCreated() {
	c.groupsCreated.Inc()
}

// RecordMembershipChange はjoin/invite/leaveなどのメンバーシップ変更を記録する。
func (c *Collector) RecordMembershipChange(action string) {
	c.membershipChanges.WithLabelValues(action).Inc()
}

// RecordOccurrences は一覧で展開された発生回数を記録する。
// ラベルにはhorizonの種類（all, week, month, group）を渡す。
func (c *Collector) RecordOccurrences(horizon string, count int) {
	c.occurrences.WithLabelValues(horizon).Observe(float64(count))
}

// RecordCleanup はクリーンアップジョブの削除件数を記録する。
func (c *Collector) RecordCleanup(kind string, deleted int64) {
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(deleted))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var _ MetricsCollector = (*Collector)(nil)
