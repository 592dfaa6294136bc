package plot

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// chartMetrics 是图表服务暴露给 Prometheus 的指标，每个图表使用自己的 Registry
type chartMetrics struct {
	registry *prometheus.Registry

	RecomputeTotal    *prometheus.CounterVec // labels: pair
	RecomputeDuration prometheus.Histogram
	SettingsUpdates   *prometheus.CounterVec // labels: pair, result=ok|invalid
	Candles           *prometheus.GaugeVec   // labels: pair
}

func newChartMetrics() *chartMetrics {
	m := &chartMetrics{
		registry: prometheus.NewRegistry(),
		RecomputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandchart_recompute_total",
			Help: "Total Bollinger Bands recomputations",
		}, []string{"pair"}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bandchart_recompute_duration_seconds",
			Help:    "Bollinger Bands recomputation latency",
			Buckets: prometheus.DefBuckets,
		}),
		SettingsUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandchart_settings_updates_total",
			Help: "Settings updates received, by result",
		}, []string{"pair", "result"}),
		Candles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandchart_candles",
			Help: "Candles loaded per pair",
		}, []string{"pair"}),
	}

	m.registry.MustRegister(
		m.RecomputeTotal,
		m.RecomputeDuration,
		m.SettingsUpdates,
		m.Candles,
	)
	return m
}

func (m *chartMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
