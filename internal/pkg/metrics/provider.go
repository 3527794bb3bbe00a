package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ProviderMetrics struct {
	Connected     prometheus.Gauge
	DialsTotal    *prometheus.CounterVec
	CallsTotal    *prometheus.CounterVec
	CallLatencyMS *prometheus.HistogramVec
}

var (
	providerOnce sync.Once
	provider     *ProviderMetrics
)

func Provider() *ProviderMetrics {
	providerOnce.Do(func() {
		r := Registerer()
		provider = &ProviderMetrics{
			Connected: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "provider_connected",
				Help: "provider connection status (1=dialled,0=idle or dropped)",
			}),
			DialsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_dials_total",
					Help: "provider dial attempts by result",
				},
				[]string{"result"},
			),
			CallsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_calls_total",
					Help: "JSON-RPC calls by method and result",
				},
				[]string{"method", "result"},
			),
			CallLatencyMS: promauto.With(r).NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_call_latency_ms",
					Help:    "JSON-RPC call latency (ms)",
					Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
				},
				[]string{"method"},
			),
		}
	})
	return provider
}
