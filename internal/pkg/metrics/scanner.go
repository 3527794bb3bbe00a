package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ScannerMetrics struct {
	CyclesTotal        prometheus.Counter
	CycleErrorsTotal   *prometheus.CounterVec
	CycleLatencyMS     prometheus.Histogram
	Phase              prometheus.Gauge
	LastCycleTimestamp prometheus.Gauge
	ChainHead          prometheus.Gauge
}

var (
	scannerOnce sync.Once
	scanner     *ScannerMetrics
)

func Scanner() *ScannerMetrics {
	scannerOnce.Do(func() {
		r := Registerer()
		scanner = &ScannerMetrics{
			CyclesTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "scanner_cycles_total",
				Help: "scan cycles started by the observer loop",
			}),
			CycleErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "scanner_cycle_errors_total",
					Help: "cycle-local scan errors by reason",
				},
				[]string{"reason"},
			),
			CycleLatencyMS: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
				Name:    "scanner_cycle_latency_ms",
				Help:    "duration of one scan cycle's work (ms)",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
			}),
			Phase: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "scanner_phase",
				Help: "scan loop phase (0=initializing,1=scanning,2=stopped)",
			}),
			LastCycleTimestamp: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "scanner_last_cycle_timestamp_seconds",
				Help: "unix time of the last completed scan cycle",
			}),
			ChainHead: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "scanner_chain_head",
				Help: "latest block number observed by the head probe",
			}),
		}
	})
	return scanner
}
