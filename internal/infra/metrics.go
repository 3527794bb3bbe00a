package infra

import (
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	imetrics "github.com/pancudaniel7/kakuzu-observer/internal/pkg/metrics"
)

var (
	promRegistry *prometheus.Registry
	registryOnce sync.Once
)

// InitMetricsRegistry installs a dedicated Prometheus registry and creates
// every collector on it. It must run before any component records metrics.
func InitMetricsRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewGoCollector())
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		svc := viper.GetString("service.name")
		inst := viper.GetString("service.instance")
		bi := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "service_build_info", Help: "build info", ConstLabels: prometheus.Labels{"service": svc, "instance": inst}}, []string{"version", "rev"})
		promRegistry.MustRegister(bi)
		bi.WithLabelValues("dev", "unknown").Set(1)
		imetrics.UseRegisterer(promRegistry)
		_ = imetrics.App()
		_ = imetrics.Scanner()
		_ = imetrics.Provider()
		_ = imetrics.Process()
	})
	return promRegistry
}

func InitMetrics(app *fiber.App) {
	if app == nil {
		return
	}
	reg := InitMetricsRegistry()
	h := promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	app.Get("/metrics", adaptor.HTTPHandler(h))
}
