package infra

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/pancudaniel7/kakuzu-observer/internal/adapter/http"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/kakuzu-observer/internal/pkg/metrics"
	"github.com/spf13/viper"
)

func InitRoutes(server *fiber.App, status http.ScanStatus) {
	server.Get("/health", http.Health(status))
}

// StartHTTPServer serves /health and /metrics on http.addr when http.enabled
// is set. The socket is bound before returning, so the returned stop function
// is safe to call at any point after it.
func StartHTTPServer(logger applog.AppLogger, wg *sync.WaitGroup, status http.ScanStatus) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !viper.GetBool("http.enabled") {
		return noop
	}

	addr := viper.GetString("http.addr")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Warn("http server disabled: bind failed", "addr", addr, "err", err)
		imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentHTTP, "listen").Inc()
		return noop
	}

	app := fiber.New()
	InitRoutes(app, status)
	InitMetrics(app)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			logger.Warn("http server error", "err", err)
			imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentHTTP, "serve").Inc()
		}
	}()

	return func(ctx context.Context) error {
		err := app.ShutdownWithContext(ctx)
		// Serve may not have registered ln yet; closing it makes Serve return.
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
		return err
	}
}
