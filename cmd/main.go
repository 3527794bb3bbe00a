package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/kakuzu-observer/internal/infra"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/apperr"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/applog"
)

const shutdownTimeout = 5 * time.Second

var (
	logger applog.AppLogger
)

func main() {
	if err := infra.InitConfig(infra.DefaultEnvFile); err != nil {
		applog.NewAppDefaultLogger().Fatal("Invalid configuration", "code", apperr.CodeOf(err), "err", err)
	}
	infra.InitMetricsRegistry()
	logger = applog.NewAppDefaultLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, logger)
	stop()
	if err != nil {
		logger.Fatal("Observer terminated", "code", apperr.CodeOf(err), "err", err)
	}
	logger.Info("Observer stopped")
}

// run performs the startup sequence and blocks in the scan loop until ctx is
// cancelled. Configuration errors are returned before the loop is entered.
func run(ctx context.Context, log applog.AppLogger) error {
	v := validator.New()

	log.Info("Kakuzu observer initializing...")
	endpoint, err := infra.LoadEndpoint(v)
	if err != nil {
		return err
	}
	log.Info("Target RPC", "endpoint", endpoint.Redacted())

	provider, err := infra.InitProvider(log, endpoint, v)
	if err != nil {
		return err
	}
	defer provider.Close()
	log.Info("Provider initialized. Starting scan loop...")

	wg := &sync.WaitGroup{}
	scanner, err := infra.InitScanner(log, wg, provider, v)
	if err != nil {
		return err
	}

	stopHTTP := infra.StartHTTPServer(log, wg, scanner)
	stopPprof := infra.StartPprof(log, wg)

	if err := scanner.StartScanning(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info("Shutdown requested")
	case <-scanner.Done():
	}
	scanner.StopScanning()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stopHTTP(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", "err", err)
	}
	if err := stopPprof(shutdownCtx); err != nil {
		log.Warn("pprof server shutdown failed", "err", err)
	}
	wg.Wait()

	return scanner.Err()
}
