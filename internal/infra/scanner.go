package infra

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/kakuzu-observer/internal/adapter/scan"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/port"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/applog"
	"github.com/spf13/viper"
)

// InitScanner constructs the scan loop around provider using configuration
// provided via Viper. It validates the scan config and returns a
// port.Scanner implementation.
func InitScanner(log applog.AppLogger, wg *sync.WaitGroup, p port.Provider, v *validator.Validate) (port.Scanner, error) {
	if wg == nil {
		wg = &sync.WaitGroup{}
	}
	if v == nil {
		v = validator.New()
	}

	cfg := scan.Config{
		Interval:     viper.GetDuration("scan.interval"),
		CycleTimeout: viper.GetDuration("scan.cycle_timeout"),
		ProbeHead:    viper.GetBool("scan.probe_head"),
	}

	s, err := scan.NewObserver(log, wg, p, &cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init scan: %w", err)
	}
	return s, nil
}
