package infra

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/kakuzu-observer/internal/adapter/provider"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/entity"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/port"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/applog"
	"github.com/spf13/viper"
)

// InitProvider binds a go-ethereum backed provider handle to endpoint using
// the dial settings under provider.*. It performs no network I/O.
func InitProvider(log applog.AppLogger, endpoint entity.Endpoint, v *validator.Validate) (port.Provider, error) {
	if v == nil {
		v = validator.New()
	}

	cfg := provider.Config{
		DialTimeout:               viper.GetDuration("provider.dial_timeout"),
		DialMaxRetryAttempts:      viper.GetInt("provider.dial_max_retry_attempts"),
		DialRetryInitialBackoffMS: viper.GetInt("provider.dial_retry_initial_backoff_ms"),
		DialRetryMaxBackoffMS:     viper.GetInt("provider.dial_retry_max_backoff_ms"),
		DialRetryJitter:           viper.GetFloat64("provider.dial_retry_jitter"),
	}

	p, err := provider.NewEthereumProvider(log, endpoint, &cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init provider: %w", err)
	}
	return p, nil
}
