package infra

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/entity"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/apperr"
	"github.com/spf13/viper"
)

// EnvRPCURL names the only required setting: the node RPC endpoint.
const EnvRPCURL = "ETH_RPC_URL"

const keyRPCURL = "eth.rpc_url"

// DefaultEnvFile is merged into the environment at startup when present.
const DefaultEnvFile = ".env"

type endpointConfig struct {
	RPCURL string `validate:"required"`
}

// InitConfig makes viper resolve every key from the environment, with dots
// mapped to underscores (log.level -> LOG_LEVEL). envFile is merged into the
// process environment first; an empty name skips that step.
func InitConfig(envFile string) error {
	if err := LoadEnvFile(envFile); err != nil {
		return err
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv(keyRPCURL, EnvRPCURL); err != nil {
		return apperr.NewConfigErr("failed to bind "+EnvRPCURL, err)
	}
	setDefaults()
	return nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")

	viper.SetDefault("scan.interval", 5*time.Second)
	viper.SetDefault("scan.cycle_timeout", 10*time.Second)
	viper.SetDefault("scan.probe_head", false)

	viper.SetDefault("provider.dial_timeout", 10*time.Second)
	viper.SetDefault("provider.dial_max_retry_attempts", 5)
	viper.SetDefault("provider.dial_retry_initial_backoff_ms", 500)
	viper.SetDefault("provider.dial_retry_max_backoff_ms", 10000)
	viper.SetDefault("provider.dial_retry_jitter", 0.2)

	viper.SetDefault("http.enabled", false)
	viper.SetDefault("http.addr", "127.0.0.1:8080")
	viper.SetDefault("pprof.enabled", false)
	viper.SetDefault("pprof.addr", "127.0.0.1:6060")

	viper.SetDefault("service.name", "kakuzu-observer")
	if host, err := os.Hostname(); err == nil {
		viper.SetDefault("service.instance", host)
	}
}

// LoadEnvFile merges KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			return nil
		}
		return apperr.NewConfigErr("failed to read env file "+path, err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return apperr.NewConfigErr("failed to export "+name, err)
		}
	}
	return nil
}

// LoadEndpoint resolves ETH_RPC_URL into a validated Endpoint. Both a
// missing and a malformed value are configuration errors. Any URL with a
// scheme is accepted, including host-less IPC forms like unix:/path.
func LoadEndpoint(v *validator.Validate) (entity.Endpoint, error) {
	raw := strings.TrimSpace(viper.GetString(keyRPCURL))
	if raw == "" {
		return entity.Endpoint{}, apperr.NewConfigErr(EnvRPCURL+" is required", nil)
	}
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(endpointConfig{RPCURL: raw}); err != nil {
		return entity.Endpoint{}, apperr.NewConfigErr(EnvRPCURL+" is not a valid URL", err)
	}

	endpoint, err := entity.ParseEndpoint(raw)
	if err != nil {
		return entity.Endpoint{}, apperr.NewConfigErr(EnvRPCURL+" is not a valid URL", err)
	}
	return endpoint, nil
}
