package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/entity"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/apperr"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/kakuzu-observer/internal/pkg/metrics"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/pattern"
)

const defaultDialTimeout = 10 * time.Second

var errUnsupportedTransport = errors.New("no rpc transport for endpoint scheme")

// EthereumProvider is a go-ethereum rpc backed port.Provider. The underlying
// client is dialled on first use and dropped again after network failures,
// so the next call reconnects.
type EthereumProvider struct {
	log           applog.AppLogger
	endpoint      entity.Endpoint
	config        *Config
	dial          func(ctx context.Context, rawURL string) (rpcClient, error)
	dialRetryOpts []pattern.RetryOption

	// closing is cancelled by Close so in-flight dials give up.
	closing  context.Context
	stopDial context.CancelFunc

	mu     sync.Mutex
	client rpcClient
	closed bool
}

// NewEthereumProvider binds a provider to endpoint. No network round-trip
// happens here; a valid endpoint and config always yield a provider.
func NewEthereumProvider(log applog.AppLogger, endpoint entity.Endpoint, cfg *Config, v *validator.Validate) (*EthereumProvider, error) {
	if endpoint.IsZero() {
		return nil, apperr.NewInvalidArgErr("endpoint is required", nil)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid provider config", "err", err)
		return nil, apperr.NewProviderErr("invalid config", err)
	}

	closing, stopDial := context.WithCancel(context.Background())
	return &EthereumProvider{
		log:           log,
		endpoint:      endpoint,
		config:        cfg,
		dial:          dialGeth,
		dialRetryOpts: dialRetryOptionsFromConfig(cfg),
		closing:       closing,
		stopDial:      stopDial,
	}, nil
}

// dialGeth picks the go-ethereum transport from the URL scheme. file: and
// unix: URLs name the node's IPC socket by their path.
func dialGeth(ctx context.Context, rawURL string) (rpcClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	var c *rpc.Client
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss", "stdio":
		c, err = rpc.DialOptions(ctx, rawURL)
	case "file", "unix":
		if u.Path == "" {
			return nil, fmt.Errorf("%w: %s URL without a socket path", errUnsupportedTransport, u.Scheme)
		}
		c, err = rpc.DialIPC(ctx, u.Path)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedTransport, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return gethClient{c}, nil
}

func dialRetryOptionsFromConfig(cfg *Config) []pattern.RetryOption {
	opts := []pattern.RetryOption{
		pattern.WithInitialDelay(500 * time.Millisecond),
		pattern.WithMaxDelay(10 * time.Second),
		pattern.WithMultiplier(2.0),
		pattern.WithJitter(0.2),
	}
	if cfg.DialMaxRetryAttempts > 0 {
		opts = append(opts, pattern.WithMaxAttempts(cfg.DialMaxRetryAttempts))
	} else {
		opts = append(opts, pattern.WithInfiniteAttempts())
	}
	if cfg.DialRetryInitialBackoffMS > 0 {
		opts = append(opts, pattern.WithInitialDelay(time.Duration(cfg.DialRetryInitialBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryMaxBackoffMS > 0 {
		opts = append(opts, pattern.WithMaxDelay(time.Duration(cfg.DialRetryMaxBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryJitter > 0 {
		opts = append(opts, pattern.WithJitter(cfg.DialRetryJitter))
	}
	return opts
}

func (p *EthereumProvider) Endpoint() entity.Endpoint {
	return p.endpoint
}

// Call submits one JSON-RPC request, dialling the node first if needed.
func (p *EthereumProvider) Call(ctx context.Context, result any, method string, args ...any) error {
	client, err := p.connect(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = client.CallContext(ctx, result, method, args...)
	imetrics.Provider().CallLatencyMS.WithLabelValues(method).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		reason := classifyProviderError(err)
		imetrics.Provider().CallsTotal.WithLabelValues(method, reason).Inc()
		if reason == "network" {
			p.log.Warn("Network failure on RPC call; dropping connection", "method", method, "err", err)
			imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentProvider, "network").Inc()
			p.drop(client)
		}
		return apperr.NewProviderErr("rpc call "+method+" failed", err)
	}
	imetrics.Provider().CallsTotal.WithLabelValues(method, "ok").Inc()
	return nil
}

// Subscribe opens a live subscription. Only websocket endpoints can carry
// notifications; other schemes fail without dialling.
func (p *EthereumProvider) Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error) {
	if !p.endpoint.SupportsSubscriptions() {
		return nil, apperr.NewProviderErr("subscriptions require a websocket endpoint", rpc.ErrNotificationsUnsupported)
	}
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := client.Subscribe(ctx, namespace, channel, args...)
	if err != nil {
		if classifyProviderError(err) == "network" {
			p.drop(client)
		}
		return nil, apperr.NewProviderErr("subscribe failed", err)
	}
	p.log.Trace("Subscription opened", "namespace", namespace)
	return sub, nil
}

func (p *EthereumProvider) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := p.Call(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Close releases the connection. It is safe to call more than once; any
// later Call or Subscribe fails. A dial still in progress is abandoned.
func (p *EthereumProvider) Close() {
	p.stopDial()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	imetrics.Provider().Connected.Set(0)
	p.log.Trace("Provider closed")
}

// connect returns the shared client, dialling it if needed. The dial runs
// without holding p.mu so Close never waits on it.
func (p *EthereumProvider) connect(ctx context.Context) (rpcClient, error) {
	p.mu.Lock()
	closed, current, dial := p.closed, p.client, p.dial
	p.mu.Unlock()
	if closed {
		return nil, apperr.NewProviderErr("provider is closed", nil)
	}
	if current != nil {
		return current, nil
	}
	if dial == nil {
		return nil, apperr.NewInternalErr("client factory not configured", nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closing, cancel)
	defer stop()

	opts := append([]pattern.RetryOption{}, p.dialRetryOpts...)
	opts = append(opts,
		pattern.WithShouldRetry(shouldRedial),
		pattern.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			p.log.Warn("Node dial failed; retrying", "attempt", attempt, "delay", delay, "err", err)
			imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentProvider, "dial").Inc()
		}),
	)

	var client rpcClient
	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			dialCtx, cancel := p.withDialTimeout(ctx)
			defer cancel()
			c, err := dial(dialCtx, p.endpoint.String())
			if err != nil {
				imetrics.Provider().DialsTotal.WithLabelValues("error").Inc()
				return err
			}
			client = c
			return nil
		},
		opts...,
	)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if client != nil {
			client.Close()
		}
		return nil, apperr.NewProviderErr("provider is closed", err)
	}
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentProvider, classifyProviderError(err)).Inc()
		return nil, apperr.NewProviderErr("failed to connect to node", err)
	}
	if p.client != nil {
		// Another caller connected first.
		client.Close()
		return p.client, nil
	}

	imetrics.Provider().DialsTotal.WithLabelValues("ok").Inc()
	imetrics.Provider().Connected.Set(1)
	p.client = client
	p.log.Trace("Connected to node", "endpoint", p.endpoint.Redacted())
	return client, nil
}

// shouldRedial rejects failures another attempt cannot fix.
func shouldRedial(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, errUnsupportedTransport)
}

func (p *EthereumProvider) drop(client rpcClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != client {
		return
	}
	p.client = nil
	client.Close()
	imetrics.Provider().Connected.Set(0)
}

func (p *EthereumProvider) withDialTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := p.config.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return context.WithTimeout(parent, timeout)
}

func classifyProviderError(err error) string {
	var netErr net.Error
	var rpcErr rpc.Error

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &rpcErr):
		return "rpc"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "rpc"
	}
}

type rpcClient interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error)
	Close()
}

type gethClient struct {
	*rpc.Client
}

func (c gethClient) Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error) {
	sub, err := c.Client.Subscribe(ctx, namespace, channel, args...)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
