package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/entity"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/apperr"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/pattern"
	"github.com/stretchr/testify/require"
)

func mustEndpoint(t *testing.T, raw string) entity.Endpoint {
	t.Helper()
	ep, err := entity.ParseEndpoint(raw)
	require.NoError(t, err)
	return ep
}

func newTestProvider(t *testing.T, raw string, dial func(context.Context, string) (rpcClient, error)) *EthereumProvider {
	t.Helper()
	p, err := NewEthereumProvider(noopLogger{}, mustEndpoint(t, raw), &Config{}, validator.New())
	require.NoError(t, err)
	p.dial = dial
	p.dialRetryOpts = []pattern.RetryOption{
		pattern.WithInfiniteAttempts(),
		pattern.WithInitialDelay(time.Millisecond),
		pattern.WithMaxDelay(5 * time.Millisecond),
	}
	return p
}

func TestNewEthereumProvider_DoesNotDial(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	p := newTestProvider(t, "http://127.0.0.1:1", func(context.Context, string) (rpcClient, error) {
		dials.Add(1)
		return &fakeRPCClient{}, nil
	})

	require.Equal(t, "http://127.0.0.1:1", p.Endpoint().String())
	require.Equal(t, int32(0), dials.Load())
}

func TestNewEthereumProvider_RealDialerIsLazyForHTTP(t *testing.T) {
	t.Parallel()

	p, err := NewEthereumProvider(noopLogger{}, mustEndpoint(t, "http://127.0.0.1:1"), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	p.Close()
}

func TestNewEthereumProvider_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewEthereumProvider(noopLogger{}, entity.Endpoint{}, &Config{}, validator.New())
	var ie *apperr.InvalidArgErr
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "INVALID_ARGUMENT", apperr.CodeOf(err))

	var pe *apperr.ProviderErr

	_, err = NewEthereumProvider(noopLogger{}, mustEndpoint(t, "http://node:8545"), &Config{DialRetryJitter: 2}, validator.New())
	require.ErrorAs(t, err, &pe)

	_, err = NewEthereumProvider(noopLogger{}, mustEndpoint(t, "http://node:8545"), &Config{DialMaxRetryAttempts: -1}, validator.New())
	require.ErrorAs(t, err, &pe)
}

func TestEthereumProvider_connect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                  string
		attemptsBeforeSuccess int
		ctxTimeout            time.Duration
		wantErr               bool
	}{
		{name: "succeeds_after_retries", attemptsBeforeSuccess: 3, ctxTimeout: 3 * time.Second},
		{name: "context_deadline", attemptsBeforeSuccess: 1000, ctxTimeout: 50 * time.Millisecond, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var attempts int32
			client := &fakeRPCClient{}
			p := newTestProvider(t, "http://node:8545", func(context.Context, string) (rpcClient, error) {
				if atomic.AddInt32(&attempts, 1) < int32(tc.attemptsBeforeSuccess) {
					return nil, errors.New("dial failed")
				}
				return client, nil
			})
			log := &warnCounter{}
			p.log = log

			ctx, cancel := context.WithTimeout(context.Background(), tc.ctxTimeout)
			defer cancel()

			got, err := p.connect(ctx)
			if tc.wantErr {
				var pe *apperr.ProviderErr
				require.ErrorAs(t, err, &pe)
				require.ErrorIs(t, err, context.DeadlineExceeded)
				return
			}
			require.NoError(t, err)
			require.Equal(t, client, got)
			require.Equal(t, int32(tc.attemptsBeforeSuccess), atomic.LoadInt32(&attempts))
			require.Equal(t, int32(tc.attemptsBeforeSuccess-1), log.warns.Load())
		})
	}
}

func TestEthereumProvider_connect_NoFactory(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, "http://node:8545", nil)
	_, err := p.connect(context.Background())
	var ie *apperr.InternalErr
	require.ErrorAs(t, err, &ie)
}

func TestEthereumProvider_CloseAbandonsPendingDial(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	p := newTestProvider(t, "http://node:8545", func(ctx context.Context, _ string) (rpcClient, error) {
		attempts.Add(1)
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := p.connect(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool { return attempts.Load() >= 3 }, 2*time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a pending dial")
	}

	select {
	case err := <-errCh:
		var pe *apperr.ProviderErr
		require.ErrorAs(t, err, &pe)
		require.Equal(t, "provider is closed", pe.Message())
	case <-time.After(2 * time.Second):
		t.Fatal("connect kept dialling after Close")
	}
}

func TestEthereumProvider_ConnectAfterCloseDiscardsClient(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	release := make(chan struct{})
	dialing := make(chan struct{})
	p := newTestProvider(t, "http://node:8545", func(context.Context, string) (rpcClient, error) {
		close(dialing)
		<-release
		return &fakeRPCClient{closeFn: func() { closed.Add(1) }}, nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := p.connect(context.Background())
		errCh <- err
	}()
	<-dialing
	p.Close()
	close(release)

	require.Error(t, <-errCh)
	require.Equal(t, int32(1), closed.Load())
}

func TestEthereumProvider_UnsupportedTransportIsNotRetried(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	p := newTestProvider(t, "ftp://node.example.org", func(ctx context.Context, raw string) (rpcClient, error) {
		attempts.Add(1)
		return dialGeth(ctx, raw)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := p.connect(ctx)
	require.ErrorIs(t, err, errUnsupportedTransport)
	require.Equal(t, int32(1), attempts.Load())
}

func TestEthereumProvider_CallReusesConnection(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	client := &fakeRPCClient{
		callFn: func(_ context.Context, result any, method string, _ ...any) error {
			require.Equal(t, "net_version", method)
			*(result.(*string)) = "1"
			return nil
		},
	}
	p := newTestProvider(t, "http://node:8545", func(context.Context, string) (rpcClient, error) {
		dials.Add(1)
		return client, nil
	})

	for i := 0; i < 3; i++ {
		var out string
		require.NoError(t, p.Call(context.Background(), &out, "net_version"))
		require.Equal(t, "1", out)
	}
	require.Equal(t, int32(1), dials.Load())
}

func TestEthereumProvider_CallNetworkErrorRedials(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	var closed atomic.Int32
	p := newTestProvider(t, "http://node:8545", func(context.Context, string) (rpcClient, error) {
		n := dials.Add(1)
		return &fakeRPCClient{
			callFn: func(context.Context, any, string, ...any) error {
				if n == 1 {
					return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
				}
				return nil
			},
			closeFn: func() { closed.Add(1) },
		}, nil
	})

	err := p.Call(context.Background(), nil, "eth_chainId")
	var pe *apperr.ProviderErr
	require.ErrorAs(t, err, &pe)
	require.Equal(t, int32(1), closed.Load())

	require.NoError(t, p.Call(context.Background(), nil, "eth_chainId"))
	require.Equal(t, int32(2), dials.Load())
}

func TestEthereumProvider_CallRPCErrorKeepsConnection(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	p := newTestProvider(t, "http://node:8545", func(context.Context, string) (rpcClient, error) {
		dials.Add(1)
		return &fakeRPCClient{
			callFn: func(context.Context, any, string, ...any) error { return errors.New("method not found") },
		}, nil
	})

	require.Error(t, p.Call(context.Background(), nil, "eth_foo"))
	require.Error(t, p.Call(context.Background(), nil, "eth_foo"))
	require.Equal(t, int32(1), dials.Load())
}

func TestEthereumProvider_SubscribeRequiresWebsocket(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	p := newTestProvider(t, "https://node.example.org", func(context.Context, string) (rpcClient, error) {
		dials.Add(1)
		return &fakeRPCClient{}, nil
	})

	_, err := p.Subscribe(context.Background(), "eth", make(chan struct{}), "newHeads")
	require.ErrorIs(t, err, rpc.ErrNotificationsUnsupported)
	require.Equal(t, int32(0), dials.Load())
}

func TestEthereumProvider_SubscribeOverWebsocket(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscription{errCh: make(chan error)}
	p := newTestProvider(t, "ws://node:8546", func(context.Context, string) (rpcClient, error) {
		return &fakeRPCClient{
			subscribeFn: func(_ context.Context, namespace string, _ any, args ...any) (ethereum.Subscription, error) {
				require.Equal(t, "eth", namespace)
				require.Equal(t, []any{"newHeads"}, args)
				return sub, nil
			},
		}, nil
	})

	got, err := p.Subscribe(context.Background(), "eth", make(chan struct{}), "newHeads")
	require.NoError(t, err)
	require.Equal(t, sub, got)
}

func TestEthereumProvider_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	p := newTestProvider(t, "http://node:8545", func(context.Context, string) (rpcClient, error) {
		return &fakeRPCClient{closeFn: func() { closed.Add(1) }}, nil
	})
	require.NoError(t, p.Call(context.Background(), nil, "web3_clientVersion"))

	p.Close()
	p.Close()

	require.Equal(t, int32(1), closed.Load())
	err := p.Call(context.Background(), nil, "web3_clientVersion")
	require.Error(t, err)
}

func TestEthereumProvider_BlockNumberOverHTTP(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		methods = append(methods, req.Method)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x2a"}`, req.ID)
	}))
	t.Cleanup(srv.Close)

	p, err := NewEthereumProvider(noopLogger{}, mustEndpoint(t, srv.URL), &Config{DialMaxRetryAttempts: 1}, validator.New())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := p.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"eth_blockNumber"}, methods)
}

type headService struct{}

func (headService) BlockNumber() hexutil.Uint64 { return 42 }

func TestEthereumProvider_BlockNumberOverIPC(t *testing.T) {
	t.Parallel()

	dir, err := os.MkdirTemp("", "ipc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "geth.ipc")

	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", headService{}))
	t.Cleanup(srv.Stop)

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() { _ = srv.ServeListener(ln) }()

	for _, raw := range []string{"unix:" + sock, "file://" + sock} {
		p, err := NewEthereumProvider(noopLogger{}, mustEndpoint(t, raw), &Config{DialMaxRetryAttempts: 1}, validator.New())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := p.BlockNumber(ctx)
		cancel()
		p.Close()

		require.NoError(t, err, raw)
		require.Equal(t, uint64(42), n)
	}
}

func TestClassifyProviderError(t *testing.T) {
	t.Parallel()

	require.Equal(t, "none", classifyProviderError(nil))
	require.Equal(t, "canceled", classifyProviderError(context.Canceled))
	require.Equal(t, "timeout", classifyProviderError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	require.Equal(t, "network", classifyProviderError(&net.OpError{Op: "read", Err: errors.New("reset")}))
	require.Equal(t, "rpc", classifyProviderError(errors.New("execution reverted")))
}

func TestDialRetryOptionsFromConfig(t *testing.T) {
	t.Parallel()

	var cfg pattern.RetryConfig
	for _, o := range dialRetryOptionsFromConfig(&Config{
		DialMaxRetryAttempts:      4,
		DialRetryInitialBackoffMS: 50,
		DialRetryMaxBackoffMS:     200,
		DialRetryJitter:           0.5,
	}) {
		o(&cfg)
	}
	require.Equal(t, 4, cfg.Attempts)
	require.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	require.Equal(t, 200*time.Millisecond, cfg.MaxDelay)
	require.Equal(t, 0.5, cfg.Jitter)

	cfg = pattern.RetryConfig{}
	for _, o := range dialRetryOptionsFromConfig(&Config{}) {
		o(&cfg)
	}
	require.Equal(t, 0, cfg.Attempts)
	require.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

type warnCounter struct {
	noopLogger
	warns atomic.Int32
}

func (w *warnCounter) Warn(string, ...any) { w.warns.Add(1) }

type fakeRPCClient struct {
	callFn      func(context.Context, any, string, ...any) error
	subscribeFn func(context.Context, string, any, ...any) (ethereum.Subscription, error)
	closeFn     func()
}

func (f *fakeRPCClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if f.callFn != nil {
		return f.callFn(ctx, result, method, args...)
	}
	return nil
}

func (f *fakeRPCClient) Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error) {
	if f.subscribeFn != nil {
		return f.subscribeFn(ctx, namespace, channel, args...)
	}
	return nil, errors.New("subscribe not implemented")
}

func (f *fakeRPCClient) Close() {
	if f.closeFn != nil {
		f.closeFn()
	}
}

type fakeSubscription struct {
	errCh chan error
	once  sync.Once
}

func (f *fakeSubscription) Err() <-chan error { return f.errCh }

func (f *fakeSubscription) Unsubscribe() {
	f.once.Do(func() { close(f.errCh) })
}
