package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/port"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/apperr"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/kakuzu-observer/internal/pkg/metrics"
)

// ErrFatalCycle marks a cycle error that must end the scan loop. Any other
// handler error is cycle-local: it is logged and the next cycle runs as usual.
var ErrFatalCycle = errors.New("fatal scan cycle error")

// Observer runs the scan loop: one cycle, a fixed pause, repeat, for as long
// as the process lives. The only normal way out is StopScanning.
//
// Use NewObserver to construct an instance and StartScanning to begin
// scanning. StopScanning cancels the internal context and stops the loop.
type Observer struct {
	log      applog.AppLogger
	wg       *sync.WaitGroup
	config   *Config
	provider port.Provider
	handler  port.CycleHandler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	phase   port.ScanPhase
	done    chan struct{}
	err     error

	cycles atomic.Uint64
}

// NewObserver creates an Observer owning provider. The wait group tracks the
// scan goroutine so callers can wait for it on shutdown.
func NewObserver(log applog.AppLogger, wg *sync.WaitGroup, provider port.Provider, cfg *Config, v *validator.Validate) (*Observer, error) {
	if provider == nil {
		return nil, apperr.NewInvalidArgErr("provider is required", nil)
	}
	if cfg == nil {
		return nil, apperr.NewInvalidArgErr("config is required", nil)
	}
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid config", "err", err)
		return nil, apperr.NewScanErr("invalid config", err)
	}
	if wg == nil {
		wg = &sync.WaitGroup{}
	}

	o := &Observer{
		log:      log,
		wg:       wg,
		config:   cfg,
		provider: provider,
		phase:    port.PhaseInitializing,
	}
	if cfg.ProbeHead {
		o.handler = NewHeadProbe(log, provider)
	}
	imetrics.Scanner().Phase.Set(imetrics.PhaseInitializing)
	return o, nil
}

// SetHandler registers the work performed on every cycle. A nil handler
// leaves the cycle as a diagnostic heartbeat only.
func (o *Observer) SetHandler(handler port.CycleHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler = handler
}

// StartScanning moves the observer from initializing to scanning and
// launches the loop goroutine. A stopped observer cannot be started again.
func (o *Observer) StartScanning() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return apperr.NewScanErr("scanner already running", nil)
	}
	if o.phase == port.PhaseStopped {
		o.mu.Unlock()
		return apperr.NewScanErr("scanner already stopped", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancel = cancel
	o.running = true
	o.done = done
	o.err = nil
	o.phase = port.PhaseScanning
	handler := o.handler
	o.mu.Unlock()

	imetrics.Scanner().Phase.Set(imetrics.PhaseScanning)
	o.log.Info("Scan loop started", "interval", o.config.Interval.String(), "endpoint", o.provider.Endpoint().Redacted())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.scan(ctx, handler)

		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.err = err
		o.phase = port.PhaseStopped
		o.mu.Unlock()
		cancel()
		imetrics.Scanner().Phase.Set(imetrics.PhaseStopped)
		close(done)
	}()

	return nil
}

func (o *Observer) scan(ctx context.Context, handler port.CycleHandler) error {
	for {
		select {
		case <-ctx.Done():
			o.log.Trace("Stopping scan loop...")
			return nil
		default:
		}

		if err := o.runCycle(ctx, handler); err != nil {
			o.log.Error("Scan loop terminated by fatal cycle error", "cycle", o.cycles.Load(), "err", err)
			imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentScanner, "fatal_cycle").Inc()
			return err
		}

		t := time.NewTimer(o.config.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			o.log.Trace("Stopping scan loop...")
			return nil
		case <-t.C:
		}
	}
}

// runCycle performs one scan cycle. Only errors wrapping ErrFatalCycle are
// returned; everything else is absorbed here.
func (o *Observer) runCycle(ctx context.Context, handler port.CycleHandler) error {
	n := o.cycles.Add(1)
	imetrics.Scanner().CyclesTotal.Inc()
	o.log.Info("Scanning for events...", "cycle", n)

	if handler == nil {
		imetrics.Scanner().LastCycleTimestamp.SetToCurrentTime()
		return nil
	}

	cycleCtx, cancel := o.withCycleTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := handler(cycleCtx, n)
	imetrics.Scanner().CycleLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	if err == nil {
		imetrics.Scanner().LastCycleTimestamp.SetToCurrentTime()
		return nil
	}
	if errors.Is(err, ErrFatalCycle) {
		return apperr.NewScanErr("scan cycle failed", err)
	}
	if ctx.Err() != nil {
		o.log.Trace("Scan cycle interrupted by shutdown", "cycle", n)
		return nil
	}

	reason := classifyCycleError(err)
	imetrics.Scanner().CycleErrorsTotal.WithLabelValues(reason).Inc()
	imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentScanner, reason).Inc()
	o.log.Warn("Scan cycle failed; continuing with next cycle", "cycle", n, "reason", reason, "err", err)
	return nil
}

// StopScanning cancels the loop's context (if any). The loop finishes its
// current step and exits without reporting an error.
func (o *Observer) StopScanning() {
	o.mu.Lock()
	if o.cancel == nil {
		o.mu.Unlock()
		o.log.Trace("Scan loop stopped")
		return
	}
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	o.log.Trace("Cancelling scan loop...")
	cancel()
	o.log.Trace("Scan loop stopped")
}

func (o *Observer) Phase() port.ScanPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Observer) Cycles() uint64 {
	return o.cycles.Load()
}

// Done is closed once the loop goroutine has exited. It is nil before the
// first StartScanning.
func (o *Observer) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Err reports the fatal cycle error that ended the last run, if any.
func (o *Observer) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Observer) withCycleTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if o.config.CycleTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.config.CycleTimeout)
}

func classifyCycleError(err error) string {
	var providerErr *apperr.ProviderErr

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &providerErr):
		return "provider"
	default:
		return "handler"
	}
}
