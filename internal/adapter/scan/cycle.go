package scan

import (
	"context"

	"github.com/pancudaniel7/kakuzu-observer/internal/core/port"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/apperr"
	"github.com/pancudaniel7/kakuzu-observer/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/kakuzu-observer/internal/pkg/metrics"
)

// NewHeadProbe returns a cycle handler that reads the current chain head
// through provider and logs it.
func NewHeadProbe(log applog.AppLogger, provider port.Provider) port.CycleHandler {
	return func(ctx context.Context, cycle uint64) error {
		head, err := provider.BlockNumber(ctx)
		if err != nil {
			return apperr.NewScanErr("head probe failed", err)
		}
		imetrics.Scanner().ChainHead.Set(float64(head))
		log.Debug("Chain head", "cycle", cycle, "number", head)
		return nil
	}
}
