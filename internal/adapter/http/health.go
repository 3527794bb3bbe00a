package http

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pancudaniel7/kakuzu-observer/internal/core/port"
)

// ScanStatus is the read-only view of the scan loop used by the health probe.
type ScanStatus interface {
	Phase() port.ScanPhase
	Cycles() uint64
}

// Health reports the scan loop phase. It answers 503 until the loop has
// entered scanning and after it has stopped.
func Health(status ScanStatus) fiber.Handler {
	return func(ctx fiber.Ctx) error {
		phase := port.PhaseInitializing
		var cycles uint64
		if status != nil {
			phase = status.Phase()
			cycles = status.Cycles()
		}

		code, state := fiber.StatusOK, "UP"
		if phase != port.PhaseScanning {
			code, state = fiber.StatusServiceUnavailable, "DOWN"
		}
		return ctx.Status(code).JSON(fiber.Map{
			"status": state,
			"phase":  string(phase),
			"cycles": cycles,
		})
	}
}
