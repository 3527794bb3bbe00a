package port

import "context"

// ScanPhase is the lifecycle state of the scan loop.
type ScanPhase string

const (
	PhaseInitializing ScanPhase = "initializing"
	PhaseScanning     ScanPhase = "scanning"
	PhaseStopped      ScanPhase = "stopped"
)

// CycleHandler performs the work of one scan cycle. Returned errors are
// cycle-local: the loop logs them and carries on with the next cycle.
type CycleHandler func(ctx context.Context, cycle uint64) error

// Scanner is the long-lived scan loop. Implementations must support handler
// injection, lifecycle management, and graceful shutdown.
type Scanner interface {
	SetHandler(handler CycleHandler)
	StartScanning() error
	StopScanning()
	Phase() ScanPhase
	Cycles() uint64
	// Done is closed when the loop exits; Err then reports why, nil meaning
	// it was stopped from outside.
	Done() <-chan struct{}
	Err() error
}
