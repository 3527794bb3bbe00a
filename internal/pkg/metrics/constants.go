package metrics

// Component label values used by app-level metrics.
const (
	ComponentScanner  = "scanner"
	ComponentProvider = "provider"
	ComponentHTTP     = "http"
)

// Scan phase values reported by the scanner phase gauge.
const (
	PhaseInitializing = 0
	PhaseScanning     = 1
	PhaseStopped      = 2
)
