package scan

import "time"

// Config holds configuration for the scan loop.
//
// Interval is the pause between the end of one cycle and the start of the
// next. CycleTimeout bounds the work of a single cycle (0 disables it). When
// ProbeHead is true each cycle reads the chain head through the provider.
type Config struct {
	Interval     time.Duration `validate:"gt=0"`
	CycleTimeout time.Duration `validate:"gte=0"`
	ProbeHead    bool
}
