package provider

import "time"

// Config tunes how the provider dials the node. A zero DialMaxRetryAttempts
// keeps retrying until the caller's context is done.
type Config struct {
	DialTimeout               time.Duration `validate:"gte=0"`
	DialMaxRetryAttempts      int           `validate:"gte=0"`
	DialRetryInitialBackoffMS int           `validate:"gte=0"`
	DialRetryMaxBackoffMS     int           `validate:"gte=0"`
	DialRetryJitter           float64       `validate:"gte=0,lte=1"`
}
