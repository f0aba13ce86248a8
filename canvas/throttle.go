package canvas

import "time"

type throttleConfig struct {
	now func() time.Time
}

type ThrottleOption func(*throttleConfig)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ThrottleOption {
	return func(c *throttleConfig) {
		c.now = now
	}
}

// Throttle returns a function that forwards to f unless less than delay has
// passed since the last forwarded call. Dropped calls are discarded, never
// queued. The first call is always forwarded.
//
// The returned function is not safe for concurrent use.
func Throttle[T any](f func(T), delay time.Duration, opts ...ThrottleOption) func(T) {
	cfg := throttleConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		last     time.Time
		accepted bool
	)

	return func(v T) {
		now := cfg.now()
		if accepted && now.Sub(last) < delay {
			return
		}
		accepted = true
		last = now
		f(v)
	}
}
