package ringbuf

import (
	"time"

	"go.uber.org/zap"
)

// config collects the knobs Create and Load accept: the archive/wrap
// distinction plus the ambient logging and spin-backoff knobs.
type config struct {
	wrap        bool
	log         *zap.Logger
	backoffUnit time.Duration
}

// Option configures a Create or Load call.
type Option func(*config)

func defaultConfig() config {
	return config{
		log:         zap.NewNop(),
		backoffUnit: 500 * time.Nanosecond,
	}
}

// WithWrap selects wrap mode: once full, the producer overwrites the
// oldest unread data instead of failing with ErrNoMoreRoom. Only
// meaningful on Create; Load reads the mode back from the file header.
func WithWrap(wrap bool) Option {
	return func(c *config) { c.wrap = wrap }
}

// WithLogger attaches a zap logger used for repair decisions, mapping
// lifecycle events, and wrap-mode overrun observations. Commit never
// logs; Reserve logs only when a wrap-mode reservation overruns the
// consumer.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithBackoff sets the base unit for the exponential backoff a spinning
// reservation loop sleeps for after spinYieldThreshold failed CAS
// attempts. Tests set it explicitly to keep contention timing
// predictable; production callers rarely need to touch it.
func WithBackoff(unit time.Duration) Option {
	return func(c *config) {
		if unit > 0 {
			c.backoffUnit = unit
		}
	}
}
