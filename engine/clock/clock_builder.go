package clock

import "time"

// ClockBuilderOption is a functional option for configuring a Clock.
// Use the With* functions to create options that are applied directly to the clock instance.
type ClockBuilderOption func(*clock)

// WithMaxDelta sets the ceiling applied to every frame delta.
// Values <= 0 disable clamping.
//
// Parameters:
//   - ceiling: the maximum delta a tick may report (default 1/30 s)
//
// Returns:
//   - ClockBuilderOption: option function to apply
func WithMaxDelta(ceiling time.Duration) ClockBuilderOption {
	return func(c *clock) {
		c.maxDelta = ceiling
	}
}

// WithFirstDelta sets the delta reported by the first tick, which would otherwise be zero.
// Values <= 0 are treated as the default (16 ms).
//
// Parameters:
//   - d: the first-frame delta
//
// Returns:
//   - ClockBuilderOption: option function to apply
func WithFirstDelta(d time.Duration) ClockBuilderOption {
	return func(c *clock) {
		c.firstDelta = d
	}
}

// WithTimeSource sets the source the clock reads time from.
//
// Parameters:
//   - source: the time source (default SystemTimeSource)
//
// Returns:
//   - ClockBuilderOption: option function to apply
func WithTimeSource(source TimeSource) ClockBuilderOption {
	return func(c *clock) {
		c.source = source
	}
}
