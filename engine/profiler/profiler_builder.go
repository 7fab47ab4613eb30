package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"go.uber.org/zap"
)

// ProfilerBuilderOption is a functional option used to configure a Profiler during construction.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often statistics are reported. Non-positive values are ignored.
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithLogger sets the logger reports are written to. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the gauges reports are published to.
func WithMetrics(m *Metrics) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.metrics = m
	}
}

// WithTimeSource sets the time source measuring the reporting window. Defaults to the system clock.
//
// Parameters:
//   - source: the time source, e.g. clock.NewManualTimeSource in tests
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the time source option to a profiler
func WithTimeSource(source clock.TimeSource) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.source = source
	}
}

func withMemStats(read func(*runtime.MemStats)) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.readMem = read
	}
}
