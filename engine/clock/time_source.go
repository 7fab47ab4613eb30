package clock

import (
	"sync"
	"time"
)

// TimeSource reports time elapsed since an arbitrary fixed origin.
// Implementations are expected to be monotonic; the Clock clamps sources that are not.
type TimeSource interface {
	// Now returns the time elapsed since the source's origin.
	Now() time.Duration
}

// systemTimeSource reads the monotonic wall clock.
type systemTimeSource struct {
	origin time.Time
}

// SystemTimeSource returns a TimeSource backed by time.Since, with its origin at the moment of the call.
func SystemTimeSource() TimeSource {
	return &systemTimeSource{origin: time.Now()}
}

func (s *systemTimeSource) Now() time.Duration {
	return time.Since(s.origin)
}

// ManualTimeSource is a TimeSource advanced explicitly by the caller.
// Used for deterministic replays and tests. Safe for concurrent use.
type ManualTimeSource struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualTimeSource returns a ManualTimeSource positioned at origin.
func NewManualTimeSource(origin time.Duration) *ManualTimeSource {
	return &ManualTimeSource{now: origin}
}

// Now returns the current manual time.
func (m *ManualTimeSource) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the manual time forward by d. Negative values move it backwards,
// which the Clock will clamp.
func (m *ManualTimeSource) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}

// Set positions the manual time at t.
func (m *ManualTimeSource) Set(t time.Duration) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// FuncTimeSource adapts a function returning seconds, such as glfw.GetTime, to a TimeSource.
type FuncTimeSource func() float64

// Now converts the function's seconds to a time.Duration.
func (f FuncTimeSource) Now() time.Duration {
	return time.Duration(f() * float64(time.Second))
}
