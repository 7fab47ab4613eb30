package clock

import (
	"sync"
	"time"
)

const (
	// DefaultMaxDelta is the ceiling applied to frame deltas so a stalled or backgrounded frame
	// cannot produce one huge simulation step.
	DefaultMaxDelta = time.Second / 30

	// DefaultFirstDelta is substituted for the first frame's delta, which would otherwise be zero.
	DefaultFirstDelta = 16 * time.Millisecond
)

// Frame is the timing snapshot produced by one Clock tick.
type Frame struct {
	// Tick is the 1-based index of the tick that produced the frame. Zero means no tick has happened yet.
	Tick uint64
	// Elapsed is the time since the clock started, in seconds.
	Elapsed float32
	// Delta is the clamped time since the previous tick, in seconds. Never zero on the first tick.
	Delta float32
	// RawDelta is the unclamped time since the previous tick, in seconds.
	RawDelta float32
}

// Subscription identifies a registered tick observer.
type Subscription uint64

// Clock supplies monotonic elapsed time and per-frame deltas to the pipeline.
// The host frame driver calls Tick once per display frame.
type Clock interface {
	// Now returns the monotonically non-decreasing time since the clock started.
	//
	// Returns:
	//   - time.Duration: elapsed time
	Now() time.Duration

	// Tick advances the clock by one frame, computes the clamped delta and notifies observers
	// synchronously in subscription order.
	//
	// Returns:
	//   - Frame: the timing snapshot for this frame
	Tick() Frame

	// Last returns the frame produced by the most recent Tick, or the zero Frame before the first tick.
	Last() Frame

	// Subscribe registers fn to be invoked after every Tick.
	//
	// Parameters:
	//   - fn: the observer callback
	//
	// Returns:
	//   - Subscription: handle used to unsubscribe
	Subscribe(fn func(Frame)) Subscription

	// Unsubscribe removes an observer. Unknown handles are ignored.
	//
	// Parameters:
	//   - sub: the handle returned by Subscribe
	Unsubscribe(sub Subscription)

	// MaxDelta returns the configured delta ceiling.
	MaxDelta() time.Duration

	// Reset restarts the clock at the source's current time; the next Tick is treated as the first.
	Reset()
}

type observer struct {
	id Subscription
	fn func(Frame)
}

// clock implements the Clock interface.
type clock struct {
	mu sync.Mutex

	source     TimeSource
	maxDelta   time.Duration
	firstDelta time.Duration

	origin   time.Duration
	lastNow  time.Duration
	lastTick time.Duration
	last     Frame

	nextSub   Subscription
	observers []observer
}

var _ Clock = &clock{}

// NewClock creates a Clock reading from the system time source unless overridden.
//
// Parameters:
//   - options: functional options for clock configuration (ceiling, first delta, source)
//
// Returns:
//   - Clock: the newly created clock, started at the source's current time
func NewClock(options ...ClockBuilderOption) Clock {
	c := &clock{
		maxDelta:   DefaultMaxDelta,
		firstDelta: DefaultFirstDelta,
		nextSub:    1,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.source == nil {
		c.source = SystemTimeSource()
	}
	if c.firstDelta <= 0 {
		c.firstDelta = DefaultFirstDelta
	}
	c.origin = c.source.Now()
	return c
}

func (c *clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

// nowLocked reads the source and clamps it so elapsed time never decreases.
func (c *clock) nowLocked() time.Duration {
	now := c.source.Now() - c.origin
	if now < c.lastNow {
		now = c.lastNow
	}
	c.lastNow = now
	return now
}

func (c *clock) Tick() Frame {
	c.mu.Lock()
	prev := c.last
	now := c.nowLocked()

	var raw time.Duration
	if prev.Tick == 0 {
		raw = c.firstDelta
	} else {
		raw = now - c.lastTick
	}
	dt := raw
	if c.maxDelta > 0 && dt > c.maxDelta {
		dt = c.maxDelta
	}

	f := Frame{
		Tick:     prev.Tick + 1,
		Elapsed:  float32(now.Seconds()),
		Delta:    float32(dt.Seconds()),
		RawDelta: float32(raw.Seconds()),
	}
	c.last = f
	c.lastTick = now
	observers := make([]observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, o := range observers {
		o.fn(f)
	}
	return f
}

func (c *clock) Last() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *clock) Subscribe(fn func(Frame)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.observers = append(c.observers, observer{id: id, fn: fn})
	return id
}

func (c *clock) Unsubscribe(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.observers {
		if o.id == sub {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

func (c *clock) MaxDelta() time.Duration {
	return c.maxDelta
}

func (c *clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = c.source.Now()
	c.lastNow = 0
	c.lastTick = 0
	c.last = Frame{}
}
