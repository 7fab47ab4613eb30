package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"go.uber.org/zap"
)

// Stats is one reporting window of frame, step and memory statistics.
type Stats struct {
	// Frames is the number of frames counted in the window.
	Frames int
	// FPS is the frame rate over the window.
	FPS float64
	// MeanStep is the mean pipeline step duration over the window.
	MeanStep time.Duration
	// MaxStep is the longest pipeline step in the window.
	MaxStep time.Duration
	// HeapBytes is the live heap at the end of the window.
	HeapBytes uint64
	// SysBytes is the memory obtained from the OS.
	SysBytes uint64
	// AllocRate is the allocation churn in bytes per second.
	AllocRate float64
	// GCCount is the cumulative number of completed GC cycles.
	GCCount uint32
	// LastPause is the most recent GC pause.
	LastPause time.Duration
	// MaxPause is the longest GC pause since the previous window.
	MaxPause time.Duration
}

// Profiler tracks frame rate, pipeline step time and memory statistics for performance monitoring.
// Outputs stats to the log and the optional gauges at a configurable interval.
type Profiler struct {
	mu sync.Mutex

	source         clock.TimeSource
	updateInterval time.Duration
	logger         *zap.Logger
	metrics        *Metrics
	readMem        func(*runtime.MemStats)

	frameCount     int
	stepCount      int
	stepTotal      time.Duration
	stepMax        time.Duration
	lastTime       time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats
}

// NewProfiler creates a new Profiler. Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options for profiler configuration
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		logger:         zap.NewNop(),
		readMem:        runtime.ReadMemStats,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.source == nil {
		p.source = clock.SystemTimeSource()
	}
	p.lastTime = p.source.Now()
	return p
}

// ObserveStep records the duration of one pipeline step.
//
// Parameters:
//   - d: the wall time the step took
func (p *Profiler) ObserveStep(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stepCount++
	p.stepTotal += d
	p.stepMax = max(p.stepMax, d)
}

// Tick should be called once per frame to track frame timing.
// Reports performance statistics when the update interval has elapsed.
//
// Returns:
//   - Stats: the statistics of the window just closed, valid when reported is true
//   - bool: true if stats were reported this tick, false otherwise
func (p *Profiler) Tick() (Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	now := p.source.Now()
	elapsed := now - p.lastTime
	if elapsed < p.updateInterval || elapsed <= 0 {
		return Stats{}, false
	}

	p.readMem(&p.memStats)
	s := Stats{
		Frames:    p.frameCount,
		FPS:       float64(p.frameCount) / elapsed.Seconds(),
		MaxStep:   p.stepMax,
		HeapBytes: p.memStats.Alloc,
		SysBytes:  p.memStats.Sys,
		AllocRate: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / elapsed.Seconds(),
		GCCount:   p.memStats.NumGC,
	}
	if p.stepCount > 0 {
		s.MeanStep = p.stepTotal / time.Duration(p.stepCount)
	}

	// PauseNs is a circular buffer of the last 256 GC pauses
	if gcCount := p.memStats.NumGC; gcCount > 0 {
		s.LastPause = time.Duration(p.memStats.PauseNs[(gcCount-1)%256])
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			s.MaxPause = max(s.MaxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	p.logger.Info("profiler",
		zap.Float64("fps", s.FPS),
		zap.Duration("step_mean", s.MeanStep),
		zap.Duration("step_max", s.MaxStep),
		zap.Float64("heap_mb", float64(s.HeapBytes)/1024/1024),
		zap.Float64("alloc_rate_mb_s", s.AllocRate/1024/1024),
		zap.Uint32("gc", s.GCCount),
		zap.Duration("gc_last_pause", s.LastPause),
		zap.Duration("gc_max_pause", s.MaxPause),
		zap.Float64("sys_mb", float64(s.SysBytes)/1024/1024),
	)
	p.metrics.observe(s)

	p.frameCount = 0
	p.stepCount = 0
	p.stepTotal = 0
	p.stepMax = 0
	p.lastTime = now
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.last = s
	return s, true
}

// Last returns the most recently reported statistics.
//
// Returns:
//   - Stats: the last report, or the zero Stats before the first one
func (p *Profiler) Last() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
