package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/Carmen-Shannon/oxy-flow/engine/profiler"
	"github.com/Carmen-Shannon/oxy-flow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-flow/engine/window"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Resizer is implemented by renderers that track the window framebuffer size.
type Resizer interface {
	Resize(width, height int)
}

// engine implements the Engine interface.
// Drives Clock.Tick, Pipeline.Step and Renderer.Render once per frame.
type engine struct {
	mu sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	frames  uint64

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	teardownOnce sync.Once
	teardownErr  error

	clock     clock.Clock
	pipeline  pipeline.Pipeline
	renderers renderer.Group
	window    window.Window
	logger    *zap.Logger

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	maxFrames      uint64
	tickCallback   func(f clock.Frame)
}

// Engine is the top-level assembler. It owns the clock, the pipeline and the renderers, and runs the
// host frame loop either from a ticker (headless) or from the window message loop.
type Engine interface {
	// Clock returns the clock producing frame timing.
	Clock() clock.Clock

	// Pipeline returns the pipeline stepped every frame.
	Pipeline() pipeline.Pipeline

	// Window returns the host window, or nil when running headless.
	Window() window.Window

	// Profiler returns the frame profiler.
	Profiler() *profiler.Profiler

	// AddRenderer appends a renderer invoked after every step.
	//
	// Parameters:
	//   - r: the renderer
	AddRenderer(r renderer.Renderer)

	// SetTickRate sets the frame rate in frames per second.
	// If the engine is running, the change takes effect immediately.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// TickRate returns the current frame period.
	TickRate() time.Duration

	// SetTickCallback registers the function called each frame after the clock ticks and before the
	// pipeline steps. Use this to drive parameters or feed external inputs.
	//
	// Parameters:
	//   - callback: function receiving the frame timing
	SetTickCallback(callback func(f clock.Frame))

	// Frame runs one iteration: Clock.Tick, the tick callback, Pipeline.Step and every Render.
	//
	// Returns:
	//   - error: the first step or render error
	Frame() error

	// Frames returns the number of completed frames.
	Frames() uint64

	// Run drives frames until the context is cancelled, Quit is called, the window closes, the
	// frame limit is reached or a frame fails. With a window, Run must be called on the goroutine
	// that created it.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: the frame error that stopped the loop, nil otherwise
	Run(ctx context.Context) error

	// Quit signals the loop to stop. Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Teardown releases the renderers, tears the pipeline down and closes the window, once.
	// Later calls return the first result.
	//
	// Returns:
	//   - error: the aggregated release errors
	Teardown() error
}

// NewEngine creates a new Engine instance with the provided options. The pipeline given with
// WithPipeline is built here when it has not been built yet; the engine steps it directly, so it
// must not also be subscribed to the engine's clock.
//
// Parameters:
//   - options: functional options for engine configuration (pipeline, renderers, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: common.ErrInvalidSequencing when the pipeline uses the engine clock, or any pipeline build error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		logger:          zap.NewNop(),
	}

	for _, opt := range options {
		opt(e)
	}

	if e.pipeline == nil {
		panic("engine: NewEngine requires WithPipeline")
	}
	if c := e.pipeline.Clock(); c != nil && c == e.clock {
		return nil, fmt.Errorf("pipeline %q is subscribed to the engine clock and would step twice per frame: %w", e.pipeline.Name(), common.ErrInvalidSequencing)
	}
	if e.pipeline.State() == pipeline.StateUninitialized {
		if err := e.pipeline.Build(); err != nil {
			return nil, fmt.Errorf("build pipeline %q: %w", e.pipeline.Name(), err)
		}
	}
	if e.clock == nil {
		if e.window != nil {
			e.clock = clock.NewClock(clock.WithTimeSource(window.GLFWTimeSource()))
		} else {
			e.clock = clock.NewClock()
		}
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			for _, r := range e.renderersSnapshot() {
				if rz, ok := r.(Resizer); ok {
					rz.Resize(width, height)
				}
			}
		})
	}

	return e, nil
}

func (e *engine) Clock() clock.Clock {
	return e.clock
}

func (e *engine) Pipeline() pipeline.Pipeline {
	return e.pipeline
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) AddRenderer(r renderer.Renderer) {
	if r == nil {
		panic("engine: AddRenderer requires a non-nil Renderer")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderers = append(e.renderers, r)
}

func (e *engine) renderersSnapshot() renderer.Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(renderer.Group(nil), e.renderers...)
}

func (e *engine) SetTickCallback(callback func(f clock.Frame)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) Frame() error {
	f := e.clock.Tick()

	e.mu.Lock()
	cb := e.tickCallback
	e.mu.Unlock()
	if cb != nil {
		cb(f)
	}

	start := time.Now()
	if err := e.pipeline.Step(f); err != nil {
		return err
	}
	e.profiler.ObserveStep(time.Since(start))

	if err := e.renderersSnapshot().Render(e.pipeline.Snapshot()); err != nil {
		return fmt.Errorf("render tick %d: %w", f.Tick, err)
	}

	e.mu.Lock()
	e.frames++
	e.mu.Unlock()

	if e.profilingEnabled {
		e.profiler.Tick()
	}
	return nil
}

func (e *engine) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func (e *engine) done() bool {
	if e.maxFrames == 0 {
		return false
	}
	return e.Frames() >= e.maxFrames
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running: %w", common.ErrInvalidSequencing)
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Info("engine running",
		zap.String("pipeline", e.pipeline.Name()),
		zap.Duration("tick_rate", e.TickRate()),
		zap.Bool("window", e.window != nil),
	)
	if e.Frames() == 0 {
		e.clock.Reset()
	}

	var err error
	if e.window != nil {
		err = e.runWindow(ctx)
	} else {
		err = e.runHeadless(ctx)
	}
	if err != nil {
		e.logger.Error("engine stopped", zap.Uint64("frames", e.Frames()), zap.Error(err))
		return err
	}
	e.logger.Info("engine stopped", zap.Uint64("frames", e.Frames()))
	return nil
}

// runHeadless fires frames at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel.
func (e *engine) runHeadless(ctx context.Context) error {
	ticker := time.NewTicker(e.TickRate())
	defer ticker.Stop()

	for !e.done() {
		select {
		case <-ctx.Done():
			return nil
		case <-e.quitChannel:
			return nil
		case <-ticker.C:
			if err := e.Frame(); err != nil {
				return err
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		}
	}
	return nil
}

// runWindow runs frames from the window message loop, at most one per tick period.
func (e *engine) runWindow(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			e.window.RequestClose()
		case <-e.quitChannel:
			e.window.RequestClose()
		case <-stop:
		}
	}()

	var frameErr error
	last := time.Duration(-1)
	e.window.SetUpdateCallback(func() {
		select {
		case newRate := <-e.tickRateChannel:
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		default:
		}

		now := e.clock.Now()
		if last >= 0 && now-last < e.TickRate() {
			return
		}
		last = now

		if err := e.Frame(); err != nil {
			frameErr = err
			e.window.RequestClose()
			return
		}
		if e.done() {
			e.window.RequestClose()
		}
	})
	defer e.window.SetUpdateCallback(nil)

	e.window.ProcessMessages()
	return frameErr
}

// Quit signals the loop to exit. Uses sync.Once to ensure the channel is only closed once.
func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) TickRate() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engineTickRate
}

func (e *engine) Teardown() error {
	e.teardownOnce.Do(func() {
		e.Quit()
		var err error
		err = multierr.Append(err, e.renderersSnapshot().Release())
		err = multierr.Append(err, e.pipeline.Teardown())
		if e.window != nil {
			err = multierr.Append(err, e.window.Close())
		}
		e.teardownErr = err
		if err != nil {
			e.logger.Warn("engine teardown", zap.Error(err))
		}
	})
	return e.teardownErr
}
