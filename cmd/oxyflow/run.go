package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/oxy-flow/config"
	"github.com/Carmen-Shannon/oxy-flow/engine"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/Carmen-Shannon/oxy-flow/engine/profiler"
	"github.com/Carmen-Shannon/oxy-flow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-flow/engine/window"
	"github.com/Carmen-Shannon/oxy-flow/sketch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds a production or development logger at the configured level.
func newLogger(s config.LogSettings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if s.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
}

func run(parent context.Context, name string, s config.Settings, build func(sketch.Env) (*sketch.Sketch, error)) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(s.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("sketch", name))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	pipelineMetrics, err := pipeline.NewMetrics(reg)
	if err != nil {
		return err
	}
	profilerMetrics, err := profiler.NewMetrics(reg)
	if err != nil {
		return err
	}
	if s.Metrics.Addr != "" {
		serveMetrics(ctx, s.Metrics.Addr, reg, logger)
	}

	sk, err := build(sketch.Env{Settings: s, Logger: logger, Metrics: pipelineMetrics})
	if err != nil {
		return err
	}

	options := []engine.EngineBuilderOption{
		engine.WithPipeline(sk.Pipeline),
		engine.WithLogger(logger),
		engine.WithTickRate(s.Engine.TickRate),
		engine.WithMaxFrames(s.Engine.MaxFrames),
		engine.WithTickCallback(sk.OnTick),
		engine.WithProfiling(s.Engine.Profiling),
		engine.WithProfiler(profiler.NewProfiler(
			profiler.WithLogger(logger),
			profiler.WithMetrics(profilerMetrics),
			profiler.WithInterval(time.Duration(s.Engine.ProfileInterval)),
		)),
	}
	clockOptions := []clock.ClockBuilderOption{
		clock.WithMaxDelta(time.Duration(s.Clock.MaxDelta)),
		clock.WithFirstDelta(time.Duration(s.Clock.FirstDelta)),
	}

	var dev renderer.Device
	defer func() {
		if dev != nil {
			dev.Release()
		}
	}()

	if s.Engine.Window {
		w, err := window.NewWindow(
			window.WithTitle(s.Engine.Title+" - "+name),
			window.WithWidth(s.Engine.Width),
			window.WithHeight(s.Engine.Height),
			window.WithMaxWidth(0),
			window.WithMaxHeight(0),
			window.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		clockOptions = append(clockOptions, clock.WithTimeSource(window.GLFWTimeSource()))
		options = append(options, engine.WithWindow(w))

		dev, err = renderer.NewSurfaceDevice(w.SurfaceDescriptor(),
			renderer.WithForceSoftwareRenderer(s.GPU.ForceSoftware),
			renderer.WithDeviceLogger(logger),
		)
		if err != nil {
			_ = w.Close()
			return err
		}
		mode := renderer.PresentModeUncapped
		if s.Engine.VSync {
			mode = renderer.PresentModeVSync
		}
		presenterOptions := []renderer.SurfacePresenterBuilderOption{
			renderer.WithPresentMode(mode),
			renderer.WithPresenterLogger(logger),
		}
		if sk.Image != "" {
			presenterOptions = append(presenterOptions, renderer.WithClearSource(sk.Image))
		}
		options = append(options, engine.WithRenderer(renderer.NewSurfacePresenter(dev, w.Width(), w.Height(), presenterOptions...)))
	} else if s.GPU.Upload {
		dev, err = renderer.NewHeadlessDevice(
			renderer.WithForceSoftwareRenderer(s.GPU.ForceSoftware),
			renderer.WithDeviceLogger(logger),
		)
		if err != nil {
			return err
		}
	}
	if dev != nil && s.GPU.Upload {
		options = append(options, engine.WithRenderer(renderer.NewGPUUploader(dev,
			renderer.WithBinding(sk.Outputs...),
			renderer.WithUploaderLogger(logger),
		)))
	}
	options = append(options, engine.WithClock(clock.NewClock(clockOptions...)))

	e, err := engine.NewEngine(options...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, e.Teardown())
	}()

	if err := e.Run(ctx); err != nil {
		return err
	}
	if sk.Summary != nil {
		logger.Info("sketch finished", append([]zap.Field{zap.Uint64("frames", e.Frames())}, sk.Summary()...)...)
	}
	return nil
}
