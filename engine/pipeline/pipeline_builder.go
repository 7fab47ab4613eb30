package pipeline

import (
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"go.uber.org/zap"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithName sets the name used in log fields and metric labels.
//
// Parameters:
//   - name: the pipeline name
//
// Returns:
//   - PipelineBuilderOption: a function that sets the name
func WithName(name string) PipelineBuilderOption {
	return func(p *pipeline) {
		if name != "" {
			p.name = name
		}
	}
}

// WithStage registers stages in the given order. Registration order breaks ties between stages
// that do not depend on each other. Panics on a nil stage.
//
// Parameters:
//   - stages: the stages to register
//
// Returns:
//   - PipelineBuilderOption: a function that registers the stages
func WithStage(stages ...stage.Stage) PipelineBuilderOption {
	return func(p *pipeline) {
		for _, s := range stages {
			p.addStage(s)
		}
	}
}

// WithExternal registers an externally supplied buffer. The pipeline keeps its own copy;
// later updates go through Pipeline.SetExternal.
//
// Parameters:
//   - name: the name stages refer to with stage.FromExternal
//   - b: the initial contents
//
// Returns:
//   - PipelineBuilderOption: a function that registers the buffer
func WithExternal(name string, b *buffer.Buffer) PipelineBuilderOption {
	return func(p *pipeline) {
		if b == nil {
			panic("pipeline: WithExternal requires a non-nil buffer")
		}
		p.externals[name] = b.Clone()
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) PipelineBuilderOption {
	return func(p *pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics attaches prometheus collectors created with NewMetrics.
func WithMetrics(m *Metrics) PipelineBuilderOption {
	return func(p *pipeline) {
		p.metrics = m
	}
}

// WithClock subscribes the pipeline to a clock when it is built, so every Clock.Tick steps the pipeline.
// Teardown unsubscribes.
//
// Parameters:
//   - c: the clock to follow
//
// Returns:
//   - PipelineBuilderOption: a function that sets the clock
func WithClock(c clock.Clock) PipelineBuilderOption {
	return func(p *pipeline) {
		p.clk = c
	}
}

// WithErrorHandler sets the callback receiving errors from clock driven steps.
// Defaults to logging them at error level.
func WithErrorHandler(fn func(error)) PipelineBuilderOption {
	return func(p *pipeline) {
		p.onError = fn
	}
}

// WithFiniteCheck makes every step verify that committed outputs hold no NaN or infinite values.
func WithFiniteCheck(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.finiteCheck = enabled
	}
}
