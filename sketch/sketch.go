package sketch

import (
	"github.com/Carmen-Shannon/oxy-flow/config"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"go.uber.org/zap"
)

// Sketch is a ready-to-run pipeline preset driven by the CLI.
type Sketch struct {
	// Pipeline is the unbuilt pipeline holding the sketch's stages.
	Pipeline pipeline.Pipeline
	// Outputs are the render-relevant stage outputs, uploaded or recorded every frame.
	Outputs []string
	// Image is an RGBA output suitable for presenting, empty when the sketch has none.
	Image string
	// OnTick is called every frame before the pipeline steps, or nil.
	OnTick func(f clock.Frame)
	// Summary returns log fields describing the run so far, or nil.
	Summary func() []zap.Field
}

// Env carries the ambient dependencies shared by every sketch.
type Env struct {
	Settings config.Settings
	Logger   *zap.Logger
	Metrics  *pipeline.Metrics
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// pipelineOptions returns the options every sketch pipeline shares.
func (e Env) pipelineOptions(name string) []pipeline.PipelineBuilderOption {
	return []pipeline.PipelineBuilderOption{
		pipeline.WithName(name),
		pipeline.WithLogger(e.logger()),
		pipeline.WithMetrics(e.Metrics),
		pipeline.WithFiniteCheck(e.Settings.Pipeline.FiniteCheck),
	}
}
