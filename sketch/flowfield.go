package sketch

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-flow/engine/particles"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"go.uber.org/zap"
)

// FlowField builds the particle sketch: particles on a sphere advected through the noise field.
//
// Parameters:
//   - env: the settings, logger and metrics
//
// Returns:
//   - *Sketch: the sketch, its output is the "flowfield" particle buffer
//   - error: any construction error
func FlowField(env Env) (*Sketch, error) {
	s := env.Settings.FlowField
	base := particles.BaseFromPositions(particles.SpherePositions(s.Count, s.Radius), uint64(s.Seed))
	ff, err := particles.NewFlowField(base,
		particles.WithSeed(s.Seed),
		particles.WithWorkers(s.Workers),
		particles.WithLogger(env.logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("flow field: %w", err)
	}

	params := ff.Stage().Params()
	for name, v := range map[string]float32{
		particles.ParamInfluence:    s.Influence,
		particles.ParamStrength:     s.Strength,
		particles.ParamFrequency:    s.Frequency,
		particles.ParamLifetimeRate: s.LifetimeRate,
		particles.ParamTimeScale:    s.TimeScale,
	} {
		if err := params.SetFloat(name, v); err != nil {
			return nil, fmt.Errorf("flow field: %w", err)
		}
	}

	options := append(env.pipelineOptions("flowfield"), ff.PipelineOptions()...)
	return &Sketch{
		Pipeline: pipeline.NewPipeline(options...),
		Outputs:  []string{ff.Stage().Name()},
		Summary: func() []zap.Field {
			return []zap.Field{zap.Int("particles", ff.Count()), zap.Uint64("evaluations", ff.Stage().Evaluations())}
		},
	}, nil
}
