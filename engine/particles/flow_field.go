package particles

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
	"go.uber.org/zap"
)

// Channels is the layout of a particle texel: position xyz and the normalized lifetime in w.
const Channels = 4

// Parameter names exposed by the flow-field stage.
const (
	ParamInfluence    = "influence"
	ParamStrength     = "strength"
	ParamFrequency    = "frequency"
	ParamLifetimeRate = "lifetimeRate"
	ParamDrift        = "drift"
	ParamTimeScale    = "timeScale"
)

// FlowField is a particle system whose positions are advected through a 4D simplex noise field.
// Each particle ages by lifetimeRate per second; once its lifetime reaches 1 it re-enters at its
// base position with the lifetime wrapped.
type FlowField interface {
	// Stage returns the self-dependent pipeline stage holding the particle state.
	Stage() stage.Stage

	// Base returns the base buffer the stage was created from.
	Base() *buffer.Buffer

	// BaseName returns the external input name the stage reads base positions from.
	BaseName() string

	// Count returns the number of simulated particles, including grid padding.
	Count() int

	// PipelineOptions returns the options registering the stage and its base buffer with a pipeline.
	//
	// Returns:
	//   - []pipeline.PipelineBuilderOption: options for pipeline.NewPipeline or pipeline.Build
	PipelineOptions() []pipeline.PipelineBuilderOption
}

// flowField implements the FlowField interface.
type flowField struct {
	name     string
	baseName string
	base     *buffer.Buffer
	stg      stage.Stage
	noise    opensimplex.Noise32
	seed     int64
	logger   *zap.Logger

	workers int
	pool    worker.DynamicWorkerPool
}

var _ FlowField = &flowField{}

// flowParams is the per-evaluation view of the stage parameters.
type flowParams struct {
	influence    float32
	strength     float32
	frequency    float32
	lifetimeRate float32
	drift        mgl32.Vec3
	time         float32
	dt           float32
}

// NewFlowField creates a flow-field particle system seeded from base. Panics if base is nil.
//
// Parameters:
//   - base: the base buffer with position xyz and an initial lifetime in w
//   - options: functional options for flow-field configuration
//
// Returns:
//   - FlowField: the particle system
//   - error: common.ErrInvalidInitialData if base does not have 4 channels
func NewFlowField(base *buffer.Buffer, options ...FlowFieldBuilderOption) (FlowField, error) {
	if base == nil {
		panic("particles: NewFlowField requires a non-nil base buffer")
	}
	if base.Shape().Channels != Channels {
		return nil, fmt.Errorf("base shape %s needs %d channels: %w", base.Shape(), Channels, common.ErrInvalidInitialData)
	}

	ff := &flowField{
		name:    "flowfield",
		base:    base,
		workers: 1,
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(ff)
	}
	if ff.baseName == "" {
		ff.baseName = ff.name + ".base"
	}
	ff.noise = opensimplex.New32(ff.seed)
	if ff.workers > 1 {
		// workers are reused across ticks and exit after a second idle
		ff.pool = worker.NewDynamicWorkerPool(ff.workers, 256, 1*time.Second)
	}

	s, err := stage.NewStage(ff.name, base.Shape(), ff.transition,
		stage.WithSelfDependency(base),
		stage.WithInputs(stage.FromExternal(ff.baseName)),
		stage.WithFloatParam(ParamInfluence, 0.5, 0, 1),
		stage.WithFloatParam(ParamStrength, 2, 0, 10),
		stage.WithFloatParam(ParamFrequency, 0.5, 0, 1),
		stage.WithFloatParam(ParamLifetimeRate, 0.3, 0, 10),
		stage.WithVec3Param(ParamDrift, mgl32.Vec3{}, 0, 0),
		stage.WithFloatParam(ParamTimeScale, 0.2, 0, 10),
	)
	if err != nil {
		return nil, err
	}
	ff.stg = s
	ff.logger.Debug("flow field created",
		zap.String("stage", ff.name),
		zap.Stringer("shape", base.Shape()),
		zap.Int("workers", ff.workers))
	return ff, nil
}

func (ff *flowField) Stage() stage.Stage {
	return ff.stg
}

func (ff *flowField) Base() *buffer.Buffer {
	return ff.base
}

func (ff *flowField) BaseName() string {
	return ff.baseName
}

func (ff *flowField) Count() int {
	return ff.base.Shape().Elements()
}

func (ff *flowField) PipelineOptions() []pipeline.PipelineBuilderOption {
	return []pipeline.PipelineBuilderOption{
		pipeline.WithExternal(ff.baseName, ff.base),
		pipeline.WithStage(ff.stg),
	}
}

func (ff *flowField) transition(in stage.Inputs, v stage.Values, f clock.Frame, out *buffer.Buffer) error {
	base, err := in.External(ff.baseName)
	if err != nil {
		return err
	}
	prev := in.Previous()
	p := flowParams{
		influence:    v.Float(ParamInfluence),
		strength:     v.Float(ParamStrength),
		frequency:    v.Float(ParamFrequency),
		lifetimeRate: v.Float(ParamLifetimeRate),
		drift:        v.Vec3(ParamDrift),
		time:         f.Elapsed * v.Float(ParamTimeScale),
		dt:           f.Delta,
	}

	n := ff.Count()
	if ff.workers <= 1 || n < ff.workers {
		ff.advanceRange(0, n, prev.Data(), base.Data(), out.Data(), p)
		return nil
	}

	chunk := (n + ff.workers - 1) / ff.workers
	var wg sync.WaitGroup
	for id, lo := 0, 0; lo < n; id, lo = id+1, lo+chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		start, end := lo, hi
		ff.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				ff.advanceRange(start, end, prev.Data(), base.Data(), out.Data(), p)
				return nil, nil
			},
		})
	}
	wg.Wait()
	return nil
}

func (ff *flowField) advanceRange(lo, hi int, prev, base, out []float32, p flowParams) {
	for i := lo; i < hi; i++ {
		o := i * Channels
		ff.advance(prev[o:o+Channels], base[o:o+Channels], out[o:o+Channels], p)
	}
}

// advance writes one particle's next state.
func (ff *flowField) advance(prev, base, out []float32, p flowParams) {
	life := prev[3]
	if life >= 1 {
		out[0], out[1], out[2] = base[0], base[1], base[2]
		out[3] = math32.Mod(life, 1)
		return
	}

	pos := mgl32.Vec3{prev[0], prev[1], prev[2]}

	// strength varies smoothly across the base shape; higher influence lets more particles move
	edge := (p.influence - 0.5) * -2
	local := ff.noise.Eval4(base[0]*0.2, base[1]*0.2, base[2]*0.2, p.time+1)
	var strength float32
	if edge < 1 {
		strength = common.Smoothstep(edge, 1, local)
	} else if local >= 1 {
		strength = 1
	}

	q := pos.Mul(p.frequency)
	field := mgl32.Vec3{
		ff.noise.Eval4(q[0], q[1], q[2], p.time),
		ff.noise.Eval4(q[0]+1, q[1]+1, q[2]+1, p.time),
		ff.noise.Eval4(q[0]+2, q[1]+2, q[2]+2, p.time),
	}
	if l := field.Len(); l > 0 {
		field = field.Mul(1 / l)
	}

	pos = pos.Add(field.Mul(p.dt * strength * p.strength)).Add(p.drift.Mul(p.dt))
	out[0], out[1], out[2] = pos[0], pos[1], pos[2]
	out[3] = life + p.dt*p.lifetimeRate
}
