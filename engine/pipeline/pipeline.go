package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Pipeline.
type State int

const (
	// StateUninitialized means stages are being registered and no order has been computed.
	StateUninitialized State = iota
	// StateBuilt means the dependency order is computed and the pipeline is ready to step.
	StateBuilt
	// StateRunning means at least one Step has been taken.
	StateRunning
	// StateTornDown means the pipeline released its pools and can no longer step.
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilt:
		return "built"
	case StateRunning:
		return "running"
	case StateTornDown:
		return "torn down"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is the read-only view of render-relevant outputs handed to renderer collaborators after a step.
// Buffers are owned by the pipeline and stay valid until the next Step.
type Snapshot struct {
	// Pipeline is the name of the pipeline that produced the snapshot.
	Pipeline string
	// Tick is the number of steps taken when the snapshot was produced.
	Tick uint64
	// Frame is the timing the last step was evaluated with.
	Frame clock.Frame
	// Outputs maps stage names to their current outputs.
	Outputs map[string]*buffer.Buffer
}

// Output returns the named output, or nil.
func (s Snapshot) Output(name string) *buffer.Buffer {
	return s.Outputs[name]
}

// Pipeline is an ordered set of stages with explicit data dependencies. It computes a topological
// evaluation order once at build time and evaluates every stage exactly once per Step, committing
// self-dependent stages' pools immediately after their evaluation.
type Pipeline interface {
	// Name returns the pipeline name used in logs and metric labels.
	Name() string

	// State returns the current lifecycle state.
	State() State

	// Build validates declared inputs and computes the evaluation order. Ties between unrelated stages
	// are broken by registration order.
	//
	// Returns:
	//   - error: common.ErrDuplicateStage, common.ErrUnresolvedInput or common.ErrCyclicDependency wrapped in a
	//     *common.StageError; common.ErrInvalidSequencing if the pipeline was already built
	Build() error

	// Step evaluates every stage once in dependency order.
	//
	// Parameters:
	//   - f: the frame timing, normally the result of Clock.Tick
	//
	// Returns:
	//   - error: common.ErrInvalidSequencing before Build or after Teardown, or the first stage error.
	//     A failed step leaves the pipeline state undefined for that tick.
	Step(f clock.Frame) error

	// Order returns the stage names in evaluation order. Empty before Build.
	Order() []string

	// Stages returns the stages in evaluation order, or in registration order before Build.
	Stages() []stage.Stage

	// Stage returns the named stage, or nil.
	Stage(name string) stage.Stage

	// Output returns the named stage's current output, or nil for unknown stages and after Teardown.
	Output(name string) *buffer.Buffer

	// Snapshot returns the current outputs of every stage together with the last frame.
	// Released outputs are omitted, so a snapshot taken after Teardown has no outputs.
	Snapshot() Snapshot

	// SetExternal replaces the contents of a registered external buffer.
	//
	// Parameters:
	//   - name: the external buffer name
	//   - b: the new contents, must match the registered shape
	//
	// Returns:
	//   - error: common.ErrUnresolvedInput for unknown names, common.ErrInvalidInitialData on shape mismatch
	SetExternal(name string, b *buffer.Buffer) error

	// Ticks returns the number of steps taken.
	Ticks() uint64

	// Clock returns the clock given with WithClock, or nil when the pipeline is stepped by hand.
	Clock() clock.Clock

	// Teardown releases every pool and detaches from the clock. Calling it again is a no-op.
	//
	// Returns:
	//   - error: aggregated release failures, nil on repeated calls
	Teardown() error
}

// pipeline implements the Pipeline interface.
type pipeline struct {
	mu sync.Mutex

	name  string
	state State

	stages    []stage.Stage
	byName    map[string]int
	externals map[string]*buffer.Buffer
	configErr error

	order       []int
	evaluatedAt []uint64
	ticks       uint64
	frame       clock.Frame

	logger      *zap.Logger
	metrics     *Metrics
	finiteCheck bool

	clk        clock.Clock
	sub        clock.Subscription
	subscribed bool
	onError    func(error)
}

var _ Pipeline = &pipeline{}

// NewPipeline creates an uninitialized Pipeline. Stages and externals are registered through options;
// registration errors such as duplicate names are reported by Build.
//
// Parameters:
//   - options: functional options for pipeline configuration
//
// Returns:
//   - Pipeline: the new pipeline in StateUninitialized
func NewPipeline(options ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		name:      "pipeline",
		byName:    make(map[string]int),
		externals: make(map[string]*buffer.Buffer),
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.onError == nil {
		p.onError = func(err error) {
			p.logger.Error("clock driven step failed", zap.String("pipeline", p.name), zap.Error(err))
		}
	}
	return p
}

// Build creates a Pipeline from options and builds it in one call.
//
// Parameters:
//   - options: functional options for pipeline configuration
//
// Returns:
//   - Pipeline: the built pipeline, or nil on error
//   - error: any error returned by Pipeline.Build
func Build(options ...PipelineBuilderOption) (Pipeline, error) {
	p := NewPipeline(options...)
	if err := p.Build(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pipeline) addStage(s stage.Stage) {
	if s == nil {
		panic("pipeline: WithStage requires a non-nil Stage")
	}
	if _, ok := p.byName[s.Name()]; ok {
		p.configErr = multierr.Append(p.configErr, common.NewStageError(s.Name(), common.ErrDuplicateStage))
		return
	}
	p.byName[s.Name()] = len(p.stages)
	p.stages = append(p.stages, s)
}

func (p *pipeline) Name() string {
	return p.name
}

func (p *pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *pipeline) Build() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUninitialized {
		return fmt.Errorf("build in state %s: %w", p.state, common.ErrInvalidSequencing)
	}
	if p.configErr != nil {
		return p.configErr
	}

	order, err := p.resolveOrder()
	if err != nil {
		p.logger.Debug("pipeline build failed", zap.String("pipeline", p.name), zap.Error(err))
		return err
	}
	p.order = order
	p.evaluatedAt = make([]uint64, len(p.stages))
	p.state = StateBuilt

	if p.clk != nil {
		p.sub = p.clk.Subscribe(p.onTick)
		p.subscribed = true
	}
	p.metrics.observeStages(p.name, len(p.stages))

	p.logger.Debug("pipeline built", zap.String("pipeline", p.name), zap.Strings("order", p.orderNames()))
	return nil
}

// dependencies returns, for every stage, the indices of the stages it reads in the same tick.
func (p *pipeline) dependencies() ([][]int, error) {
	deps := make([][]int, len(p.stages))
	for i, s := range p.stages {
		for _, in := range s.Inputs() {
			switch in.Kind {
			case stage.InputExternal:
				if _, ok := p.externals[in.Name]; !ok {
					return nil, &common.StageError{Stage: s.Name(), Err: fmt.Errorf("external %q: %w", in.Name, common.ErrUnresolvedInput)}
				}
			case stage.InputStage:
				if in.Name == s.Name() {
					if s.SelfDependent() {
						continue
					}
					return nil, &common.StageError{Stage: s.Name(), Path: []string{s.Name(), s.Name()}, Err: common.ErrCyclicDependency}
				}
				j, ok := p.byName[in.Name]
				if !ok {
					return nil, &common.StageError{Stage: s.Name(), Err: fmt.Errorf("stage %q: %w", in.Name, common.ErrUnresolvedInput)}
				}
				deps[i] = append(deps[i], j)
			}
		}
	}
	return deps, nil
}

// resolveOrder performs a topological sort, always placing the earliest registered stage whose
// dependencies are already placed.
func (p *pipeline) resolveOrder() ([]int, error) {
	deps, err := p.dependencies()
	if err != nil {
		return nil, err
	}

	placed := make([]bool, len(p.stages))
	order := make([]int, 0, len(p.stages))
	for len(order) < len(p.stages) {
		next := -1
		for i := range p.stages {
			if placed[i] {
				continue
			}
			ready := true
			for _, d := range deps[i] {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, p.cycleError(deps, placed)
		}
		placed[next] = true
		order = append(order, next)
	}
	return order, nil
}

// cycleError walks the unplaced stages depth first and reports the first cycle found.
func (p *pipeline) cycleError(deps [][]int, placed []bool) error {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(p.stages))
	var stack []int
	var cycle []int

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = gray
		stack = append(stack, i)
		for _, d := range deps[i] {
			if placed[d] {
				continue
			}
			switch color[d] {
			case gray:
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == d {
						cycle = append(append([]int{}, stack[k:]...), d)
						return true
					}
				}
			case white:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}

	for i := range p.stages {
		if !placed[i] && color[i] == white && visit(i) {
			break
		}
	}

	path := make([]string, len(cycle))
	for k, idx := range cycle {
		path[k] = p.stages[idx].Name()
	}
	offender := ""
	if len(path) > 0 {
		offender = path[0]
	}
	return &common.StageError{Stage: offender, Path: path, Err: common.ErrCyclicDependency}
}

func (p *pipeline) onTick(f clock.Frame) {
	if err := p.Step(f); err != nil {
		p.onError(err)
	}
}

func (p *pipeline) Step(f clock.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateBuilt:
		p.state = StateRunning
	case StateRunning:
	default:
		return fmt.Errorf("step in state %s: %w", p.state, common.ErrInvalidSequencing)
	}

	start := time.Now()
	p.ticks++
	p.frame = f

	for _, s := range p.stages {
		if pool := s.Pool(); pool != nil {
			pool.BeginTick()
		}
	}

	r := &resolver{p: p}
	for _, idx := range p.order {
		s := p.stages[idx]
		out, err := s.Evaluate(f, r)
		p.evaluatedAt[idx] = p.ticks
		if err != nil {
			if errors.Is(err, stage.ErrSkip) {
				p.metrics.observeSkip(p.name, s.Name())
				continue
			}
			return fmt.Errorf("pipeline %q tick %d: %w", p.name, p.ticks, err)
		}
		if p.finiteCheck {
			if i, ok := out.Finite(); !ok {
				return &common.StageError{Stage: s.Name(), Err: fmt.Errorf("value %d: %w", i, common.ErrNonFinite)}
			}
		}
		if pool := s.Pool(); pool != nil {
			if err := pool.Commit(out); err != nil {
				return common.NewStageError(s.Name(), err)
			}
		}
		p.metrics.observeEvaluation(p.name, s.Name())
	}

	p.metrics.observeStep(p.name, time.Since(start))
	return nil
}

func (p *pipeline) orderNames() []string {
	names := make([]string, len(p.order))
	for k, idx := range p.order {
		names[k] = p.stages[idx].Name()
	}
	return names
}

func (p *pipeline) Order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orderNames()
}

func (p *pipeline) Stages() []stage.Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		out := make([]stage.Stage, len(p.stages))
		copy(out, p.stages)
		return out
	}
	out := make([]stage.Stage, len(p.order))
	for k, idx := range p.order {
		out[k] = p.stages[idx]
	}
	return out
}

func (p *pipeline) Stage(name string) stage.Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.byName[name]; ok {
		return p.stages[i]
	}
	return nil
}

func (p *pipeline) Output(name string) *buffer.Buffer {
	s := p.Stage(name)
	if s == nil {
		return nil
	}
	return s.Output()
}

func (p *pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	outputs := make(map[string]*buffer.Buffer, len(p.stages))
	for _, s := range p.stages {
		if out := s.Output(); out != nil {
			outputs[s.Name()] = out
		}
	}
	return Snapshot{Pipeline: p.name, Tick: p.ticks, Frame: p.frame, Outputs: outputs}
}

func (p *pipeline) SetExternal(name string, b *buffer.Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateTornDown {
		return fmt.Errorf("set external %q: %w", name, common.ErrReleased)
	}
	ext, ok := p.externals[name]
	if !ok {
		return fmt.Errorf("set external %q: %w", name, common.ErrUnresolvedInput)
	}
	if err := ext.CopyFrom(b); err != nil {
		return fmt.Errorf("set external %q: %w", name, err)
	}
	return nil
}

func (p *pipeline) Ticks() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

func (p *pipeline) Clock() clock.Clock {
	return p.clk
}

func (p *pipeline) Teardown() (err error) {
	p.mu.Lock()
	if p.state == StateTornDown {
		p.mu.Unlock()
		return nil
	}
	p.state = StateTornDown
	clk, sub, subscribed := p.clk, p.sub, p.subscribed
	p.subscribed = false
	stages := p.stages
	p.mu.Unlock()

	if subscribed {
		clk.Unsubscribe(sub)
	}
	for _, s := range stages {
		err = multierr.Append(err, release(s))
	}
	p.logger.Info("pipeline torn down", zap.String("pipeline", p.name), zap.Uint64("ticks", p.ticks), zap.Int("stages", len(stages)))
	return err
}

// release drops a stage's buffers, converting a panicking Release into an error.
func release(s stage.Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.NewStageError(s.Name(), fmt.Errorf("release: %v", r))
		}
	}()
	s.Release()
	return nil
}

// resolver serves a stage's declared inputs for the tick in progress.
type resolver struct {
	p *pipeline
}

var _ stage.Resolver = &resolver{}

func (r *resolver) StageOutput(name string) (*buffer.Buffer, error) {
	i, ok := r.p.byName[name]
	if !ok {
		return nil, fmt.Errorf("stage %q: %w", name, common.ErrUnresolvedInput)
	}
	// Build orders producers first, so this only trips when a stage is evaluated outside Step.
	if r.p.evaluatedAt[i] != r.p.ticks {
		return nil, fmt.Errorf("stage %q not evaluated in tick %d: %w", name, r.p.ticks, common.ErrDependencyNotReady)
	}
	return r.p.stages[i].Output(), nil
}

func (r *resolver) External(name string) (*buffer.Buffer, error) {
	b, ok := r.p.externals[name]
	if !ok {
		return nil, fmt.Errorf("external %q: %w", name, common.ErrUnresolvedInput)
	}
	return b, nil
}
