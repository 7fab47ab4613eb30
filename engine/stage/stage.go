package stage

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
)

// ErrSkip is returned by a transition that chooses not to update this tick.
// The pipeline counts the evaluation but commits nothing, leaving the stage output unchanged.
var ErrSkip = errors.New("skip update")

// Transition is the pure per-tick function of a stage. It reads its declared inputs, a snapshot of its
// parameters and the frame timing, and writes the new output into out. For self-dependent stages out is
// the pool's back buffer; otherwise it is the stage's own output buffer. A transition must be deterministic
// given identical inputs and must not retain out or any input beyond the call.
//
// Parameters:
//   - in: the declared inputs
//   - params: the parameter snapshot for this evaluation
//   - f: the frame timing
//   - out: the write target, shaped as the stage's output
//
// Returns:
//   - error: ErrSkip to leave the output unchanged, or any error to abort the tick
type Transition func(in Inputs, params Values, f clock.Frame, out *buffer.Buffer) error

// Stage is the atomic unit of the pipeline: a named transition with declared inputs,
// a fixed output shape and a typed parameter set.
type Stage interface {
	// Name returns the unique stage name.
	Name() string

	// OutputShape returns the fixed shape of the stage's output.
	OutputShape() common.Shape

	// Inputs returns the declared inputs in declaration order.
	Inputs() []Input

	// SelfDependent reports whether the stage reads its own previous output through a pool.
	SelfDependent() bool

	// Pool returns the stage's ping-pong pool, or nil when the stage is not self-dependent.
	Pool() buffer.Pool

	// Params returns the mutable parameter registry.
	Params() *Params

	// Output returns the stage's current readable output: the pool front for self-dependent stages,
	// the owned output buffer otherwise.
	//
	// Returns:
	//   - *buffer.Buffer: the current output, read-only for the caller
	Output() *buffer.Buffer

	// Evaluate snapshots the parameters, gathers the declared inputs through r and invokes the transition.
	// It does not commit; the pipeline commits self-dependent outputs after Evaluate returns.
	//
	// Parameters:
	//   - f: the frame timing
	//   - r: the resolver for declared inputs
	//
	// Returns:
	//   - *buffer.Buffer: the buffer the transition wrote
	//   - error: ErrSkip, a resolution error such as common.ErrDependencyNotReady, or a transition error
	Evaluate(f clock.Frame, r Resolver) (*buffer.Buffer, error)

	// Evaluations returns the number of times Evaluate has invoked the transition.
	Evaluations() uint64

	// Release drops the stage's buffers. Releasing twice is a no-op.
	Release()
}

// stage implements the Stage interface.
type stage struct {
	name       string
	shape      common.Shape
	transition Transition
	inputs     []Input
	params     *Params

	selfDependent bool
	seed          *buffer.Buffer
	pool          buffer.Pool
	output        *buffer.Buffer

	evaluations uint64
	released    bool
}

var _ Stage = &stage{}

// NewStage creates a Stage. Panics if name is empty or transition is nil.
//
// Parameters:
//   - name: the unique stage name
//   - shape: the fixed output shape
//   - transition: the per-tick function
//   - options: functional options (inputs, self-dependency, parameters)
//
// Returns:
//   - Stage: the constructed stage
//   - error: common.ErrInvalidInitialData if the shape is invalid or the self-dependency seed does not match it
func NewStage(name string, shape common.Shape, transition Transition, options ...StageBuilderOption) (Stage, error) {
	if name == "" {
		panic("stage: NewStage requires a non-empty name")
	}
	if transition == nil {
		panic("stage: NewStage requires a non-nil transition")
	}
	s := &stage{
		name:       name,
		shape:      shape,
		transition: transition,
		params:     NewParams(),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.selfDependent {
		p, err := buffer.NewPool(shape, s.seed)
		if err != nil {
			return nil, common.NewStageError(name, err)
		}
		s.pool = p
		s.seed = nil
		return s, nil
	}

	out, err := buffer.NewBuffer(shape)
	if err != nil {
		return nil, common.NewStageError(name, err)
	}
	s.output = out
	return s, nil
}

func (s *stage) Name() string {
	return s.name
}

func (s *stage) OutputShape() common.Shape {
	return s.shape
}

func (s *stage) Inputs() []Input {
	out := make([]Input, len(s.inputs))
	copy(out, s.inputs)
	return out
}

func (s *stage) SelfDependent() bool {
	return s.selfDependent
}

func (s *stage) Pool() buffer.Pool {
	return s.pool
}

func (s *stage) Params() *Params {
	return s.params
}

func (s *stage) Output() *buffer.Buffer {
	if s.pool != nil {
		return s.pool.Current()
	}
	return s.output
}

func (s *stage) Evaluate(f clock.Frame, r Resolver) (*buffer.Buffer, error) {
	if s.released {
		return nil, common.NewStageError(s.name, fmt.Errorf("evaluate: %w", common.ErrReleased))
	}
	in := &inputs{owner: s.name, declared: s.inputs, resolver: r}
	out := s.output
	if s.pool != nil {
		in.previous = s.pool.Current()
		out = s.pool.Back()
	}

	s.evaluations++
	if err := s.transition(in, s.params.Snapshot(), f, out); err != nil {
		if errors.Is(err, ErrSkip) {
			return nil, ErrSkip
		}
		var se *common.StageError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, common.NewStageError(s.name, err)
	}
	return out, nil
}

func (s *stage) Evaluations() uint64 {
	return s.evaluations
}

func (s *stage) Release() {
	if s.released {
		return
	}
	s.released = true
	if s.pool != nil {
		s.pool.Release()
	}
	s.output = nil
}
