package stage

import (
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/go-gl/mathgl/mgl32"
)

// StageBuilderOption is a functional option used to configure a Stage during construction.
type StageBuilderOption func(*stage)

// WithInputs appends declared inputs. Every input must be resolvable when the pipeline is built.
//
// Parameters:
//   - inputs: references created with FromStage or FromExternal
//
// Returns:
//   - StageBuilderOption: a function that appends the inputs
func WithInputs(inputs ...Input) StageBuilderOption {
	return func(s *stage) {
		s.inputs = append(s.inputs, inputs...)
	}
}

// WithSelfDependency makes the stage read its own previous output. The stage allocates a ping-pong
// pool seeded from initial, which must match the output shape; nil seeds zeroes.
//
// Parameters:
//   - initial: the seed contents observed by the first evaluation
//
// Returns:
//   - StageBuilderOption: a function that enables the self-dependency
func WithSelfDependency(initial *buffer.Buffer) StageBuilderOption {
	return func(s *stage) {
		s.selfDependent = true
		s.seed = initial
	}
}

// WithParams replaces the stage's parameter registry, letting several stages share one or letting a
// caller declare parameters up front.
//
// Parameters:
//   - p: the registry to use
//
// Returns:
//   - StageBuilderOption: a function that sets the registry
func WithParams(p *Params) StageBuilderOption {
	return func(s *stage) {
		if p != nil {
			s.params = p
		}
	}
}

// WithFloatParam declares a float parameter. Pass min == max for an unbounded value.
func WithFloatParam(name string, def, min, max float32) StageBuilderOption {
	return func(s *stage) {
		s.params.DefineFloat(name, def, min, max)
	}
}

// WithIntParam declares an int parameter. Pass min == max for an unbounded value.
func WithIntParam(name string, def, min, max int) StageBuilderOption {
	return func(s *stage) {
		s.params.DefineInt(name, def, min, max)
	}
}

// WithBoolParam declares a bool parameter.
func WithBoolParam(name string, def bool) StageBuilderOption {
	return func(s *stage) {
		s.params.DefineBool(name, def)
	}
}

// WithVec3Param declares a vector parameter. Pass min == max for unbounded components.
func WithVec3Param(name string, def mgl32.Vec3, min, max float32) StageBuilderOption {
	return func(s *stage) {
		s.params.DefineVec3(name, def, min, max)
	}
}
