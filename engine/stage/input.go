package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
)

// InputKind identifies where a declared input is read from.
type InputKind int

const (
	// InputStage reads the current-tick output of another stage.
	InputStage InputKind = iota
	// InputExternal reads a buffer supplied by a collaborator, such as decoded base positions or a normal map.
	InputExternal
)

// Input is a declared reference to data a stage reads.
type Input struct {
	Kind InputKind
	Name string
}

func (in Input) String() string {
	if in.Kind == InputExternal {
		return "external:" + in.Name
	}
	return "stage:" + in.Name
}

// FromStage declares a dependency on another stage's output for the current tick.
// A self-dependent stage naming itself is satisfied by its pool and reads the previous tick's output.
func FromStage(name string) Input {
	return Input{Kind: InputStage, Name: name}
}

// FromExternal declares a dependency on an externally supplied buffer.
func FromExternal(name string) Input {
	return Input{Kind: InputExternal, Name: name}
}

// Resolver looks up the buffers a stage's declared inputs refer to. The pipeline implements it.
type Resolver interface {
	// StageOutput returns the current-tick output of the named stage.
	//
	// Parameters:
	//   - name: the stage name
	//
	// Returns:
	//   - *buffer.Buffer: the output, read-only for the caller
	//   - error: common.ErrDependencyNotReady if the stage has not been evaluated this tick,
	//     common.ErrUnresolvedInput if no such stage exists
	StageOutput(name string) (*buffer.Buffer, error)

	// External returns the named external buffer.
	//
	// Parameters:
	//   - name: the external buffer name
	//
	// Returns:
	//   - *buffer.Buffer: the buffer, read-only for the caller
	//   - error: common.ErrUnresolvedInput if no such buffer exists
	External(name string) (*buffer.Buffer, error)
}

// Inputs is the view of its declared inputs a transition receives.
type Inputs interface {
	// Stage returns the current-tick output of a declared upstream stage.
	Stage(name string) (*buffer.Buffer, error)

	// External returns a declared external buffer.
	External(name string) (*buffer.Buffer, error)

	// Previous returns the stage's own output from the previous tick (the seed on the first tick),
	// or nil for stages without a self-dependency.
	Previous() *buffer.Buffer
}

// inputs restricts a Resolver to the inputs a stage declared.
type inputs struct {
	owner    string
	declared []Input
	resolver Resolver
	previous *buffer.Buffer
}

var _ Inputs = &inputs{}

func (in *inputs) declares(kind InputKind, name string) bool {
	for _, d := range in.declared {
		if d.Kind == kind && d.Name == name {
			return true
		}
	}
	return false
}

func (in *inputs) Stage(name string) (*buffer.Buffer, error) {
	if name == in.owner && in.previous != nil {
		return in.previous, nil
	}
	if !in.declares(InputStage, name) {
		return nil, &common.StageError{Stage: in.owner, Err: fmt.Errorf("undeclared stage input %q: %w", name, common.ErrUnresolvedInput)}
	}
	if in.resolver == nil {
		return nil, &common.StageError{Stage: in.owner, Err: fmt.Errorf("input %q: %w", name, common.ErrDependencyNotReady)}
	}
	b, err := in.resolver.StageOutput(name)
	if err != nil {
		return nil, &common.StageError{Stage: in.owner, Err: err}
	}
	return b, nil
}

func (in *inputs) External(name string) (*buffer.Buffer, error) {
	if !in.declares(InputExternal, name) {
		return nil, &common.StageError{Stage: in.owner, Err: fmt.Errorf("undeclared external input %q: %w", name, common.ErrUnresolvedInput)}
	}
	if in.resolver == nil {
		return nil, &common.StageError{Stage: in.owner, Err: fmt.Errorf("external %q: %w", name, common.ErrUnresolvedInput)}
	}
	b, err := in.resolver.External(name)
	if err != nil {
		return nil, &common.StageError{Stage: in.owner, Err: err}
	}
	return b, nil
}

func (in *inputs) Previous() *buffer.Buffer {
	return in.previous
}
