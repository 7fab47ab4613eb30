package common

import (
	"errors"
	"fmt"
	"strings"
)

// Build-time configuration errors. A pipeline that fails with one of these never enters the Running state.
var (
	// ErrUnresolvedInput is returned when a declared input names neither a registered stage nor an external buffer.
	ErrUnresolvedInput = errors.New("unresolved input")

	// ErrCyclicDependency is returned when two or more distinct stages depend on each other.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrDuplicateStage is returned when two stages are registered under the same name.
	ErrDuplicateStage = errors.New("duplicate stage")

	// ErrInvalidInitialData is returned when a collaborator supplies a buffer whose shape or length does not match.
	ErrInvalidInitialData = errors.New("invalid initial data")

	// ErrTerminalOrder is returned when a compositor chain places effects after its terminal effect.
	ErrTerminalOrder = errors.New("terminal effect must be last")
)

// Programming errors raised while a pipeline is running.
var (
	// ErrInvalidSequencing is returned for calls made out of order, such as committing a pool twice in one tick.
	ErrInvalidSequencing = errors.New("invalid sequencing")

	// ErrDependencyNotReady is returned when a stage reads a peer that has not been evaluated in the current tick.
	ErrDependencyNotReady = errors.New("dependency not ready")

	// ErrReleased is returned when a released pool or torn down component is used.
	ErrReleased = errors.New("released")

	// ErrNonFinite is returned by the optional finite-value check when a stage writes NaN or Inf.
	ErrNonFinite = errors.New("non-finite value")
)

// Parameter and element registry errors.
var (
	// ErrUnknownParameter is returned when a parameter name is not declared on a stage.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrParameterType is returned when a parameter is read or written with the wrong type.
	ErrParameterType = errors.New("parameter type mismatch")

	// ErrCapacityExceeded is returned when more elements are added than a fixed-shape buffer can hold.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// StageError attaches the name of the offending stage to an error.
// Path is populated for cyclic dependencies with the stages forming the cycle.
type StageError struct {
	Stage string
	Path  []string
	Err   error
}

func (e *StageError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("stage %q: %v: %s", e.Stage, e.Err, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the given stage name.
//
// Parameters:
//   - stage: the name of the stage the error belongs to
//   - err: the underlying error, usually one of the sentinel errors in this package
//
// Returns:
//   - error: a *StageError wrapping err
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
