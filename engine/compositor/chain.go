package compositor

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"go.uber.org/zap"
)

// Chain is an ordered list of image effects over one source image. Each effect becomes a stage
// reading the previous effect's output, the first one reading the chain input.
type Chain interface {
	// Name returns the chain name, used as the stage name prefix.
	Name() string

	// Shape returns the image shape shared by every effect.
	Shape() common.Shape

	// Add appends effects. Adding after Stages has been called has no effect on the built stages.
	//
	// Parameters:
	//   - effects: the effects to append in order
	//
	// Returns:
	//   - Chain: the chain, for call chaining
	Add(effects ...Effect) Chain

	// Effects returns the effects in order.
	Effects() []Effect

	// Stages validates the effect order and returns one stage per effect. The stages are created on
	// the first call and returned again on later calls.
	//
	// Returns:
	//   - []stage.Stage: the stages in chain order
	//   - error: common.ErrTerminalOrder when a second terminal effect appears or a non post-terminal
	//     effect follows the terminal one, or a stage construction error
	Stages() ([]stage.Stage, error)

	// StageName returns the stage name of an effect in this chain.
	StageName(e Effect) string

	// Output returns the name of the stage holding the chain result, or the chain input when empty.
	Output() string

	// PipelineOptions returns the options registering the chain's stages with a pipeline.
	//
	// Returns:
	//   - []pipeline.PipelineBuilderOption: options for pipeline.NewPipeline or pipeline.Build
	//   - error: any error returned by Stages
	PipelineOptions() ([]pipeline.PipelineBuilderOption, error)
}

// chain implements the Chain interface.
type chain struct {
	mu sync.Mutex

	name     string
	input    string
	external bool
	shape    common.Shape
	logger   *zap.Logger

	effects []Effect
	stages  []stage.Stage
}

var _ Chain = &chain{}

// NewChain creates an empty chain over the named source image. Panics if input is empty.
//
// Parameters:
//   - input: the stage (or, with WithExternalSource, external input) providing the source image
//   - shape: the image shape; should have 4 channels
//   - options: functional options for chain configuration
//
// Returns:
//   - Chain: the new chain
func NewChain(input string, shape common.Shape, options ...ChainBuilderOption) Chain {
	if input == "" {
		panic("compositor: NewChain requires a source name")
	}
	c := &chain{
		name:   "composite",
		input:  input,
		shape:  shape,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *chain) Name() string {
	return c.name
}

func (c *chain) Shape() common.Shape {
	return c.shape
}

func (c *chain) Add(effects ...Effect) Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range effects {
		if e == nil {
			panic("compositor: Add requires non-nil effects")
		}
		c.effects = append(c.effects, e)
	}
	return c
}

func (c *chain) Effects() []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Effect, len(c.effects))
	copy(out, c.effects)
	return out
}

func (c *chain) StageName(e Effect) string {
	return c.name + "." + e.Name()
}

func (c *chain) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.effects) == 0 {
		return c.input
	}
	return c.StageName(c.effects[len(c.effects)-1])
}

func (c *chain) validate() error {
	terminal := ""
	for _, e := range c.effects {
		switch {
		case e.Placement() == PlacementTerminal && terminal != "":
			return &common.StageError{Stage: c.StageName(e), Err: fmt.Errorf("second terminal effect after %q: %w", terminal, common.ErrTerminalOrder)}
		case e.Placement() == PlacementTerminal:
			terminal = c.StageName(e)
		case terminal != "" && e.Placement() != PlacementPostTerminal:
			return &common.StageError{Stage: c.StageName(e), Err: fmt.Errorf("%s effect after terminal %q: %w", e.Placement(), terminal, common.ErrTerminalOrder)}
		}
	}
	return nil
}

func (c *chain) Stages() ([]stage.Stage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stages != nil {
		return c.stages, nil
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	stages := make([]stage.Stage, 0, len(c.effects))
	source := c.input
	external := c.external
	for _, e := range c.effects {
		s, err := c.newStage(e, source, external)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
		source, external = s.Name(), false
	}
	c.stages = stages
	c.logger.Debug("compositor chain built", zap.String("chain", c.name), zap.Int("effects", len(stages)))
	return stages, nil
}

func (c *chain) newStage(e Effect, source string, external bool) (stage.Stage, error) {
	read := stage.FromStage(source)
	if external {
		read = stage.FromExternal(source)
	}
	transition := func(in stage.Inputs, v stage.Values, f clock.Frame, out *buffer.Buffer) error {
		var src *buffer.Buffer
		var err error
		if external {
			src, err = in.External(source)
		} else {
			src, err = in.Stage(source)
		}
		if err != nil {
			return err
		}
		if src.Shape() != out.Shape() {
			return fmt.Errorf("source %q shape %s, want %s: %w", source, src.Shape(), out.Shape(), common.ErrInvalidInitialData)
		}
		if !v.Bool(ParamEnabled) {
			return out.CopyFrom(src)
		}
		return e.Apply(src, in, v, f, out)
	}

	options := []stage.StageBuilderOption{
		stage.WithInputs(read),
		stage.WithInputs(e.Inputs()...),
		stage.WithBoolParam(ParamEnabled, true),
	}
	options = append(options, e.Params()...)
	return stage.NewStage(c.StageName(e), c.shape, transition, options...)
}

func (c *chain) PipelineOptions() ([]pipeline.PipelineBuilderOption, error) {
	stages, err := c.Stages()
	if err != nil {
		return nil, err
	}
	return []pipeline.PipelineBuilderOption{pipeline.WithStage(stages...)}, nil
}
