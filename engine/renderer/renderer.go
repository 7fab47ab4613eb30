package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"go.uber.org/multierr"
)

// Renderer consumes the outputs of a pipeline once per tick, after the pipeline has stepped.
// Renderers must not retain the snapshot buffers past the call; they are reused by the next step.
type Renderer interface {
	// Render hands the renderer the outputs of the latest step.
	//
	// Parameters:
	//   - snapshot: the pipeline outputs and the frame they were evaluated with
	//
	// Returns:
	//   - error: any error encountered while consuming the outputs
	Render(snapshot pipeline.Snapshot) error

	// Release frees any resources held by the renderer. Safe to call more than once.
	//
	// Returns:
	//   - error: any error encountered while releasing
	Release() error
}

// RenderFunc adapts a plain function to the Renderer interface. Release is a no-op.
type RenderFunc func(snapshot pipeline.Snapshot) error

var _ Renderer = RenderFunc(nil)

func (f RenderFunc) Render(snapshot pipeline.Snapshot) error {
	return f(snapshot)
}

func (f RenderFunc) Release() error {
	return nil
}

// Group fans every snapshot out to a list of renderers in order.
type Group []Renderer

var _ Renderer = Group(nil)

// Render calls every renderer in order and stops at the first error.
func (g Group) Render(snapshot pipeline.Snapshot) error {
	for i, r := range g {
		if err := r.Render(snapshot); err != nil {
			return fmt.Errorf("renderer %d: %w", i, err)
		}
	}
	return nil
}

// Release releases every renderer in reverse order and aggregates the errors.
func (g Group) Release() error {
	var err error
	for i := len(g) - 1; i >= 0; i-- {
		err = multierr.Append(err, g[i].Release())
	}
	return err
}
