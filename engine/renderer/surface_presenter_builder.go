package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// SurfacePresenterBuilderOption is a functional option used to configure a SurfacePresenter during construction.
type SurfacePresenterBuilderOption func(*surfacePresenter)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - SurfacePresenterBuilderOption: a function that applies the present mode option to a presenter
func WithPresentMode(mode PresentMode) SurfacePresenterBuilderOption {
	return func(p *surfacePresenter) {
		p.presentMode = mode
	}
}

// WithClearColor sets the fixed clear color used when no source output is bound.
func WithClearColor(c wgpu.Color) SurfacePresenterBuilderOption {
	return func(p *surfacePresenter) {
		p.clear = c
	}
}

// WithClearSource clears the surface with the mean color of the named RGBA output.
func WithClearSource(name string) SurfacePresenterBuilderOption {
	return func(p *surfacePresenter) {
		p.source = name
	}
}

// WithPresenterLogger sets the presenter logger. Defaults to zap.NewNop().
func WithPresenterLogger(logger *zap.Logger) SurfacePresenterBuilderOption {
	return func(p *surfacePresenter) {
		if logger != nil {
			p.logger = logger
		}
	}
}
