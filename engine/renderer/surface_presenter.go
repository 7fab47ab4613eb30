package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

func (m PresentMode) toWGPU() wgpu.PresentMode {
	if m == PresentModeVSync {
		return wgpu.PresentModeFifo
	}
	return wgpu.PresentModeImmediate
}

// SurfacePresenter is a Renderer that clears the window surface every tick and presents it.
// The clear color is either fixed or the mean color of a bound RGBA output.
type SurfacePresenter interface {
	Renderer

	// Resize reconfigures the surface. Zero sizes are ignored, as reported for minimized windows.
	//
	// Parameters:
	//   - width: the new framebuffer width in pixels
	//   - height: the new framebuffer height in pixels
	Resize(width, height int)

	// ClearColor returns the color used by the most recent Render.
	ClearColor() wgpu.Color
}

// surfacePresenter implements the SurfacePresenter interface.
type surfacePresenter struct {
	mu       sync.Mutex
	released bool

	dev         Device
	format      wgpu.TextureFormat
	presentMode PresentMode
	width       int
	height      int
	configured  bool

	source string
	clear  wgpu.Color
	logger *zap.Logger
}

var _ SurfacePresenter = &surfacePresenter{}

// NewSurfacePresenter creates a presenter for a device created with NewSurfaceDevice.
// Panics if dev is nil or has no surface.
//
// Parameters:
//   - dev: the surface device
//   - width: the initial framebuffer width in pixels
//   - height: the initial framebuffer height in pixels
//   - options: functional options for presenter configuration
//
// Returns:
//   - SurfacePresenter: the presenter with its surface configured
func NewSurfacePresenter(dev Device, width, height int, options ...SurfacePresenterBuilderOption) SurfacePresenter {
	if dev == nil || dev.Surface() == nil {
		panic("renderer: NewSurfacePresenter requires a surface Device")
	}
	p := &surfacePresenter{
		dev:         dev,
		presentMode: PresentModeUncapped,
		clear:       wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	p.Resize(width, height)
	return p
}

func (p *surfacePresenter) Resize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if width <= 0 || height <= 0 || p.released {
		return
	}

	capabilities := p.dev.Surface().GetCapabilities(p.dev.Adapter())
	p.format = capabilities.Formats[0]
	p.dev.Surface().Configure(p.dev.Adapter(), p.dev.Device(), &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      p.format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: p.presentMode.toWGPU(),
		AlphaMode:   capabilities.AlphaModes[0],
	})
	p.width, p.height, p.configured = width, height, true
	p.logger.Debug("surface configured", zap.Int("width", width), zap.Int("height", height))
}

func (p *surfacePresenter) ClearColor() wgpu.Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clear
}

// meanColor averages the RGBA texels of the source output.
func (p *surfacePresenter) meanColor(snapshot pipeline.Snapshot) (wgpu.Color, error) {
	out := snapshot.Output(p.source)
	if out == nil {
		return wgpu.Color{}, fmt.Errorf("present %q: %w", p.source, common.ErrUnresolvedInput)
	}
	if out.Shape().Channels != 4 {
		return wgpu.Color{}, fmt.Errorf("present %q with %d channels: %w", p.source, out.Shape().Channels, common.ErrInvalidInitialData)
	}
	var sum [4]float64
	n := out.Shape().Elements()
	for i := 0; i < n; i++ {
		px := out.Texel(i)
		for c := range sum {
			sum[c] += float64(common.Clamp(px[c], 0, 1))
		}
	}
	if n == 0 {
		return p.clear, nil
	}
	return wgpu.Color{R: sum[0] / float64(n), G: sum[1] / float64(n), B: sum[2] / float64(n), A: sum[3] / float64(n)}, nil
}

func (p *surfacePresenter) Render(snapshot pipeline.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return fmt.Errorf("present: %w", common.ErrReleased)
	}
	if !p.configured {
		return nil
	}
	if p.source != "" {
		c, err := p.meanColor(snapshot)
		if err != nil {
			return err
		}
		p.clear = c
	}

	surfaceTexture, err := p.dev.Surface().GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create surface view: %w", err)
	}
	defer view.Release()

	encoder, err := p.dev.Device().CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: p.clear,
			},
		},
	})
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish command encoder: %w", err)
	}
	defer commandBuffer.Release()

	p.dev.Queue().Submit(commandBuffer)
	p.dev.Surface().Present()
	return nil
}

func (p *surfacePresenter) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	return nil
}
