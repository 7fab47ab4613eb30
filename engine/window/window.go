package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Window is the host frame driver: a platform window whose message loop calls the update callback
// once per iteration, plus the surface descriptor a WebGPU device presents into.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// RequestClose asks the message loop to stop after the current iteration. Safe from any goroutine.
	RequestClose()

	// Close closes the window and releases platform resources. Safe to call more than once.
	//
	// Returns:
	//   - error: error if the platform close fails
	Close() error

	// ProcessMessages runs the window message loop on the calling goroutine, which must be the one
	// that created the window. Blocks until the window is closed or RequestClose is called.
	ProcessMessages()

	// Width returns the current framebuffer width in pixels.
	Width() int

	// Height returns the current framebuffer height in pixels.
	Height() int
}

// platform is the windowing system behind an engineWindow.
type platform interface {
	pollEvents()
	shouldClose() bool
	requestClose()
	surfaceDescriptor() *wgpu.SurfaceDescriptor
	destroy() error
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu sync.Mutex

	title     string
	maxWidth  int
	maxHeight int
	minWidth  int
	minHeight int
	width     int
	height    int
	logger    *zap.Logger

	platform platform
	closeReq bool
	closed   bool

	onUpdate func()
	onResize func(width, height int)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a GLFW window with the specified options. The calling goroutine is
// locked to its OS thread and must run ProcessMessages.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: when GLFW cannot be initialized or the window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := newEngineWindow(options...)
	p, err := newGLFWPlatform(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	w.platform = p
	w.logger.Info("window opened", zap.String("title", w.title), zap.Int("width", w.width), zap.Int("height", w.height))
	return w, nil
}

func newEngineWindow(options ...WindowBuilderOption) *engineWindow {
	w := &engineWindow{
		title:     "oxyflow",
		maxWidth:  1600,
		maxHeight: 1200,
		minWidth:  600,
		minHeight: 200,
		width:     1280,
		height:    720,
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		opt(w)
	}
	w.width, w.height = w.clampSize(w.width, w.height)
	return w
}

// clampSize bounds a requested size by the configured limits. Non-positive limits are ignored.
func (w *engineWindow) clampSize(width, height int) (int, int) {
	if w.minWidth > 0 {
		width = max(width, w.minWidth)
	}
	if w.maxWidth > 0 {
		width = min(width, w.maxWidth)
	}
	if w.minHeight > 0 {
		height = max(height, w.minHeight)
	}
	if w.maxHeight > 0 {
		height = min(height, w.maxHeight)
	}
	return width, height
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = callback
}

// resized is called by the platform with the new framebuffer size.
func (w *engineWindow) resized(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	cb := w.onResize
	w.mu.Unlock()
	w.logger.Debug("window resized", zap.Int("width", width), zap.Int("height", height))
	if cb != nil {
		cb(width, height)
	}
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.platform == nil {
		return nil
	}
	return w.platform.surfaceDescriptor()
}

func (w *engineWindow) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.platform != nil && !w.closed && !w.closeReq && !w.platform.shouldClose()
}

func (w *engineWindow) RequestClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeReq = true
}

func (w *engineWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.platform == nil {
		return nil
	}
	w.closed = true
	w.platform.requestClose()
	return w.platform.destroy()
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		w.platform.pollEvents()
		if !w.IsRunning() {
			break
		}

		w.mu.Lock()
		cb := w.onUpdate
		w.mu.Unlock()
		if cb != nil {
			cb()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}
