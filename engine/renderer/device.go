package renderer

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// Device is a WebGPU adapter, device and queue shared by GPU-backed renderers.
type Device interface {
	// Device returns the underlying WebGPU device.
	Device() *wgpu.Device

	// Queue returns the device queue used for buffer writes and submissions.
	Queue() *wgpu.Queue

	// Adapter returns the adapter the device was requested from.
	Adapter() *wgpu.Adapter

	// Surface returns the presentation surface, or nil for a headless device.
	Surface() *wgpu.Surface

	// Release frees the device, surface, adapter and instance. Safe to call more than once.
	Release()
}

// device implements the Device interface.
type device struct {
	mu       sync.Mutex
	released bool

	label                string
	forceFallbackAdapter bool
	maxStorageBufferSize uint64
	logger               *zap.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface
}

var _ Device = &device{}

// NewHeadlessDevice requests a WebGPU adapter and device without a presentation surface.
//
// Parameters:
//   - options: functional options for device configuration
//
// Returns:
//   - Device: the initialized device
//   - error: when no adapter or device can be obtained
func NewHeadlessDevice(options ...DeviceBuilderOption) (Device, error) {
	return newDevice(nil, options...)
}

// NewSurfaceDevice creates a surface from the descriptor and requests an adapter compatible with it.
// The calling goroutine is locked to its OS thread, as required by most windowing systems.
//
// Parameters:
//   - descriptor: the platform surface descriptor, typically from window.Window.SurfaceDescriptor
//   - options: functional options for device configuration
//
// Returns:
//   - Device: the initialized device
//   - error: when no adapter or device can be obtained
func NewSurfaceDevice(descriptor *wgpu.SurfaceDescriptor, options ...DeviceBuilderOption) (Device, error) {
	if descriptor == nil {
		panic("renderer: NewSurfaceDevice requires a surface descriptor")
	}
	runtime.LockOSThread()
	return newDevice(descriptor, options...)
}

func newDevice(descriptor *wgpu.SurfaceDescriptor, options ...DeviceBuilderOption) (Device, error) {
	d := &device{
		label:  "oxyflow device",
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	if descriptor != nil {
		d.surface = d.instance.CreateSurface(descriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	if d.maxStorageBufferSize > 0 {
		limits.MaxStorageBufferBindingSize = d.maxStorageBufferSize
		limits.MaxBufferSize = max(limits.MaxBufferSize, d.maxStorageBufferSize)
	}

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: d.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	d.logger.Info("webgpu device ready",
		zap.String("label", d.label),
		zap.Bool("surface", d.surface != nil),
		zap.Bool("fallback", d.forceFallbackAdapter),
	)
	return d, nil
}

func (d *device) Device() *wgpu.Device {
	return d.device
}

func (d *device) Queue() *wgpu.Queue {
	return d.queue
}

func (d *device) Adapter() *wgpu.Adapter {
	return d.adapter
}

func (d *device) Surface() *wgpu.Surface {
	return d.surface
}

func (d *device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true

	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}
