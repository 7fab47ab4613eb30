package renderer

import "go.uber.org/zap"

// DeviceBuilderOption is a functional option used to configure a Device during construction.
type DeviceBuilderOption func(*device)

// WithDeviceLabel sets the debug label of the requested device.
func WithDeviceLabel(label string) DeviceBuilderOption {
	return func(d *device) {
		if label != "" {
			d.label = label
		}
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - DeviceBuilderOption: a function that applies the force software renderer option to a device
func WithForceSoftwareRenderer(force bool) DeviceBuilderOption {
	return func(d *device) {
		d.forceFallbackAdapter = force
	}
}

// WithMaxStorageBufferSize raises the storage buffer binding limit requested from the adapter,
// for pipelines with large particle buffers.
func WithMaxStorageBufferSize(size uint64) DeviceBuilderOption {
	return func(d *device) {
		d.maxStorageBufferSize = size
	}
}

// WithDeviceLogger sets the device logger. Defaults to zap.NewNop().
func WithDeviceLogger(logger *zap.Logger) DeviceBuilderOption {
	return func(d *device) {
		if logger != nil {
			d.logger = logger
		}
	}
}
