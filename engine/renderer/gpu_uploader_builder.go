package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// GPUUploaderBuilderOption is a functional option used to configure a GPUUploader during construction.
type GPUUploaderBuilderOption func(*gpuUploader)

// WithBinding binds stage outputs to GPU buffers. Names already bound are ignored.
//
// Parameters:
//   - names: the stage outputs to upload every tick
//
// Returns:
//   - GPUUploaderBuilderOption: a function that applies the binding option to an uploader
func WithBinding(names ...string) GPUUploaderBuilderOption {
	return func(u *gpuUploader) {
		for _, name := range names {
			u.bind(name)
		}
	}
}

// WithBufferUsage adds usage flags to the created buffers, for example wgpu.BufferUsageVertex.
// Storage and CopyDst are always set.
func WithBufferUsage(usage wgpu.BufferUsage) GPUUploaderBuilderOption {
	return func(u *gpuUploader) {
		u.usage |= usage
	}
}

// WithBufferLabel sets the label prefix of the created buffers. Defaults to "oxyflow".
func WithBufferLabel(label string) GPUUploaderBuilderOption {
	return func(u *gpuUploader) {
		if label != "" {
			u.label = label
		}
	}
}

// WithUploaderLogger sets the uploader logger. Defaults to zap.NewNop().
func WithUploaderLogger(logger *zap.Logger) GPUUploaderBuilderOption {
	return func(u *gpuUploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}
