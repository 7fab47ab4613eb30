package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// GPUUploader is a Renderer that mirrors bound stage outputs into WebGPU storage buffers.
// Each bound output gets one buffer, created on first use and recreated when the output size
// changes; the current output is written through the device queue on every Render.
type GPUUploader interface {
	Renderer

	// Bindings returns the bound output names in upload order.
	Bindings() []string

	// Buffer returns the GPU buffer mirroring the named output.
	//
	// Parameters:
	//   - name: the bound output name
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer, or nil before the first upload or for unbound names
	Buffer(name string) *wgpu.Buffer

	// Uploads returns the number of buffer writes issued.
	Uploads() uint64
}

// gpuBuffer is the part of *wgpu.Buffer the uploader manages.
type gpuBuffer interface {
	Release()
}

// uploadBackend creates and fills device buffers.
type uploadBackend interface {
	createBuffer(label string, size uint64, usage wgpu.BufferUsage) (gpuBuffer, error)
	writeBuffer(buf gpuBuffer, data []byte)
}

// wgpuUploadBackend issues the uploads on a real device queue.
type wgpuUploadBackend struct {
	device *wgpu.Device
	queue  *wgpu.Queue
}

func (b *wgpuUploadBackend) createBuffer(label string, size uint64, usage wgpu.BufferUsage) (gpuBuffer, error) {
	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage,
		MappedAtCreation: false,
	})
}

func (b *wgpuUploadBackend) writeBuffer(buf gpuBuffer, data []byte) {
	b.queue.WriteBuffer(buf.(*wgpu.Buffer), 0, data)
}

type binding struct {
	name string
	buf  gpuBuffer
	size uint64
}

// gpuUploader implements the GPUUploader interface.
type gpuUploader struct {
	mu       sync.Mutex
	released bool

	backend  uploadBackend
	usage    wgpu.BufferUsage
	label    string
	logger   *zap.Logger
	bindings []*binding
	uploads  uint64
}

var _ GPUUploader = &gpuUploader{}

// NewGPUUploader creates an uploader writing into buffers on the given device. Panics if dev is nil.
//
// Parameters:
//   - dev: the device owning the buffers
//   - options: functional options for uploader configuration, WithBinding selects the outputs
//
// Returns:
//   - GPUUploader: the new uploader
func NewGPUUploader(dev Device, options ...GPUUploaderBuilderOption) GPUUploader {
	if dev == nil {
		panic("renderer: NewGPUUploader requires a Device")
	}
	return newGPUUploader(&wgpuUploadBackend{device: dev.Device(), queue: dev.Queue()}, options...)
}

func newGPUUploader(backend uploadBackend, options ...GPUUploaderBuilderOption) *gpuUploader {
	u := &gpuUploader{
		backend: backend,
		usage:   wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		label:   "oxyflow",
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(u)
	}
	return u
}

func (u *gpuUploader) bind(name string) {
	for _, b := range u.bindings {
		if b.name == name {
			return
		}
	}
	u.bindings = append(u.bindings, &binding{name: name})
}

func (u *gpuUploader) Render(snapshot pipeline.Snapshot) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.released {
		return fmt.Errorf("gpu upload: %w", common.ErrReleased)
	}

	for _, b := range u.bindings {
		out := snapshot.Output(b.name)
		if out == nil {
			return fmt.Errorf("gpu upload %q: %w", b.name, common.ErrUnresolvedInput)
		}
		data := common.SliceToBytes(out.Data())
		size := uint64(len(data))
		if b.buf == nil || b.size != size {
			if b.buf != nil {
				b.buf.Release()
				b.buf = nil
			}
			buf, err := u.backend.createBuffer(u.label+" "+b.name, size, u.usage)
			if err != nil {
				return fmt.Errorf("gpu upload %q: create buffer: %w", b.name, err)
			}
			b.buf, b.size = buf, size
			u.logger.Debug("gpu buffer created", zap.String("output", b.name), zap.Uint64("bytes", size))
		}
		u.backend.writeBuffer(b.buf, data)
		u.uploads++
	}
	return nil
}

func (u *gpuUploader) Bindings() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	names := make([]string, len(u.bindings))
	for i, b := range u.bindings {
		names[i] = b.name
	}
	return names
}

func (u *gpuUploader) Buffer(name string) *wgpu.Buffer {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, b := range u.bindings {
		if b.name == name {
			buf, _ := b.buf.(*wgpu.Buffer)
			return buf
		}
	}
	return nil
}

func (u *gpuUploader) Uploads() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploads
}

func (u *gpuUploader) Release() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.released {
		return nil
	}
	u.released = true

	var err error
	for _, b := range u.bindings {
		if b.buf == nil {
			continue
		}
		err = multierr.Append(err, releaseBuffer(b.name, b.buf))
		b.buf = nil
	}
	return err
}

func releaseBuffer(name string, buf gpuBuffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("release gpu buffer %q: %v", name, r)
		}
	}()
	buf.Release()
	return nil
}
