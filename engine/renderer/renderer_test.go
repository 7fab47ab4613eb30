package renderer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct {
	label    string
	size     uint64
	usage    wgpu.BufferUsage
	writes   [][]byte
	released int
}

func (b *fakeBuffer) Release() {
	b.released++
}

type fakeBackend struct {
	created []*fakeBuffer
	fail    error
}

func (f *fakeBackend) createBuffer(label string, size uint64, usage wgpu.BufferUsage) (gpuBuffer, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	b := &fakeBuffer{label: label, size: size, usage: usage}
	f.created = append(f.created, b)
	return b, nil
}

func (f *fakeBackend) writeBuffer(buf gpuBuffer, data []byte) {
	b := buf.(*fakeBuffer)
	b.writes = append(b.writes, append([]byte(nil), data...))
}

// counting builds a pipeline with a self-dependent counter stage of n elements.
func counting(t *testing.T, n int) pipeline.Pipeline {
	t.Helper()
	s, err := stage.NewStage("count", common.Shape{Width: n, Height: 1, Channels: 1}, func(in stage.Inputs, _ stage.Values, _ clock.Frame, out *buffer.Buffer) error {
		for i, v := range in.Previous().Data() {
			out.Data()[i] = v + 1
		}
		return nil
	}, stage.WithSelfDependency(nil))
	require.NoError(t, err)
	p, err := pipeline.Build(pipeline.WithStage(s))
	require.NoError(t, err)
	return p
}

func TestGPUUploaderWritesEveryTick(t *testing.T) {
	p := counting(t, 3)
	backend := &fakeBackend{}
	u := newGPUUploader(backend, WithBinding("count", "count"), WithBufferUsage(wgpu.BufferUsageVertex))
	assert.Equal(t, []string{"count"}, u.Bindings())

	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, p.Step(clock.Frame{Tick: tick}))
		require.NoError(t, u.Render(p.Snapshot()))
	}

	require.Len(t, backend.created, 1)
	buf := backend.created[0]
	assert.Equal(t, "oxyflow count", buf.label)
	assert.Equal(t, uint64(12), buf.size)
	assert.Equal(t, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageVertex, buf.usage)
	require.Len(t, buf.writes, 3)
	assert.Equal(t, common.SliceToBytes([]float32{3, 3, 3}), buf.writes[2])
	assert.Equal(t, uint64(3), u.Uploads())
	assert.Nil(t, u.Buffer("count"), "fake buffers are not wgpu buffers")
}

func TestGPUUploaderRecreatesOnResize(t *testing.T) {
	backend := &fakeBackend{}
	u := newGPUUploader(backend, WithBinding("img"), WithBufferLabel("test"))

	small := pipeline.Snapshot{Outputs: map[string]*buffer.Buffer{"img": buffer.MustFromData(common.ImageShape(1, 1), make([]float32, 4))}}
	large := pipeline.Snapshot{Outputs: map[string]*buffer.Buffer{"img": buffer.MustFromData(common.ImageShape(2, 1), make([]float32, 8))}}
	require.NoError(t, u.Render(small))
	require.NoError(t, u.Render(large))

	require.Len(t, backend.created, 2)
	assert.Equal(t, 1, backend.created[0].released)
	assert.Equal(t, uint64(32), backend.created[1].size)
	assert.Equal(t, "test img", backend.created[1].label)
}

func TestGPUUploaderErrors(t *testing.T) {
	u := newGPUUploader(&fakeBackend{}, WithBinding("missing"))
	require.ErrorIs(t, u.Render(pipeline.Snapshot{}), common.ErrUnresolvedInput)

	boom := errors.New("out of memory")
	u = newGPUUploader(&fakeBackend{fail: boom}, WithBinding("x"))
	err := u.Render(pipeline.Snapshot{Outputs: map[string]*buffer.Buffer{"x": buffer.Scalar(1)}})
	require.ErrorIs(t, err, boom)
}

func TestGPUUploaderRelease(t *testing.T) {
	backend := &fakeBackend{}
	u := newGPUUploader(backend, WithBinding("x"))
	snap := pipeline.Snapshot{Outputs: map[string]*buffer.Buffer{"x": buffer.Scalar(1)}}
	require.NoError(t, u.Render(snap))

	require.NoError(t, u.Release())
	require.NoError(t, u.Release())
	assert.Equal(t, 1, backend.created[0].released)
	require.ErrorIs(t, u.Render(snap), common.ErrReleased)
}

func TestNewGPUUploaderRequiresDevice(t *testing.T) {
	assert.Panics(t, func() { NewGPUUploader(nil) })
}

func TestRecorderCopiesOutputs(t *testing.T) {
	p := counting(t, 2)
	r := NewRecorder(WithOutputs("count", "absent"), WithLimit(2))
	_, ok := r.Last()
	assert.False(t, ok)

	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, p.Step(clock.Frame{Tick: tick, Delta: 0.5}))
		require.NoError(t, r.Render(p.Snapshot()))
	}

	captures := r.Captures()
	require.Len(t, captures, 2)
	assert.Equal(t, uint64(2), captures[0].Tick)
	assert.Equal(t, []float32{2, 2}, captures[0].Output("count").Data())
	assert.Nil(t, captures[0].Output("absent"))
	assert.Equal(t, uint64(3), r.Renders())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, []float32{3, 3}, last.Output("count").Data())
	assert.NotSame(t, p.Output("count"), last.Output("count"))

	r.Reset()
	assert.Empty(t, r.Captures())
}

func TestRecorderWithoutOutputsCopiesEverything(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Render(pipeline.Snapshot{Outputs: map[string]*buffer.Buffer{"a": buffer.Scalar(1), "b": buffer.Scalar(2)}}))
	last, _ := r.Last()
	assert.Len(t, last.Outputs, 2)
}

func TestGroupStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	g := Group{
		RenderFunc(func(pipeline.Snapshot) error { calls++; return nil }),
		RenderFunc(func(pipeline.Snapshot) error { return boom }),
		RenderFunc(func(pipeline.Snapshot) error { calls++; return nil }),
	}
	require.ErrorIs(t, g.Render(pipeline.Snapshot{}), boom)
	assert.Equal(t, 1, calls)
	require.NoError(t, g.Release())
}

func TestPresentModeMapping(t *testing.T) {
	assert.Equal(t, wgpu.PresentModeFifo, PresentModeVSync.toWGPU())
	assert.Equal(t, wgpu.PresentModeImmediate, PresentModeUncapped.toWGPU())
}

func TestSurfacePresenterMeanColor(t *testing.T) {
	p := &surfacePresenter{source: "img"}
	img := buffer.MustFromData(common.ImageShape(2, 1), []float32{1, 0, 0, 1, 0, 0.5, 2, 1})
	c, err := p.meanColor(pipeline.Snapshot{Outputs: map[string]*buffer.Buffer{"img": img}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, c.R, 1e-6)
	assert.InDelta(t, 0.25, c.G, 1e-6)
	assert.InDelta(t, 0.5, c.B, 1e-6)
	assert.InDelta(t, 1, c.A, 1e-6)

	_, err = p.meanColor(pipeline.Snapshot{Outputs: map[string]*buffer.Buffer{"img": buffer.Scalar(1)}})
	require.ErrorIs(t, err, common.ErrInvalidInitialData)
	_, err = p.meanColor(pipeline.Snapshot{})
	require.ErrorIs(t, err, common.ErrUnresolvedInput)
}
