package particles

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFlowField(t *testing.T, base *buffer.Buffer, options ...FlowFieldBuilderOption) (FlowField, pipeline.Pipeline) {
	t.Helper()
	ff, err := NewFlowField(base, options...)
	require.NoError(t, err)
	p, err := pipeline.Build(ff.PipelineOptions()...)
	require.NoError(t, err)
	return ff, p
}

func TestBaseFromPositions(t *testing.T) {
	positions := SpherePositions(10, 3)
	base := BaseFromPositions(positions, 7)
	require.NotNil(t, base)
	assert.Equal(t, common.Shape{Width: 4, Height: 4, Channels: Channels}, base.Shape())

	for i := 0; i < base.Shape().Elements(); i++ {
		px := base.Texel(i)
		p := positions[i%len(positions)]
		assert.Equal(t, []float32{p[0], p[1], p[2]}, px[:3])
		assert.GreaterOrEqual(t, px[3], float32(0))
		assert.Less(t, px[3], float32(1))
		assert.InDelta(t, 3, mgl32.Vec3{px[0], px[1], px[2]}.Len(), 1e-4)
	}
	assert.Equal(t, base.Data(), BaseFromPositions(positions, 7).Data())
	assert.Nil(t, BaseFromPositions(nil, 1))
}

func TestFlowFieldRejectsWrongChannels(t *testing.T) {
	b, err := buffer.NewBuffer(common.Shape{Width: 2, Height: 2, Channels: 3})
	require.NoError(t, err)
	_, err = NewFlowField(b)
	require.ErrorIs(t, err, common.ErrInvalidInitialData)
}

func TestFirstTickReadsBase(t *testing.T) {
	base := buffer.MustFromData(common.Shape{Width: 1, Height: 1, Channels: 4}, []float32{1, 2, 3, 0})
	ff, p := buildFlowField(t, base)
	require.NoError(t, ff.Stage().Params().SetFloat(ParamStrength, 0))

	require.NoError(t, p.Step(clock.Frame{Tick: 1, Delta: 0.5}))
	assert.Equal(t, []float32{1, 2, 3, 0.15}, p.Output("flowfield").Data())
}

func TestLifetimeWrapsToBase(t *testing.T) {
	base := buffer.MustFromData(common.Shape{Width: 1, Height: 1, Channels: 4}, []float32{0, 1, 0, 0.95})
	ff, p := buildFlowField(t, base, WithSeed(3))
	require.NoError(t, ff.Stage().Params().SetFloat(ParamInfluence, 1))

	f := clock.Frame{Delta: 0.5, Elapsed: 0.5}
	require.NoError(t, p.Step(f))
	moved := p.Output("flowfield").Clone().Data()
	assert.InDelta(t, 1.1, moved[3], 1e-5)
	assert.NotEqual(t, []float32{0, 1, 0}, moved[:3])

	require.NoError(t, p.Step(f))
	out := p.Output("flowfield").Data()
	assert.Equal(t, []float32{0, 1, 0}, out[:3])
	assert.InDelta(t, 0.1, out[3], 1e-5)
}

func TestDriftWithoutNoise(t *testing.T) {
	base := buffer.MustFromData(common.Shape{Width: 1, Height: 1, Channels: 4}, []float32{0, 0, 0, 0})
	ff, p := buildFlowField(t, base)
	params := ff.Stage().Params()
	require.NoError(t, params.SetFloat(ParamStrength, 0))
	require.NoError(t, params.SetFloat(ParamLifetimeRate, 0))
	require.NoError(t, params.SetVec3(ParamDrift, mgl32.Vec3{1, 0, -2}))

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Step(clock.Frame{Delta: 0.25}))
	}
	assert.InDeltaSlice(t, []float32{1, 0, -2, 0}, p.Output("flowfield").Data(), 1e-6)
}

func TestWorkersMatchSerialUpdate(t *testing.T) {
	positions := SpherePositions(500, 3)
	serialFF, serial := buildFlowField(t, BaseFromPositions(positions, 1), WithSeed(42))
	parallelFF, parallel := buildFlowField(t, BaseFromPositions(positions, 1), WithSeed(42), WithWorkers(4))
	assert.Equal(t, serialFF.Count(), parallelFF.Count())

	for i := 1; i <= 20; i++ {
		f := clock.Frame{Tick: uint64(i), Delta: 1.0 / 60, Elapsed: float32(i) / 60}
		require.NoError(t, serial.Step(f))
		require.NoError(t, parallel.Step(f))
	}
	assert.Equal(t, serial.Output("flowfield").Data(), parallel.Output("flowfield").Data())
}

func TestSeedsChangeTheField(t *testing.T) {
	positions := SpherePositions(64, 3)
	_, a := buildFlowField(t, BaseFromPositions(positions, 1), WithSeed(1))
	_, b := buildFlowField(t, BaseFromPositions(positions, 1), WithSeed(2))
	f := clock.Frame{Delta: 1.0 / 30, Elapsed: 1}
	require.NoError(t, a.Step(f))
	require.NoError(t, b.Step(f))
	assert.NotEqual(t, a.Output("flowfield").Data(), b.Output("flowfield").Data())
}

func TestCustomNames(t *testing.T) {
	base := BaseFromPositions(SpherePositions(4, 1), 0)
	ff, p := buildFlowField(t, base, WithName("dust"), WithBaseName("dust.rest"))
	assert.Equal(t, "dust.rest", ff.BaseName())
	assert.Equal(t, []string{"dust"}, p.Order())
	require.NoError(t, p.Step(clock.Frame{Delta: 0.01}))
}
