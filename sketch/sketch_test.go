package sketch

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/config"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/physics"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallEnv() Env {
	s := config.Default()
	s.FlowField.Count = 64
	s.FlowField.Workers = 2
	s.Physics.Bodies = 2
	s.Physics.Capacity = 8
	s.Composite.Width, s.Composite.Height = 16, 8
	s.Pipeline.FiniteCheck = true
	return Env{Settings: s}
}

// run builds the sketch pipeline and steps it n frames at 60 Hz.
func run(t *testing.T, sk *Sketch, n int) pipeline.Pipeline {
	t.Helper()
	require.NoError(t, sk.Pipeline.Build())
	for i := 1; i <= n; i++ {
		f := clock.Frame{Tick: uint64(i), Delta: 1.0 / 60, Elapsed: float32(i) / 60}
		if sk.OnTick != nil {
			sk.OnTick(f)
		}
		require.NoError(t, sk.Pipeline.Step(f))
	}
	return sk.Pipeline
}

func TestFlowFieldSketch(t *testing.T) {
	sk, err := FlowField(smallEnv())
	require.NoError(t, err)
	require.Len(t, sk.Outputs, 1)

	p := run(t, sk, 30)
	out := p.Output(sk.Outputs[0])
	require.NotNil(t, out)
	assert.Equal(t, common.GridShape(64, 4), out.Shape())
	_, finite := out.Finite()
	assert.True(t, finite)
	assert.Equal(t, "flowfield", p.Name())
}

func TestPhysicsSketch(t *testing.T) {
	sk, err := Physics(smallEnv())
	require.NoError(t, err)

	p := run(t, sk, 240)
	out := p.Output("bodies")
	require.NotNil(t, out)
	assert.Equal(t, physics.TransformChannels, out.Shape().Channels)

	// the first sphere is in slot 1 after the platform and never falls through it
	assert.GreaterOrEqual(t, out.Texel(1)[1], float32(1.4))

	fields := sk.Summary()
	require.Len(t, fields, 3)
	assert.Equal(t, int64(3), fields[0].Integer)
	assert.Positive(t, fields[1].Integer)
}

func TestCompositeSketch(t *testing.T) {
	env := smallEnv()
	env.Settings.Composite.Effects = []string{"displacement", "bloom", "gamma", "antialias"}
	sk, err := Composite(env)
	require.NoError(t, err)
	assert.Equal(t, "composite.antialias", sk.Image)

	p := run(t, sk, 3)
	assert.Equal(t, []string{"scene", "composite.displacement", "composite.bloom", "composite.gamma", "composite.antialias"}, p.Order())
	img := p.Output(sk.Image)
	require.NotNil(t, img)
	assert.Equal(t, float32(1), img.Texel(0)[3])
}

func TestCompositeSketchRejectsBadChains(t *testing.T) {
	env := smallEnv()
	env.Settings.Composite.Effects = []string{"gamma", "tint"}
	_, err := Composite(env)
	require.ErrorIs(t, err, common.ErrTerminalOrder)

	env.Settings.Composite.Effects = []string{"sparkle"}
	_, err = Composite(env)
	require.ErrorIs(t, err, common.ErrUnresolvedInput)
}

func TestEveryConfiguredEffectResolves(t *testing.T) {
	for _, name := range config.EffectNames {
		e, err := Effect(name, 1)
		require.NoError(t, err, name)
		assert.NotEmpty(t, e.Name())
	}
}
