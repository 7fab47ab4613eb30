package compositor

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/pipeline"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var imageShape = common.ImageShape(4, 4)

func solid(t *testing.T, c rgba) *buffer.Buffer {
	t.Helper()
	b, err := buffer.NewBuffer(imageShape)
	require.NoError(t, err)
	for i := 0; i < imageShape.Elements(); i++ {
		store(b, i, c)
	}
	return b
}

// run builds a pipeline with an external source image and the chain, steps it once and returns the result.
func run(t *testing.T, src *buffer.Buffer, effects ...Effect) (*buffer.Buffer, Chain, pipeline.Pipeline) {
	t.Helper()
	c := NewChain("scene", src.Shape(), WithExternalSource()).Add(effects...)
	options, err := c.PipelineOptions()
	require.NoError(t, err)
	p, err := pipeline.Build(append(options, pipeline.WithExternal("scene", src))...)
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{Tick: 1, Delta: 1.0 / 60}))
	out := p.Output(c.Output())
	require.NotNil(t, out)
	return out, c, p
}

func TestGammaCorrection(t *testing.T) {
	out, _, _ := run(t, solid(t, rgba{0.5, 0.001, 1, 0.25}), NewGammaCorrection())
	px := out.Texel(0)
	assert.InDelta(t, 0.7354, px[0], 1e-3)
	assert.InDelta(t, 0.01292, px[1], 1e-5)
	assert.InDelta(t, 1, px[2], 1e-3)
	assert.Equal(t, float32(0.25), px[3])
}

func TestTintAndDisabledPassThrough(t *testing.T) {
	src := solid(t, rgba{0.2, 0.2, 0.2, 1})
	c := NewChain("scene", imageShape, WithExternalSource(), WithName("post")).Add(NewTint(), NewRGBShift())
	stages, err := c.Stages()
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "post.tint", stages[0].Name())
	assert.Equal(t, "post.rgbshift", c.Output())

	require.NoError(t, stages[0].Params().SetVec3("tint", mgl32.Vec3{0.1, 0, -0.2}))
	require.NoError(t, stages[1].Params().SetBool(ParamEnabled, false))

	p, err := pipeline.Build(pipeline.WithStage(stages...), pipeline.WithExternal("scene", src))
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{Tick: 1}))
	assert.InDeltaSlice(t, []float32{0.3, 0.2, 0, 1}, p.Output(c.Output()).Texel(5), 1e-6)
}

func TestTerminalOrdering(t *testing.T) {
	_, err := NewChain("scene", imageShape).Add(NewGammaCorrection(), NewTint()).Stages()
	require.ErrorIs(t, err, common.ErrTerminalOrder)
	var se *common.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "composite.tint", se.Stage)

	_, err = NewChain("scene", imageShape).Add(NewGammaCorrection(), Named("gamma2", NewGammaCorrection())).Stages()
	require.ErrorIs(t, err, common.ErrTerminalOrder)

	stages, err := NewChain("scene", imageShape).Add(NewBloom(), NewGammaCorrection(), NewAntialias()).Stages()
	require.NoError(t, err)
	assert.Len(t, stages, 3)

	_, err = NewChain("scene", imageShape).Add(NewAntialias(), NewTint()).Stages()
	require.NoError(t, err)
}

func TestStagesAreBuiltOnce(t *testing.T) {
	c := NewChain("scene", imageShape).Add(NewTint())
	a, err := c.Stages()
	require.NoError(t, err)
	b, err := c.Stages()
	require.NoError(t, err)
	assert.Same(t, a[0], b[0])
}

func TestEmptyChainOutputsInput(t *testing.T) {
	assert.Equal(t, "scene", NewChain("scene", imageShape).Output())
}

func TestRGBShiftWithoutAmountIsIdentity(t *testing.T) {
	src := solid(t, rgba{0.1, 0.5, 0.9, 1})
	store(src, 6, rgba{0.7, 0.2, 0.3, 1})
	c := NewChain("scene", imageShape, WithExternalSource()).Add(NewRGBShift())
	stages, err := c.Stages()
	require.NoError(t, err)
	require.NoError(t, stages[0].Params().SetFloat("amount", 0))

	p, err := pipeline.Build(pipeline.WithStage(stages...), pipeline.WithExternal("scene", src))
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{Tick: 1}))
	assert.InDeltaSlice(t, src.Data(), p.Output(c.Output()).Data(), 1e-5)
}

func TestRGBShiftSplitsChannels(t *testing.T) {
	src := solid(t, rgba{0, 0, 0, 1})
	c := NewChain("scene", imageShape, WithExternalSource()).Add(NewRGBShift())
	stages, err := c.Stages()
	require.NoError(t, err)
	// one texel to the left, at 4 texels wide
	require.NoError(t, stages[0].Params().SetFloat("amount", 0.25))
	store(src, 5, rgba{1, 1, 1, 1})

	p, err := pipeline.Build(pipeline.WithStage(stages...), pipeline.WithExternal("scene", src))
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{Tick: 1}))
	out := p.Output(c.Output())

	assert.InDeltaSlice(t, []float32{0, 1, 0, 1}, out.Texel(5), 1e-5)
	assert.InDelta(t, 1, out.Texel(4)[0], 1e-5)
	assert.InDelta(t, 1, out.Texel(6)[2], 1e-5)
}

func TestBloomBrightensAroundHighlights(t *testing.T) {
	src := solid(t, rgba{0.2, 0.2, 0.2, 1})
	flat, _, _ := run(t, src, NewBloom())
	assert.InDeltaSlice(t, src.Data(), flat.Data(), 1e-6)

	store(src, 5, rgba{1, 1, 1, 1})
	glow, _, _ := run(t, src, NewBloom())
	assert.Greater(t, glow.Texel(6)[0], float32(0.2))
	assert.Greater(t, glow.Texel(5)[0], float32(1))
	assert.Equal(t, float32(1), glow.Texel(6)[3])
}

func TestDisplacementWithFlatNormals(t *testing.T) {
	src := solid(t, rgba{0.1, 0.4, 0.6, 1})
	normals := solid(t, rgba{0.5, 0.5, 1, 1})

	c := NewChain("scene", imageShape, WithExternalSource()).Add(NewDisplacement("normals"))
	options, err := c.PipelineOptions()
	require.NoError(t, err)
	options = append(options, pipeline.WithExternal("scene", src), pipeline.WithExternal("normals", normals))
	p, err := pipeline.Build(options...)
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{Tick: 1}))
	assert.InDeltaSlice(t, src.Data(), p.Output(c.Output()).Data(), 1e-5)

	// a normal facing the light adds the lightness
	require.NoError(t, p.SetExternal("normals", solid(t, rgba{0.5 - 0.3536, 0.5 + 0.3536, 0.5, 1})))
	require.NoError(t, p.Step(clock.Frame{Tick: 2}))
	assert.Greater(t, p.Output(c.Output()).Texel(0)[0], float32(1))
}

func TestDisplacementNeedsNormalMap(t *testing.T) {
	c := NewChain("scene", imageShape, WithExternalSource()).Add(NewDisplacement("normals"))
	options, err := c.PipelineOptions()
	require.NoError(t, err)
	_, err = pipeline.Build(append(options, pipeline.WithExternal("scene", solid(t, rgba{})))...)
	require.ErrorIs(t, err, common.ErrUnresolvedInput)
}

func TestGlitchIsDeterministic(t *testing.T) {
	src := solid(t, rgba{0, 0, 0, 1})
	for i := 0; i < imageShape.Elements(); i++ {
		store(src, i, rgba{float32(i) / 16, 0.5, 1 - float32(i)/16, 1})
	}
	apply := func(tick uint64, wild bool) *buffer.Buffer {
		c := NewChain("scene", imageShape, WithExternalSource()).Add(NewGlitch(9))
		stages, err := c.Stages()
		require.NoError(t, err)
		require.NoError(t, stages[0].Params().SetBool("goWild", wild))
		require.NoError(t, stages[0].Params().SetInt("interval", 100))
		p, err := pipeline.Build(pipeline.WithStage(stages...), pipeline.WithExternal("scene", src))
		require.NoError(t, err)
		require.NoError(t, p.Step(clock.Frame{Tick: tick}))
		return p.Output(c.Output()).Clone()
	}

	assert.Equal(t, src.Data(), apply(50, false).Data())
	assert.Equal(t, apply(7, true).Data(), apply(7, true).Data())
	assert.Equal(t, apply(100, false).Data(), apply(100, false).Data())
}

func TestDotScreenIsGrayscale(t *testing.T) {
	out, _, _ := run(t, solid(t, rgba{0.3, 0.6, 0.9, 0.5}), NewDotScreen())
	for i := 0; i < imageShape.Elements(); i++ {
		px := out.Texel(i)
		assert.Equal(t, px[0], px[1])
		assert.Equal(t, px[1], px[2])
		assert.Equal(t, float32(0.5), px[3])
	}
}

func TestAntialiasSmoothsEdgesOnly(t *testing.T) {
	src := solid(t, rgba{0.5, 0.5, 0.5, 1})
	flat, _, _ := run(t, src, NewAntialias())
	assert.Equal(t, src.Data(), flat.Data())

	store(src, 5, rgba{1, 1, 1, 1})
	edged, _, _ := run(t, src, NewAntialias())
	assert.InDelta(t, 0.75, edged.Texel(5)[0], 1e-6)
	assert.Equal(t, float32(0.5), edged.Texel(15)[0])
}

func TestChainOverStageSource(t *testing.T) {
	source, err := stage.NewStage("scene", imageShape, func(_ stage.Inputs, _ stage.Values, _ clock.Frame, out *buffer.Buffer) error {
		out.Fill(0.25)
		return nil
	})
	require.NoError(t, err)

	c := NewChain("scene", imageShape).Add(NewTint(), NewGammaCorrection(), NewAntialias())
	options, err := c.PipelineOptions()
	require.NoError(t, err)
	p, err := pipeline.Build(append(options, pipeline.WithStage(source))...)
	require.NoError(t, err)
	assert.Equal(t, []string{"scene", "composite.tint", "composite.gamma", "composite.antialias"}, p.Order())

	require.NoError(t, p.Step(clock.Frame{Tick: 1}))
	assert.InDelta(t, 0.5370, p.Output(c.Output()).Texel(0)[0], 1e-3)
}
