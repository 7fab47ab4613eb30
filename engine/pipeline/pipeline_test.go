package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

var scalarShape = common.Shape{Width: 1, Height: 1, Channels: 1}

func counterStage(t *testing.T, name string) stage.Stage {
	t.Helper()
	s, err := stage.NewStage(name, scalarShape, func(in stage.Inputs, _ stage.Values, _ clock.Frame, out *buffer.Buffer) error {
		out.Data()[0] = in.Previous().Data()[0] + 1
		return nil
	}, stage.WithSelfDependency(buffer.Scalar(0)))
	require.NoError(t, err)
	return s
}

func doublerStage(t *testing.T, name, from string) stage.Stage {
	t.Helper()
	s, err := stage.NewStage(name, scalarShape, func(in stage.Inputs, _ stage.Values, _ clock.Frame, out *buffer.Buffer) error {
		src, err := in.Stage(from)
		if err != nil {
			return err
		}
		out.Data()[0] = src.Data()[0] * 2
		return nil
	}, stage.WithInputs(stage.FromStage(from)))
	require.NoError(t, err)
	return s
}

func passthrough(t *testing.T, name string, inputs ...stage.Input) stage.Stage {
	t.Helper()
	s, err := stage.NewStage(name, scalarShape, func(stage.Inputs, stage.Values, clock.Frame, *buffer.Buffer) error {
		return nil
	}, stage.WithInputs(inputs...))
	require.NoError(t, err)
	return s
}

func TestCounterAndDoubler(t *testing.T) {
	// Registered downstream first so the order has to come from the dependency.
	p, err := Build(WithStage(doublerStage(t, "b", "a"), counterStage(t, "a")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Order())

	var as, bs []float32
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Step(clock.Frame{Tick: uint64(i + 1), Delta: 1.0 / 60}))
		as = append(as, p.Output("a").Data()[0])
		bs = append(bs, p.Output("b").Data()[0])
	}
	assert.Equal(t, []float32{1, 2, 3}, as)
	assert.Equal(t, []float32{2, 4, 6}, bs)
	assert.Equal(t, uint64(3), p.Ticks())
	assert.Equal(t, StateRunning, p.State())
}

func TestEveryStageEvaluatedOncePerStep(t *testing.T) {
	a := counterStage(t, "a")
	b := doublerStage(t, "b", "a")
	c := doublerStage(t, "c", "b")
	d := passthrough(t, "d")
	p, err := Build(WithStage(c, d, b, a))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Step(clock.Frame{}))
	}
	for _, s := range []stage.Stage{a, b, c, d} {
		assert.Equal(t, uint64(5), s.Evaluations(), s.Name())
	}
	assert.Equal(t, float32(20), p.Output("c").Data()[0])
	assert.Equal(t, []string{"d", "a", "b", "c"}, p.Order())
}

func TestSelfDependentPoolPingPongs(t *testing.T) {
	a := counterStage(t, "a")
	p, err := Build(WithStage(a))
	require.NoError(t, err)

	first := a.Output()
	require.NoError(t, p.Step(clock.Frame{}))
	second := a.Output()
	assert.NotSame(t, first, second)
	require.NoError(t, p.Step(clock.Frame{}))
	assert.Same(t, first, a.Output())
	assert.Equal(t, uint64(2), a.Pool().Swaps())
}

func TestOrderIsStableAcrossRebuilds(t *testing.T) {
	build := func() []string {
		p, err := Build(WithStage(
			passthrough(t, "x"),
			passthrough(t, "y", stage.FromStage("x")),
			passthrough(t, "z"),
			passthrough(t, "w", stage.FromStage("z"), stage.FromStage("y")),
		))
		require.NoError(t, err)
		return p.Order()
	}
	want := build()
	assert.Equal(t, []string{"x", "y", "z", "w"}, want)
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, build())
	}
}

func TestCycleIsRejected(t *testing.T) {
	p := NewPipeline(WithStage(
		passthrough(t, "a", stage.FromStage("b")),
		passthrough(t, "b", stage.FromStage("a")),
	))
	err := p.Build()
	require.ErrorIs(t, err, common.ErrCyclicDependency)

	var se *common.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"a", "b", "a"}, se.Path)
	assert.Equal(t, StateUninitialized, p.State())
	require.ErrorIs(t, p.Step(clock.Frame{}), common.ErrInvalidSequencing)
}

func TestSelfReadWithoutPoolIsACycle(t *testing.T) {
	_, err := Build(WithStage(passthrough(t, "a", stage.FromStage("a"))))
	require.ErrorIs(t, err, common.ErrCyclicDependency)
}

func TestUnresolvedInputs(t *testing.T) {
	_, err := Build(WithStage(passthrough(t, "a", stage.FromStage("ghost"))))
	require.ErrorIs(t, err, common.ErrUnresolvedInput)

	var se *common.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a", se.Stage)

	_, err = Build(WithStage(passthrough(t, "a", stage.FromExternal("normals"))))
	require.ErrorIs(t, err, common.ErrUnresolvedInput)
}

func TestDuplicateStageName(t *testing.T) {
	_, err := Build(WithStage(passthrough(t, "a"), passthrough(t, "a")))
	require.ErrorIs(t, err, common.ErrDuplicateStage)
}

func TestBuildTwiceIsInvalidSequencing(t *testing.T) {
	p, err := Build(WithStage(passthrough(t, "a")))
	require.NoError(t, err)
	require.ErrorIs(t, p.Build(), common.ErrInvalidSequencing)
}

func TestTeardown(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := counterStage(t, "a")
	p, err := Build(WithStage(a), WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{}))

	require.NoError(t, p.Teardown())
	require.NoError(t, p.Teardown())
	assert.Equal(t, StateTornDown, p.State())
	assert.True(t, a.Pool().Released())
	assert.Nil(t, p.Output("a"))
	assert.Empty(t, p.Snapshot().Outputs)
	assert.Equal(t, 1, logs.FilterMessage("pipeline torn down").Len())

	require.ErrorIs(t, p.Step(clock.Frame{}), common.ErrInvalidSequencing)
}

func TestResolverRejectsStaleProducer(t *testing.T) {
	a := counterStage(t, "a")
	b := doublerStage(t, "b", "a")
	p, err := Build(WithStage(b, a))
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{Tick: 1}))

	impl := p.(*pipeline)
	impl.ticks++
	r := &resolver{p: impl}

	_, err = b.Evaluate(clock.Frame{Tick: 2}, r)
	require.ErrorIs(t, err, common.ErrDependencyNotReady)
	var se *common.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b", se.Stage)

	impl.evaluatedAt[impl.byName["a"]] = impl.ticks
	out, err := b.Evaluate(clock.Frame{Tick: 2}, r)
	require.NoError(t, err)
	assert.Equal(t, float32(2), out.Data()[0])
}

func TestSkipLeavesOutputUnchanged(t *testing.T) {
	calls := 0
	s, err := stage.NewStage("sometimes", scalarShape, func(in stage.Inputs, _ stage.Values, _ clock.Frame, out *buffer.Buffer) error {
		calls++
		if calls%2 == 0 {
			return stage.ErrSkip
		}
		out.Data()[0] = in.Previous().Data()[0] + 1
		return nil
	}, stage.WithSelfDependency(nil))
	require.NoError(t, err)

	p, err := Build(WithStage(s))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Step(clock.Frame{}))
	}
	assert.Equal(t, float32(2), p.Output("sometimes").Data()[0])
	assert.Equal(t, uint64(2), s.Pool().Swaps())
}

func TestStageErrorAbortsStep(t *testing.T) {
	boom := errors.New("boom")
	bad, err := stage.NewStage("bad", scalarShape, func(stage.Inputs, stage.Values, clock.Frame, *buffer.Buffer) error {
		return boom
	})
	require.NoError(t, err)
	after := passthrough(t, "after", stage.FromStage("bad"))

	p, err := Build(WithStage(bad, after))
	require.NoError(t, err)
	err = p.Step(clock.Frame{})
	require.ErrorIs(t, err, boom)

	var se *common.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad", se.Stage)
	assert.Equal(t, uint64(0), after.Evaluations())
}

func TestFiniteCheck(t *testing.T) {
	nan, err := stage.NewStage("nan", scalarShape, func(_ stage.Inputs, _ stage.Values, _ clock.Frame, out *buffer.Buffer) error {
		zero := float32(0)
		out.Data()[0] = zero / zero
		return nil
	})
	require.NoError(t, err)

	p, err := Build(WithStage(nan), WithFiniteCheck(true))
	require.NoError(t, err)
	require.ErrorIs(t, p.Step(clock.Frame{}), common.ErrNonFinite)
}

func TestExternals(t *testing.T) {
	scale, err := stage.NewStage("scaled", scalarShape, func(in stage.Inputs, _ stage.Values, _ clock.Frame, out *buffer.Buffer) error {
		ext, err := in.External("gain")
		if err != nil {
			return err
		}
		out.Data()[0] = ext.Data()[0] * 10
		return nil
	}, stage.WithInputs(stage.FromExternal("gain")))
	require.NoError(t, err)

	seed := buffer.Scalar(1)
	p, err := Build(WithStage(scale), WithExternal("gain", seed))
	require.NoError(t, err)
	seed.Data()[0] = 99

	require.NoError(t, p.Step(clock.Frame{}))
	assert.Equal(t, float32(10), p.Output("scaled").Data()[0])

	require.NoError(t, p.SetExternal("gain", buffer.Scalar(3)))
	require.NoError(t, p.Step(clock.Frame{}))
	assert.Equal(t, float32(30), p.Output("scaled").Data()[0])

	require.ErrorIs(t, p.SetExternal("missing", buffer.Scalar(1)), common.ErrUnresolvedInput)
	wide := buffer.MustFromData(common.Shape{Width: 2, Height: 1, Channels: 1}, []float32{1, 2})
	require.ErrorIs(t, p.SetExternal("gain", wide), common.ErrInvalidInitialData)
}

func TestClockDrivenSteps(t *testing.T) {
	src := clock.NewManualTimeSource(0)
	c := clock.NewClock(clock.WithTimeSource(src))

	var frames []clock.Frame
	sampler, err := stage.NewStage("sampler", scalarShape, func(_ stage.Inputs, _ stage.Values, f clock.Frame, out *buffer.Buffer) error {
		frames = append(frames, f)
		out.Data()[0] = f.Delta
		return nil
	})
	require.NoError(t, err)

	p, err := Build(WithStage(sampler), WithClock(c))
	require.NoError(t, err)
	assert.Same(t, c, p.Clock())

	c.Tick()
	src.Advance(10 * time.Millisecond)
	c.Tick()
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(2), p.Ticks())
	assert.InDelta(t, 0.010, p.Snapshot().Frame.Delta, 1e-6)

	require.NoError(t, p.Teardown())
	c.Tick()
	assert.Len(t, frames, 2)
}

func TestClockDrivenErrorsReachHandler(t *testing.T) {
	c := clock.NewClock(clock.WithTimeSource(clock.NewManualTimeSource(0)))
	boom := errors.New("boom")
	bad, err := stage.NewStage("bad", scalarShape, func(stage.Inputs, stage.Values, clock.Frame, *buffer.Buffer) error {
		return boom
	})
	require.NoError(t, err)

	var got error
	_, err = Build(WithStage(bad), WithClock(c), WithErrorHandler(func(err error) { got = err }))
	require.NoError(t, err)
	c.Tick()
	require.ErrorIs(t, got, boom)
}

func TestSnapshot(t *testing.T) {
	p, err := Build(WithName("demo"), WithStage(counterStage(t, "a"), doublerStage(t, "b", "a")))
	require.NoError(t, err)
	require.NoError(t, p.Step(clock.Frame{Tick: 1}))

	snap := p.Snapshot()
	assert.Equal(t, "demo", snap.Pipeline)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, float32(2), snap.Output("b").Data()[0])
	assert.Nil(t, snap.Output("nope"))
	assert.Len(t, p.Stages(), 2)
	assert.Nil(t, p.Stage("nope"))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	again, err := NewMetrics(reg)
	require.NoError(t, err)

	p, err := Build(WithName("metered"), WithMetrics(m), WithStage(counterStage(t, "a")))
	require.NoError(t, err)
	q, err := Build(WithName("other"), WithMetrics(again), WithStage(counterStage(t, "a")))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Step(clock.Frame{}))
	}
	require.NoError(t, q.Step(clock.Frame{}))

	assert.Equal(t, float64(3), testutil.ToFloat64(m.steps.WithLabelValues("metered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.steps.WithLabelValues("other")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.evaluations.WithLabelValues("metered", "a")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.stages.WithLabelValues("metered")))
}
