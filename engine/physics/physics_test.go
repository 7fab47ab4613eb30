package physics

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = float32(1.0 / 60)

func dropSphere(t *testing.T, a Adapter) ID {
	t.Helper()
	id, err := a.AddElement(Pose{Position: mgl32.Vec3{0, 10, 0}, Mass: 1, Collider: Sphere(0.5)})
	require.NoError(t, err)
	return id
}

func run(t *testing.T, a Adapter, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		require.NoError(t, a.Step(frame, 1))
	}
}

func TestFallingSphereFiresOneContact(t *testing.T) {
	a := NewAdapter(NewWorld(WithContactMaterial(0, 0.1)))
	id := dropSphere(t, a)

	var contacts []Contact
	a.OnContact(func(c Contact) { contacts = append(contacts, c) })
	run(t, a, 300)

	require.Len(t, contacts, 1)
	assert.Equal(t, Ground, contacts[0].A)
	assert.Equal(t, id, contacts[0].B)
	assert.InDelta(t, 13.66, contacts[0].Impact, 0.5)

	tr := a.ReadTransforms()[id]
	assert.InDelta(t, 0.5, tr.Position[1], 0.01)
	assert.True(t, a.World().Sleeping(id))
}

func TestImpactBelowThresholdIsSuppressed(t *testing.T) {
	a := NewAdapter(NewWorld(WithContactMaterial(0, 0.1)), WithImpactThreshold(20))
	dropSphere(t, a)

	fired := 0
	a.OnContact(func(Contact) { fired++ })
	run(t, a, 300)
	assert.Zero(t, fired)
}

func TestBouncingSphereFiresPerBounce(t *testing.T) {
	a := NewAdapter(NewWorld())
	dropSphere(t, a)

	var impacts []float32
	a.OnContact(func(c Contact) { impacts = append(impacts, c.Impact) })
	run(t, a, 600)

	require.Greater(t, len(impacts), 2)
	for i := 1; i < len(impacts); i++ {
		assert.Less(t, impacts[i], impacts[i-1])
		assert.Greater(t, impacts[i], float32(DefaultImpactThreshold))
	}
}

func TestSubstepsReportOncePerPair(t *testing.T) {
	pose := Pose{Position: mgl32.Vec3{0, 0.52, 0}, Velocity: mgl32.Vec3{0, -2, 0}, Mass: 1, Collider: Sphere(0.5)}
	options := []WorldBuilderOption{WithContactMaterial(0.5, 0), WithSleep(false, 0, 0)}

	w := NewWorld(options...)
	_, err := w.AddBody(pose)
	require.NoError(t, err)
	begins := 0
	for i := 0; i < 200; i++ {
		begins += len(w.Step(0.005))
	}
	require.Greater(t, begins, 1)

	a := NewAdapter(NewWorld(options...), WithImpactThreshold(0))
	_, err = a.AddElement(pose)
	require.NoError(t, err)
	fired := 0
	a.OnContact(func(Contact) { fired++ })
	require.NoError(t, a.Step(1, 200))
	assert.Equal(t, 1, fired)
}

func TestSphereLandsOnStaticBox(t *testing.T) {
	a := NewAdapter(NewWorld(WithContactMaterial(0, 0.5)))
	box, err := a.AddElement(Pose{Position: mgl32.Vec3{0, 1, 0}, Collider: Box(2, 2, 2)})
	require.NoError(t, err)
	ball, err := a.AddElement(Pose{Position: mgl32.Vec3{0, 5, 0}, Mass: 1, Collider: Sphere(0.5)})
	require.NoError(t, err)

	var contacts []Contact
	a.OnContact(func(c Contact) { contacts = append(contacts, c) })
	run(t, a, 300)

	require.Len(t, contacts, 1)
	assert.Equal(t, box, contacts[0].A)
	assert.Equal(t, ball, contacts[0].B)
	assert.InDelta(t, 2.5, a.ReadTransforms()[ball].Position[1], 0.01)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, a.ReadTransforms()[box].Position)
}

func TestFixedStepping(t *testing.T) {
	a := NewAdapter(NewWorld())
	dropSphere(t, a)

	n, err := a.StepFixed(frame, frame/2, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = a.StepFixed(frame, frame/2, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = a.StepFixed(frame, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = a.StepFixed(0, frame, 3)
	require.ErrorIs(t, err, common.ErrInvalidInitialData)
}

func TestStepValidation(t *testing.T) {
	a := NewAdapter(NewWorld())
	var zero float32
	require.ErrorIs(t, a.Step(zero/zero, 1), common.ErrNonFinite)
	require.ErrorIs(t, a.Step(-1, 1), common.ErrInvalidInitialData)
	require.ErrorIs(t, a.Step(frame, 0), common.ErrInvalidInitialData)
	require.NoError(t, a.Step(0, 1))
}

func TestElementSlots(t *testing.T) {
	a := NewAdapter(NewWorld(), WithCapacity(2))
	first := dropSphere(t, a)
	second := dropSphere(t, a)
	assert.Equal(t, ID(1), first)
	assert.Equal(t, ID(2), second)

	_, err := a.AddElement(Pose{Mass: 1, Collider: Sphere(1)})
	require.ErrorIs(t, err, common.ErrCapacityExceeded)

	a.RemoveElement(first)
	a.RemoveElement(first)
	a.RemoveElement(99)
	assert.Equal(t, 1, a.Len())
	_, ok := a.ReadTransforms()[first]
	assert.False(t, ok)

	third := dropSphere(t, a)
	assert.Equal(t, ID(3), third)
	slot, ok := a.Slot(third)
	require.True(t, ok)
	assert.Equal(t, 0, slot)
}

func TestInvalidPose(t *testing.T) {
	a := NewAdapter(NewWorld())
	_, err := a.AddElement(Pose{Mass: 1, Collider: Sphere(0)})
	require.ErrorIs(t, err, common.ErrInvalidInitialData)
	_, err = a.AddElement(Pose{Mass: -1, Collider: Box(1, 1, 1)})
	require.ErrorIs(t, err, common.ErrInvalidInitialData)
	assert.Zero(t, a.Len())
}

func TestImpulseWakesSleepingBody(t *testing.T) {
	a := NewAdapter(NewWorld(WithContactMaterial(0, 0.1)))
	id := dropSphere(t, a)
	run(t, a, 300)
	require.True(t, a.World().Sleeping(id))

	require.NoError(t, a.ApplyImpulse(id, mgl32.Vec3{0, 5, 0}, mgl32.Vec3{}))
	require.NoError(t, a.ApplyTorqueImpulse(id, mgl32.Vec3{0.2, 0, 0}))
	assert.False(t, a.World().Sleeping(id))
	v, _ := a.World().Velocity(id)
	assert.InDelta(t, 5, v[1], 1e-6)

	run(t, a, 10)
	assert.Greater(t, a.ReadTransforms()[id].Position[1], float32(0.6))
	require.ErrorIs(t, a.ApplyImpulse(42, mgl32.Vec3{}, mgl32.Vec3{}), common.ErrUnresolvedInput)
}

func TestAdapterStagePacksTransforms(t *testing.T) {
	a := NewAdapter(NewWorld(), WithCapacity(3), WithFixedStep(frame, 3))
	gone := dropSphere(t, a)
	kept, err := a.AddElement(Pose{Position: mgl32.Vec3{4, 2, -1}, Collider: Box(1, 1, 1)})
	require.NoError(t, err)
	a.RemoveElement(gone)

	s, err := a.Stage("rigid")
	require.NoError(t, err)
	assert.Equal(t, common.Shape{Width: 3, Height: 1, Channels: TransformChannels}, s.OutputShape())

	out, err := s.Evaluate(clock.Frame{Delta: frame}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 0, 0, 0}, out.Texel(0))
	slot, _ := a.Slot(kept)
	assert.Equal(t, []float32{4, 2, -1, 1, 0, 0, 0, 1}, out.Texel(slot))
	assert.Equal(t, float32(0), out.Texel(2)[3])
}
