package physics

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/Carmen-Shannon/oxy-flow/engine/clock"
	"github.com/Carmen-Shannon/oxy-flow/engine/stage"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// TransformChannels is the number of floats packed per element by the adapter stage:
// position xyz, an alive flag, then the rotation quaternion xyzw.
const TransformChannels = 8

// DefaultImpactThreshold is the closing speed a contact must exceed to reach contact callbacks.
const DefaultImpactThreshold = 1.5

// DefaultCapacity is the number of element slots in the adapter stage's output.
const DefaultCapacity = 256

// Adapter keeps an external rigid-body world in step with the pipeline. It owns the mapping from
// element IDs to output slots, filters contacts by impact strength and exposes the world as a stage.
type Adapter interface {
	// World returns the wrapped simulation.
	World() World

	// AddElement inserts a body and assigns it the lowest free output slot.
	//
	// Parameters:
	//   - p: the initial pose
	//
	// Returns:
	//   - ID: the element ID, stable until removal
	//   - error: common.ErrCapacityExceeded when every slot is taken, or the world's error
	AddElement(p Pose) (ID, error)

	// RemoveElement deletes an element and frees its slot. Unknown IDs are ignored.
	RemoveElement(id ID)

	// Step advances the world by dt split into equal substeps.
	//
	// Parameters:
	//   - dt: the elapsed time in seconds, zero is a no-op
	//   - substeps: the number of integration steps, at least 1
	//
	// Returns:
	//   - error: common.ErrNonFinite for NaN or infinite dt, common.ErrInvalidInitialData for negative dt or substeps < 1
	Step(dt float32, substeps int) error

	// StepFixed advances the world in fixed increments, carrying leftover time to the next call.
	// When more than maxSubSteps increments are due the excess time is dropped.
	//
	// Parameters:
	//   - fixedDt: the fixed increment in seconds
	//   - dt: the elapsed time in seconds
	//   - maxSubSteps: the most increments taken per call
	//
	// Returns:
	//   - int: the number of increments taken
	//   - error: as for Step
	StepFixed(fixedDt, dt float32, maxSubSteps int) (int, error)

	// ReadTransforms returns the current transform of every element.
	ReadTransforms() map[ID]Transform

	// OnContact registers a callback invoked synchronously during Step for every pair whose contact
	// began with an impact above the threshold, at most once per pair per Step.
	OnContact(fn func(Contact))

	// ApplyImpulse forwards an impulse to an element's body.
	ApplyImpulse(id ID, impulse, point mgl32.Vec3) error

	// ApplyTorqueImpulse forwards a torque impulse to an element's body.
	ApplyTorqueImpulse(id ID, torque mgl32.Vec3) error

	// Slot returns the output slot of an element.
	Slot(id ID) (int, bool)

	// Len returns the number of elements.
	Len() int

	// Capacity returns the number of output slots.
	Capacity() int

	// ImpactThreshold returns the contact callback threshold.
	ImpactThreshold() float32

	// Stage returns a stage that steps the adapter by each frame's delta and packs element transforms
	// into a capacity x 1 x 8 buffer. Empty slots are zero with the alive flag cleared.
	//
	// Parameters:
	//   - name: the stage name
	//
	// Returns:
	//   - stage.Stage: the stage
	//   - error: any error from stage.NewStage
	Stage(name string) (stage.Stage, error)
}

// adapter implements the Adapter interface.
type adapter struct {
	mu     sync.Mutex
	stepMu sync.Mutex

	world     World
	threshold float32
	capacity  int
	substeps  int
	fixedDt   float32
	maxFixed  int
	logger    *zap.Logger

	slots       []ID
	slotOf      map[ID]int
	accumulator float32
	callbacks   []func(Contact)
}

var _ Adapter = &adapter{}

// NewAdapter wraps a World. Panics if w is nil.
//
// Parameters:
//   - w: the simulation to drive
//   - options: functional options for adapter configuration
//
// Returns:
//   - Adapter: the new adapter
func NewAdapter(w World, options ...AdapterBuilderOption) Adapter {
	if w == nil {
		panic("physics: NewAdapter requires a non-nil World")
	}
	a := &adapter{
		world:     w,
		threshold: DefaultImpactThreshold,
		capacity:  DefaultCapacity,
		substeps:  1,
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		opt(a)
	}
	a.slots = make([]ID, a.capacity)
	a.slotOf = make(map[ID]int, a.capacity)
	return a
}

func (a *adapter) World() World {
	return a.world
}

func (a *adapter) AddElement(p Pose) (ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot := -1
	for i, id := range a.slots {
		if id == 0 {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, fmt.Errorf("add element to %d slots: %w", a.capacity, common.ErrCapacityExceeded)
	}
	id, err := a.world.AddBody(p)
	if err != nil {
		return 0, fmt.Errorf("add element: %w", err)
	}
	a.slots[slot] = id
	a.slotOf[id] = slot
	a.logger.Debug("element added", zap.Uint64("id", uint64(id)), zap.Int("slot", slot))
	return id, nil
}

func (a *adapter) RemoveElement(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slotOf[id]
	if !ok {
		return
	}
	a.world.RemoveBody(id)
	a.slots[slot] = 0
	delete(a.slotOf, id)
	a.logger.Debug("element removed", zap.Uint64("id", uint64(id)), zap.Int("slot", slot))
}

func validateDelta(dt float32) error {
	if !common.IsFinite(dt) {
		return fmt.Errorf("dt %v: %w", dt, common.ErrNonFinite)
	}
	if dt < 0 {
		return fmt.Errorf("negative dt %v: %w", dt, common.ErrInvalidInitialData)
	}
	return nil
}

func (a *adapter) Step(dt float32, substeps int) error {
	if err := validateDelta(dt); err != nil {
		return err
	}
	if substeps < 1 {
		return fmt.Errorf("substeps %d: %w", substeps, common.ErrInvalidInitialData)
	}
	if dt == 0 {
		return nil
	}

	a.stepMu.Lock()
	defer a.stepMu.Unlock()
	h := dt / float32(substeps)
	began := make(map[pairKey]Contact)
	var order []pairKey
	for i := 0; i < substeps; i++ {
		a.collect(a.world.Step(h), began, &order)
	}
	a.dispatch(began, order)
	return nil
}

func (a *adapter) StepFixed(fixedDt, dt float32, maxSubSteps int) (int, error) {
	if err := validateDelta(dt); err != nil {
		return 0, err
	}
	if !(fixedDt > 0) || maxSubSteps < 1 {
		return 0, fmt.Errorf("fixed step %v x %d: %w", fixedDt, maxSubSteps, common.ErrInvalidInitialData)
	}

	a.stepMu.Lock()
	defer a.stepMu.Unlock()
	a.accumulator += dt
	began := make(map[pairKey]Contact)
	var order []pairKey
	n := 0
	for a.accumulator >= fixedDt && n < maxSubSteps {
		a.collect(a.world.Step(fixedDt), began, &order)
		a.accumulator -= fixedDt
		n++
	}
	a.accumulator = math32.Mod(a.accumulator, fixedDt)
	a.dispatch(began, order)
	return n, nil
}

// collect keeps the first begin of each pair above the threshold.
func (a *adapter) collect(contacts []Contact, began map[pairKey]Contact, order *[]pairKey) {
	for _, c := range contacts {
		if c.Impact <= a.threshold {
			continue
		}
		key := newPairKey(c.A, c.B)
		if _, ok := began[key]; ok {
			continue
		}
		began[key] = c
		*order = append(*order, key)
	}
}

func (a *adapter) dispatch(began map[pairKey]Contact, order []pairKey) {
	if len(order) == 0 {
		return
	}
	a.mu.Lock()
	callbacks := make([]func(Contact), len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.mu.Unlock()

	for _, key := range order {
		c := began[key]
		a.logger.Debug("contact", zap.Uint64("a", uint64(c.A)), zap.Uint64("b", uint64(c.B)), zap.Float32("impact", c.Impact))
		for _, fn := range callbacks {
			fn(c)
		}
	}
}

func (a *adapter) ReadTransforms() map[ID]Transform {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[ID]Transform, len(a.slotOf))
	for id := range a.slotOf {
		if t, ok := a.world.Transform(id); ok {
			out[id] = t
		}
	}
	return out
}

func (a *adapter) OnContact(fn func(Contact)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

func (a *adapter) ApplyImpulse(id ID, impulse, point mgl32.Vec3) error {
	return a.world.ApplyImpulse(id, impulse, point)
}

func (a *adapter) ApplyTorqueImpulse(id ID, torque mgl32.Vec3) error {
	return a.world.ApplyTorqueImpulse(id, torque)
}

func (a *adapter) Slot(id ID) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slotOf[id]
	return slot, ok
}

func (a *adapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slotOf)
}

func (a *adapter) Capacity() int {
	return a.capacity
}

func (a *adapter) ImpactThreshold() float32 {
	return a.threshold
}

func (a *adapter) Stage(name string) (stage.Stage, error) {
	shape := common.Shape{Width: a.capacity, Height: 1, Channels: TransformChannels}
	return stage.NewStage(name, shape, a.transition)
}

func (a *adapter) transition(_ stage.Inputs, _ stage.Values, f clock.Frame, out *buffer.Buffer) error {
	if a.fixedDt > 0 {
		if _, err := a.StepFixed(a.fixedDt, f.Delta, a.maxFixed); err != nil {
			return err
		}
	} else if err := a.Step(f.Delta, a.substeps); err != nil {
		return err
	}
	a.pack(out)
	return nil
}

func (a *adapter) pack(out *buffer.Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out.Fill(0)
	for slot, id := range a.slots {
		if id == 0 {
			continue
		}
		t, ok := a.world.Transform(id)
		if !ok {
			continue
		}
		px := out.Texel(slot)
		px[0], px[1], px[2], px[3] = t.Position[0], t.Position[1], t.Position[2], 1
		px[4], px[5], px[6], px[7] = t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2], t.Rotation.W
	}
}
