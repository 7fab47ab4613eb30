package physics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ID identifies a body. IDs start at 1 and are never reused by a world.
type ID uint64

// Ground is the ID reported for contacts against the ground plane.
const Ground ID = 0

// ColliderKind selects the collision shape of a body.
type ColliderKind int

const (
	// ColliderSphere collides as a sphere of Collider.Radius.
	ColliderSphere ColliderKind = iota
	// ColliderBox collides as an axis-aligned box of Collider.HalfExtents regardless of rotation.
	ColliderBox
)

// Collider describes a body's collision shape.
type Collider struct {
	Kind        ColliderKind
	Radius      float32
	HalfExtents mgl32.Vec3
}

// Sphere returns a sphere collider.
func Sphere(radius float32) Collider {
	return Collider{Kind: ColliderSphere, Radius: radius}
}

// Box returns a box collider from full side lengths.
func Box(width, height, depth float32) Collider {
	return Collider{Kind: ColliderBox, HalfExtents: mgl32.Vec3{width / 2, height / 2, depth / 2}}
}

// Pose is the initial state of a body added to a world. A zero Mass creates a static body.
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Velocity mgl32.Vec3
	Mass     float32
	Collider Collider
}

// Transform is a body's position and orientation.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// Contact is a contact that began during a step. Impact is the closing speed along the normal
// before the contact was resolved.
type Contact struct {
	A, B   ID
	Normal mgl32.Vec3
	Point  mgl32.Vec3
	Impact float32
}

// World is a rigid-body simulation the adapter steps and reads back.
type World interface {
	// AddBody inserts a body.
	//
	// Parameters:
	//   - p: the initial pose, mass and collider
	//
	// Returns:
	//   - ID: the new body's ID
	//   - error: common.ErrInvalidInitialData for non-positive collider sizes, negative mass or non-finite values
	AddBody(p Pose) (ID, error)

	// RemoveBody deletes a body. Unknown IDs are ignored.
	//
	// Returns:
	//   - bool: true if a body was removed
	RemoveBody(id ID) bool

	// Step advances the simulation by one integration step.
	//
	// Parameters:
	//   - dt: the step length in seconds
	//
	// Returns:
	//   - []Contact: contacts that began during this step, ordered by body IDs
	Step(dt float32) []Contact

	// Transform returns a body's current transform.
	Transform(id ID) (Transform, bool)

	// Velocity returns a body's current linear velocity.
	Velocity(id ID) (mgl32.Vec3, bool)

	// ApplyImpulse changes a body's momentum instantly and wakes it.
	//
	// Parameters:
	//   - id: the body
	//   - impulse: the impulse in world space
	//   - point: the application point relative to the body center
	//
	// Returns:
	//   - error: common.ErrUnresolvedInput for unknown IDs
	ApplyImpulse(id ID, impulse, point mgl32.Vec3) error

	// ApplyTorqueImpulse changes a body's angular momentum instantly and wakes it.
	ApplyTorqueImpulse(id ID, torque mgl32.Vec3) error

	// Sleeping reports whether a body is asleep.
	Sleeping(id ID) bool

	// Bodies returns the number of bodies.
	Bodies() int
}

type body struct {
	id       ID
	pos      mgl32.Vec3
	rot      mgl32.Quat
	vel      mgl32.Vec3
	angVel   mgl32.Vec3
	invMass  float32
	invInert mgl32.Vec3
	collider Collider

	sleeping bool
	idleTime float32
}

func (b *body) static() bool {
	return b.invMass == 0
}

func (b *body) wake() {
	b.sleeping = false
	b.idleTime = 0
}

// world implements the World interface with sphere and axis-aligned box colliders over an optional ground plane.
type world struct {
	mu sync.Mutex

	gravity        mgl32.Vec3
	restitution    float32
	friction       float32
	linearDamping  float32
	angularDamping float32

	ground       bool
	groundHeight float32

	allowSleep      bool
	sleepSpeedLimit float32
	sleepTimeLimit  float32

	nextID ID
	bodies map[ID]*body
	order  []ID

	// pairs touching at the end of the previous step
	touching map[pairKey]bool
}

type pairKey struct{ a, b ID }

func newPairKey(a, b ID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

var _ World = &world{}

// NewWorld creates a World with gravity (0, -9.82, 0), restitution 0.7, friction 0.1,
// linear and angular damping 0.01, a ground plane at height 0 and sleeping enabled.
//
// Parameters:
//   - options: functional options for world configuration
//
// Returns:
//   - World: the new world
func NewWorld(options ...WorldBuilderOption) World {
	w := &world{
		gravity:         mgl32.Vec3{0, -9.82, 0},
		restitution:     0.7,
		friction:        0.1,
		linearDamping:   0.01,
		angularDamping:  0.01,
		ground:          true,
		allowSleep:      true,
		sleepSpeedLimit: 0.1,
		sleepTimeLimit:  1,
		nextID:          1,
		bodies:          make(map[ID]*body),
		touching:        make(map[pairKey]bool),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func finiteVec(v mgl32.Vec3) bool {
	return common.IsFinite(v[0]) && common.IsFinite(v[1]) && common.IsFinite(v[2])
}

func (w *world) AddBody(p Pose) (ID, error) {
	switch p.Collider.Kind {
	case ColliderSphere:
		if !(p.Collider.Radius > 0) {
			return 0, fmt.Errorf("sphere radius %v: %w", p.Collider.Radius, common.ErrInvalidInitialData)
		}
	case ColliderBox:
		h := p.Collider.HalfExtents
		if !(h[0] > 0 && h[1] > 0 && h[2] > 0) {
			return 0, fmt.Errorf("box half extents %v: %w", h, common.ErrInvalidInitialData)
		}
	default:
		return 0, fmt.Errorf("collider kind %d: %w", p.Collider.Kind, common.ErrInvalidInitialData)
	}
	if p.Mass < 0 || !common.IsFinite(p.Mass) || !finiteVec(p.Position) || !finiteVec(p.Velocity) {
		return 0, fmt.Errorf("pose %+v: %w", p, common.ErrInvalidInitialData)
	}

	rot := p.Rotation
	if rot.Len() == 0 {
		rot = mgl32.QuatIdent()
	}
	b := &body{
		pos:      p.Position,
		rot:      rot.Normalize(),
		vel:      p.Velocity,
		collider: p.Collider,
	}
	if p.Mass > 0 {
		b.invMass = 1 / p.Mass
		b.invInert = inverseInertia(p.Mass, p.Collider)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	b.id = w.nextID
	w.nextID++
	w.bodies[b.id] = b
	w.order = append(w.order, b.id)
	return b.id, nil
}

func inverseInertia(mass float32, c Collider) mgl32.Vec3 {
	if c.Kind == ColliderSphere {
		i := 2.0 / 5.0 * mass * c.Radius * c.Radius
		return mgl32.Vec3{1 / i, 1 / i, 1 / i}
	}
	x, y, z := 2*c.HalfExtents[0], 2*c.HalfExtents[1], 2*c.HalfExtents[2]
	return mgl32.Vec3{
		12 / (mass * (y*y + z*z)),
		12 / (mass * (x*x + z*z)),
		12 / (mass * (x*x + y*y)),
	}
}

func (w *world) RemoveBody(id ID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.bodies[id]; !ok {
		return false
	}
	delete(w.bodies, id)
	for i, o := range w.order {
		if o == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	for k := range w.touching {
		if k.a == id || k.b == id {
			delete(w.touching, k)
		}
	}
	return true
}

func (w *world) Transform(id ID) (Transform, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[id]
	if !ok {
		return Transform{}, false
	}
	return Transform{Position: b.pos, Rotation: b.rot}, true
}

func (w *world) Velocity(id ID) (mgl32.Vec3, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[id]
	if !ok {
		return mgl32.Vec3{}, false
	}
	return b.vel, true
}

func (w *world) ApplyImpulse(id ID, impulse, point mgl32.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("body %d: %w", id, common.ErrUnresolvedInput)
	}
	if b.static() {
		return nil
	}
	b.vel = b.vel.Add(impulse.Mul(b.invMass))
	b.angVel = b.angVel.Add(mulComponents(b.invInert, point.Cross(impulse)))
	b.wake()
	return nil
}

func (w *world) ApplyTorqueImpulse(id ID, torque mgl32.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("body %d: %w", id, common.ErrUnresolvedInput)
	}
	if b.static() {
		return nil
	}
	b.angVel = b.angVel.Add(mulComponents(b.invInert, torque))
	b.wake()
	return nil
}

func (w *world) Sleeping(id ID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[id]
	return ok && b.sleeping
}

func (w *world) Bodies() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}

func mulComponents(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func (w *world) Step(dt float32) []Contact {
	if !(dt > 0) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	linDamp := math32.Pow(1-w.linearDamping, dt)
	angDamp := math32.Pow(1-w.angularDamping, dt)
	for _, id := range w.order {
		b := w.bodies[id]
		if b.static() || b.sleeping {
			continue
		}
		b.vel = b.vel.Add(w.gravity.Mul(dt)).Mul(linDamp)
		b.angVel = b.angVel.Mul(angDamp)
		b.pos = b.pos.Add(b.vel.Mul(dt))
		spin := mgl32.Quat{W: 0, V: b.angVel}.Mul(b.rot).Scale(0.5 * dt)
		b.rot = b.rot.Add(spin).Normalize()
	}

	touching := make(map[pairKey]bool, len(w.touching))
	var began []Contact
	for _, m := range w.collide() {
		key := newPairKey(m.a.id, m.otherID())
		touching[key] = true
		impact := w.resolve(m)
		if !w.touching[key] {
			began = append(began, Contact{A: key.a, B: key.b, Normal: m.normal, Point: m.point, Impact: impact})
		}
	}
	// sleeping pairs are not tested and keep their state
	for key := range w.touching {
		if w.pairAsleep(key) {
			touching[key] = true
		}
	}
	w.touching = touching

	if w.allowSleep {
		w.updateSleep(dt)
	}

	sort.Slice(began, func(i, j int) bool {
		if began[i].A != began[j].A {
			return began[i].A < began[j].A
		}
		return began[i].B < began[j].B
	})
	return began
}

func (w *world) pairAsleep(key pairKey) bool {
	asleep := func(id ID) bool {
		if id == Ground {
			return true
		}
		b, ok := w.bodies[id]
		return ok && (b.sleeping || b.static())
	}
	return asleep(key.a) && asleep(key.b)
}

func (w *world) updateSleep(dt float32) {
	limit := w.sleepSpeedLimit * w.sleepSpeedLimit
	for _, id := range w.order {
		b := w.bodies[id]
		if b.static() || b.sleeping {
			continue
		}
		if b.vel.LenSqr() < limit && b.angVel.LenSqr() < limit {
			b.idleTime += dt
			if b.idleTime >= w.sleepTimeLimit {
				b.sleeping = true
				b.vel = mgl32.Vec3{}
				b.angVel = mgl32.Vec3{}
			}
			continue
		}
		b.idleTime = 0
	}
}

// manifold is a single contact with the normal pointing from a towards b. A nil b is the ground.
type manifold struct {
	a, b        *body
	normal      mgl32.Vec3
	point       mgl32.Vec3
	penetration float32
}

func (m manifold) otherID() ID {
	if m.b == nil {
		return Ground
	}
	return m.b.id
}

func (w *world) collide() []manifold {
	var out []manifold
	for i, ida := range w.order {
		a := w.bodies[ida]
		if w.ground && !a.static() && !a.sleeping {
			if m, ok := w.groundContact(a); ok {
				out = append(out, m)
			}
		}
		for _, idb := range w.order[i+1:] {
			b := w.bodies[idb]
			if (a.static() || a.sleeping) && (b.static() || b.sleeping) {
				continue
			}
			if m, ok := bodyContact(a, b); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func (w *world) groundContact(a *body) (manifold, bool) {
	extent := a.collider.Radius
	if a.collider.Kind == ColliderBox {
		extent = a.collider.HalfExtents[1]
	}
	pen := w.groundHeight + extent - a.pos[1]
	if pen < 0 {
		return manifold{}, false
	}
	return manifold{
		a:           a,
		normal:      mgl32.Vec3{0, -1, 0},
		point:       mgl32.Vec3{a.pos[0], w.groundHeight, a.pos[2]},
		penetration: pen,
	}, true
}

func bodyContact(a, b *body) (manifold, bool) {
	switch {
	case a.collider.Kind == ColliderSphere && b.collider.Kind == ColliderSphere:
		return sphereSphere(a, b)
	case a.collider.Kind == ColliderSphere && b.collider.Kind == ColliderBox:
		return sphereBox(a, b, false)
	case a.collider.Kind == ColliderBox && b.collider.Kind == ColliderSphere:
		return sphereBox(b, a, true)
	default:
		return boxBox(a, b)
	}
}

func sphereSphere(a, b *body) (manifold, bool) {
	d := b.pos.Sub(a.pos)
	dist := d.Len()
	r := a.collider.Radius + b.collider.Radius
	if dist > r {
		return manifold{}, false
	}
	n := mgl32.Vec3{0, 1, 0}
	if dist > 0 {
		n = d.Mul(1 / dist)
	}
	return manifold{
		a:           a,
		b:           b,
		normal:      n,
		point:       a.pos.Add(n.Mul(a.collider.Radius)),
		penetration: r - dist,
	}, true
}

// sphereBox tests sphere s against box x. flip swaps the manifold so the caller's order is kept.
func sphereBox(s, x *body, flip bool) (manifold, bool) {
	lo := x.pos.Sub(x.collider.HalfExtents)
	hi := x.pos.Add(x.collider.HalfExtents)
	closest := mgl32.Vec3{
		common.Clamp(s.pos[0], lo[0], hi[0]),
		common.Clamp(s.pos[1], lo[1], hi[1]),
		common.Clamp(s.pos[2], lo[2], hi[2]),
	}
	d := closest.Sub(s.pos)
	dist := d.Len()
	if dist > s.collider.Radius {
		return manifold{}, false
	}
	var n mgl32.Vec3
	pen := s.collider.Radius - dist
	if dist > 0 {
		n = d.Mul(1 / dist)
	} else {
		// center inside the box: push out along the axis of least overlap
		n, pen = leastOverlap(s.pos, x.pos, x.collider.HalfExtents, mgl32.Vec3{})
		n = n.Mul(-1)
		pen += s.collider.Radius
	}
	m := manifold{a: s, b: x, normal: n, point: closest, penetration: pen}
	if flip {
		m.a, m.b, m.normal = x, s, n.Mul(-1)
	}
	return m, true
}

func boxBox(a, b *body) (manifold, bool) {
	d := b.pos.Sub(a.pos)
	sum := a.collider.HalfExtents.Add(b.collider.HalfExtents)
	for i := 0; i < 3; i++ {
		if math32.Abs(d[i]) > sum[i] {
			return manifold{}, false
		}
	}
	n, pen := leastOverlap(a.pos, b.pos, a.collider.HalfExtents, b.collider.HalfExtents)
	return manifold{a: a, b: b, normal: n.Mul(-1), point: a.pos.Add(d.Mul(0.5)), penetration: pen}, true
}

// leastOverlap returns the axis along which p leaves the box at c most cheaply, pointing from c towards p,
// and the overlap along it.
func leastOverlap(p, c, hc, hp mgl32.Vec3) (mgl32.Vec3, float32) {
	d := p.Sub(c)
	best, axis := float32(math32.MaxFloat32), 0
	for i := 0; i < 3; i++ {
		o := hc[i] + hp[i] - math32.Abs(d[i])
		if o < best {
			best, axis = o, i
		}
	}
	var n mgl32.Vec3
	n[axis] = 1
	if d[axis] < 0 {
		n[axis] = -1
	}
	return n, best
}

// resolve applies the collision impulse with friction, corrects penetration and returns
// the closing speed along the normal.
func (w *world) resolve(m manifold) float32 {
	a, b := m.a, m.b
	var vb mgl32.Vec3
	var invB float32
	if b != nil {
		vb = b.vel
		invB = b.invMass
	}
	invSum := a.invMass + invB
	if invSum == 0 {
		return 0
	}

	rel := vb.Sub(a.vel)
	vn := rel.Dot(m.normal)
	impact := float32(0)
	if vn < 0 {
		impact = -vn
		j := -(1 + w.restitution) * vn / invSum
		impulse := m.normal.Mul(j)

		tangent := rel.Sub(m.normal.Mul(vn))
		if tl := tangent.Len(); tl > 1e-6 {
			jt := common.Clamp(tl/invSum, 0, w.friction*j)
			impulse = impulse.Sub(tangent.Mul(jt / tl))
		}

		a.vel = a.vel.Sub(impulse.Mul(a.invMass))
		if b != nil {
			b.vel = b.vel.Add(impulse.Mul(invB))
		}
	}

	const slop, percent = 0.001, 0.8
	if corr := m.penetration - slop; corr > 0 {
		shift := m.normal.Mul(corr * percent / invSum)
		a.pos = a.pos.Sub(shift.Mul(a.invMass))
		if b != nil {
			b.pos = b.pos.Add(shift.Mul(invB))
		}
	}

	if impact > w.sleepSpeedLimit {
		if a.sleeping {
			a.wake()
		}
		if b != nil && b.sleeping {
			b.wake()
		}
	}
	return impact
}
