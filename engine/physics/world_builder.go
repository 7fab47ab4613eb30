package physics

import "github.com/go-gl/mathgl/mgl32"

// WorldBuilderOption is a functional option used to configure a World during construction.
type WorldBuilderOption func(*world)

// WithGravity sets the gravity acceleration.
func WithGravity(g mgl32.Vec3) WorldBuilderOption {
	return func(w *world) {
		w.gravity = g
	}
}

// WithContactMaterial sets the restitution and friction used for every contact.
//
// Parameters:
//   - restitution: the bounciness, 0 absorbs all normal velocity
//   - friction: the Coulomb friction coefficient
//
// Returns:
//   - WorldBuilderOption: a function that sets the contact material
func WithContactMaterial(restitution, friction float32) WorldBuilderOption {
	return func(w *world) {
		w.restitution = restitution
		w.friction = friction
	}
}

// WithDamping sets the fraction of linear and angular velocity lost per second.
func WithDamping(linear, angular float32) WorldBuilderOption {
	return func(w *world) {
		w.linearDamping = linear
		w.angularDamping = angular
	}
}

// WithGround enables or disables the infinite ground plane at the given height.
func WithGround(enabled bool, height float32) WorldBuilderOption {
	return func(w *world) {
		w.ground = enabled
		w.groundHeight = height
	}
}

// WithSleep configures body sleeping. A dynamic body slower than speedLimit for timeLimit seconds stops
// being integrated until an impulse or an impact wakes it.
//
// Parameters:
//   - enabled: whether bodies may sleep
//   - speedLimit: the linear and angular speed below which a body is idle
//   - timeLimit: the idle time in seconds before a body sleeps
//
// Returns:
//   - WorldBuilderOption: a function that sets the sleep behavior
func WithSleep(enabled bool, speedLimit, timeLimit float32) WorldBuilderOption {
	return func(w *world) {
		w.allowSleep = enabled
		if speedLimit > 0 {
			w.sleepSpeedLimit = speedLimit
		}
		if timeLimit > 0 {
			w.sleepTimeLimit = timeLimit
		}
	}
}
