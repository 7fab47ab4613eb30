package particles

import (
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/Carmen-Shannon/oxy-flow/engine/buffer"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// BaseFromPositions packs positions into a square base buffer of ceil(sqrt(N)) texels per side.
// Each texel gets a random initial lifetime in [0, 1) so particles do not respawn in lockstep.
// Grid padding repeats the positions from the start so every simulated particle sits on the shape.
//
// Parameters:
//   - positions: the particle rest positions
//   - seed: the seed for initial lifetimes
//
// Returns:
//   - *buffer.Buffer: the base buffer, or nil for no positions
func BaseFromPositions(positions []mgl32.Vec3, seed uint64) *buffer.Buffer {
	if len(positions) == 0 {
		return nil
	}
	shape := common.GridShape(len(positions), Channels)
	b, err := buffer.NewBuffer(shape)
	if err != nil {
		return nil
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := 0; i < shape.Elements(); i++ {
		p := positions[i%len(positions)]
		px := b.Texel(i)
		px[0], px[1], px[2], px[3] = p[0], p[1], p[2], rng.Float32()
	}
	return b
}

// SpherePositions returns n points evenly spread over a sphere surface using a Fibonacci lattice.
//
// Parameters:
//   - n: the number of points
//   - radius: the sphere radius
//
// Returns:
//   - []mgl32.Vec3: the points
func SpherePositions(n int, radius float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, n)
	golden := math32.Pi * (3 - math32.Sqrt(5))
	for i := range out {
		y := float32(1)
		if n > 1 {
			y = 1 - 2*float32(i)/float32(n-1)
		}
		r := math32.Sqrt(max(0, 1-y*y))
		theta := golden * float32(i)
		out[i] = mgl32.Vec3{math32.Cos(theta) * r, y, math32.Sin(theta) * r}.Mul(radius)
	}
	return out
}
