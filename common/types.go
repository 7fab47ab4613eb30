// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Shape describes the fixed layout of a buffer: a Width x Height grid of texels, each Channels floats wide.
type Shape struct {
	// Width is the number of texels per row.
	Width int
	// Height is the number of rows.
	Height int
	// Channels is the number of float32 values per texel, e.g. 4 for an RGBA particle texel.
	Channels int
}

// Elements returns the number of texels in the shape.
//
// Returns:
//   - int: Width * Height
func (s Shape) Elements() int {
	return s.Width * s.Height
}

// Len returns the number of float32 values a buffer of this shape holds.
//
// Returns:
//   - int: Width * Height * Channels
func (s Shape) Len() int {
	return s.Width * s.Height * s.Channels
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	return s.Width > 0 && s.Height > 0 && s.Channels > 0
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Channels)
}

// GridShape returns the square shape used to lay out count elements in a 2D grid,
// with ceil(sqrt(count)) texels per side. Trailing texels beyond count are padding.
//
// Parameters:
//   - count: the number of elements to accommodate (values < 1 are treated as 1)
//   - channels: the number of float32 values per element
//
// Returns:
//   - Shape: the square grid shape
func GridShape(count, channels int) Shape {
	if count < 1 {
		count = 1
	}
	side := int(math32.Ceil(math32.Sqrt(float32(count))))
	for side*side < count {
		side++
	}
	return Shape{Width: side, Height: side, Channels: channels}
}

// ImageShape returns the shape of an RGBA color buffer of the given pixel dimensions.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - Shape: a width x height x 4 shape
func ImageShape(width, height int) Shape {
	return Shape{Width: width, Height: height, Channels: 4}
}
