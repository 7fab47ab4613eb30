package buffer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-flow/common"
)

// Buffer is a fixed-shape block of float32 state, one Channels-wide texel per element, laid out row-major.
// The shape never changes after creation; only the contents do.
type Buffer struct {
	shape common.Shape
	data  []float32
}

// NewBuffer allocates a zeroed buffer of the given shape.
//
// Parameters:
//   - shape: the fixed layout of the buffer
//
// Returns:
//   - *Buffer: the zeroed buffer
//   - error: common.ErrInvalidInitialData if the shape has a non-positive dimension
func NewBuffer(shape common.Shape) (*Buffer, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("buffer shape %s: %w", shape, common.ErrInvalidInitialData)
	}
	return &Buffer{shape: shape, data: make([]float32, shape.Len())}, nil
}

// FromData allocates a buffer of the given shape and copies data into it.
//
// Parameters:
//   - shape: the fixed layout of the buffer
//   - data: initial contents, must hold exactly shape.Len() values
//
// Returns:
//   - *Buffer: the populated buffer
//   - error: common.ErrInvalidInitialData if the shape is invalid or the length does not match
func FromData(shape common.Shape, data []float32) (*Buffer, error) {
	b, err := NewBuffer(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("buffer shape %s expects %d values, got %d: %w", shape, shape.Len(), len(data), common.ErrInvalidInitialData)
	}
	copy(b.data, data)
	return b, nil
}

// MustFromData is FromData that panics on error. Intended for literals in tests and sketches.
func MustFromData(shape common.Shape, data []float32) *Buffer {
	b, err := FromData(shape, data)
	if err != nil {
		panic(err)
	}
	return b
}

// Scalar returns a 1x1x1 buffer holding v.
func Scalar(v float32) *Buffer {
	return &Buffer{shape: common.Shape{Width: 1, Height: 1, Channels: 1}, data: []float32{v}}
}

// Shape returns the fixed layout of the buffer.
func (b *Buffer) Shape() common.Shape {
	return b.shape
}

// Data returns the backing slice. Writers must only touch buffers they own; readers must treat it as read-only.
func (b *Buffer) Data() []float32 {
	return b.data
}

// Texel returns the channels of element i as a sub-slice of the backing data.
//
// Parameters:
//   - i: element index in row-major order
//
// Returns:
//   - []float32: a Channels-long view into the buffer
func (b *Buffer) Texel(i int) []float32 {
	c := b.shape.Channels
	return b.data[i*c : i*c+c : i*c+c]
}

// At returns channel ch of element i.
func (b *Buffer) At(i, ch int) float32 {
	return b.data[i*b.shape.Channels+ch]
}

// Set writes channel ch of element i.
func (b *Buffer) Set(i, ch int, v float32) {
	b.data[i*b.shape.Channels+ch] = v
}

// CopyFrom copies the contents of src into b.
//
// Parameters:
//   - src: the buffer to copy from, must have the same shape as b
//
// Returns:
//   - error: common.ErrInvalidInitialData on shape mismatch
func (b *Buffer) CopyFrom(src *Buffer) error {
	if src == nil || src.shape != b.shape {
		return fmt.Errorf("copy into %s buffer: %w", b.shape, common.ErrInvalidInitialData)
	}
	copy(b.data, src.data)
	return nil
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	cp := &Buffer{shape: b.shape, data: make([]float32, len(b.data))}
	copy(cp.data, b.data)
	return cp
}

// Fill sets every value in the buffer to v.
func (b *Buffer) Fill(v float32) {
	for i := range b.data {
		b.data[i] = v
	}
}

// Finite reports whether the buffer holds only finite values, returning the index of the first offending value otherwise.
//
// Returns:
//   - int: index into Data() of the first NaN or Inf, or -1
//   - bool: true if every value is finite
func (b *Buffer) Finite() (int, bool) {
	for i, v := range b.data {
		if !common.IsFinite(v) {
			return i, false
		}
	}
	return -1, true
}
