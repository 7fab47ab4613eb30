package buffer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-flow/common"
)

// Pool is a ping-pong pair of identically shaped buffers. The front buffer holds the last committed
// result and is the only one consumers may read; the back buffer is the write target for the next commit.
// Swapping is an index exchange, never a data copy. A Pool is not safe for concurrent use; the
// owning pipeline serializes access.
type Pool interface {
	// Shape returns the shape shared by both buffers.
	Shape() common.Shape

	// Current returns the front buffer. Repeated calls between commits return the same pointer.
	//
	// Returns:
	//   - *Buffer: the readable result of the last commit, the seed before the first commit, or nil after Release
	Current() *Buffer

	// Back returns the buffer the next Commit will publish. Writers may fill it in place
	// and commit it directly to avoid a copy.
	//
	// Returns:
	//   - *Buffer: the write target, or nil after Release
	Back() *Buffer

	// BeginTick opens a new commit window. The pipeline calls this once per step for every pool.
	BeginTick()

	// Commit writes contents into the back buffer and swaps front and back.
	// When contents is the back buffer itself no copy is made.
	// Only one commit is allowed per commit window.
	//
	// Parameters:
	//   - contents: the new state, must match the pool shape
	//
	// Returns:
	//   - error: common.ErrInvalidSequencing on a second commit in the same window,
	//     common.ErrInvalidInitialData on shape mismatch, common.ErrReleased after Release
	Commit(contents *Buffer) error

	// Committed reports whether Commit succeeded in the current window.
	Committed() bool

	// Swaps returns the number of successful commits since allocation.
	Swaps() uint64

	// Release drops both buffers. Current and Back return nil afterwards. Releasing twice is a no-op.
	Release()

	// Released reports whether Release has been called.
	Released() bool
}

// pool implements the Pool interface.
type pool struct {
	shape     common.Shape
	buffers   [2]*Buffer
	front     int
	committed bool
	swaps     uint64
	released  bool
}

var _ Pool = &pool{}

// NewPool allocates a Pool with both buffers seeded from initial.
//
// Parameters:
//   - shape: the fixed shape of both buffers
//   - initial: the seed contents; nil seeds zeroes
//
// Returns:
//   - Pool: the allocated pool
//   - error: common.ErrInvalidInitialData if the shape is invalid or initial does not match it
func NewPool(shape common.Shape, initial *Buffer) (Pool, error) {
	front, err := NewBuffer(shape)
	if err != nil {
		return nil, err
	}
	back, _ := NewBuffer(shape)
	if initial != nil {
		if err := front.CopyFrom(initial); err != nil {
			return nil, fmt.Errorf("seed pool: %w", err)
		}
		copy(back.data, front.data)
	}
	return &pool{
		shape:   shape,
		buffers: [2]*Buffer{front, back},
	}, nil
}

func (p *pool) Shape() common.Shape {
	return p.shape
}

func (p *pool) Current() *Buffer {
	if p.released {
		return nil
	}
	return p.buffers[p.front]
}

func (p *pool) Back() *Buffer {
	if p.released {
		return nil
	}
	return p.buffers[1-p.front]
}

func (p *pool) BeginTick() {
	p.committed = false
}

func (p *pool) Commit(contents *Buffer) error {
	if p.released {
		return fmt.Errorf("commit: %w", common.ErrReleased)
	}
	if p.committed {
		return fmt.Errorf("commit called twice in one tick: %w", common.ErrInvalidSequencing)
	}
	back := p.Back()
	if contents != back {
		if err := back.CopyFrom(contents); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	p.front = 1 - p.front
	p.committed = true
	p.swaps++
	return nil
}

func (p *pool) Committed() bool {
	return p.committed
}

func (p *pool) Swaps() uint64 {
	return p.swaps
}

func (p *pool) Release() {
	if p.released {
		return
	}
	p.released = true
	p.buffers = [2]*Buffer{}
}

func (p *pool) Released() bool {
	return p.released
}
