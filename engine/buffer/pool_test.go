package buffer

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quad = common.Shape{Width: 2, Height: 1, Channels: 2}

func TestFromDataRejectsLengthMismatch(t *testing.T) {
	_, err := FromData(quad, []float32{1, 2, 3})
	require.ErrorIs(t, err, common.ErrInvalidInitialData)

	_, err = NewBuffer(common.Shape{Width: 0, Height: 1, Channels: 1})
	require.ErrorIs(t, err, common.ErrInvalidInitialData)
}

func TestBufferTexelAccess(t *testing.T) {
	b := MustFromData(quad, []float32{1, 2, 3, 4})
	assert.Equal(t, []float32{3, 4}, b.Texel(1))
	assert.Equal(t, float32(2), b.At(0, 1))

	b.Set(1, 0, 9)
	assert.Equal(t, []float32{1, 2, 9, 4}, b.Data())

	cp := b.Clone()
	cp.Fill(0)
	assert.Equal(t, float32(9), b.At(1, 0), "clone must not alias")
}

func TestBufferFinite(t *testing.T) {
	b := MustFromData(quad, []float32{1, 2, float32(math.NaN()), 4})
	idx, ok := b.Finite()
	assert.False(t, ok)
	assert.Equal(t, 2, idx)
}

func TestPoolSeedsBothBuffers(t *testing.T) {
	seed := MustFromData(quad, []float32{1, 2, 3, 4})
	p, err := NewPool(quad, seed)
	require.NoError(t, err)

	assert.Equal(t, seed.Data(), p.Current().Data())
	assert.Equal(t, seed.Data(), p.Back().Data())

	seed.Fill(0)
	assert.Equal(t, []float32{1, 2, 3, 4}, p.Current().Data(), "pool must copy its seed")
}

func TestPoolRejectsMismatchedSeed(t *testing.T) {
	_, err := NewPool(quad, Scalar(1))
	require.ErrorIs(t, err, common.ErrInvalidInitialData)
}

func TestPoolCommitSwapsWithoutCopy(t *testing.T) {
	p, err := NewPool(quad, nil)
	require.NoError(t, err)

	front, back := p.Current(), p.Back()
	back.Fill(7)

	p.BeginTick()
	require.NoError(t, p.Commit(back))

	assert.Same(t, back, p.Current())
	assert.Same(t, front, p.Back())
	assert.Equal(t, uint64(1), p.Swaps())
}

func TestPoolCurrentIsStableBetweenCommits(t *testing.T) {
	p, err := NewPool(quad, nil)
	require.NoError(t, err)

	first := p.Current()
	for i := 0; i < 5; i++ {
		assert.Same(t, first, p.Current())
	}
}

func TestPoolCommitCopiesForeignContents(t *testing.T) {
	p, err := NewPool(quad, nil)
	require.NoError(t, err)

	src := MustFromData(quad, []float32{5, 6, 7, 8})
	p.BeginTick()
	require.NoError(t, p.Commit(src))

	assert.NotSame(t, src, p.Current())
	assert.Equal(t, src.Data(), p.Current().Data())
}

func TestPoolDoubleCommitIsInvalidSequencing(t *testing.T) {
	p, err := NewPool(quad, nil)
	require.NoError(t, err)

	p.BeginTick()
	require.NoError(t, p.Commit(p.Back()))
	err = p.Commit(p.Back())
	require.ErrorIs(t, err, common.ErrInvalidSequencing)
	assert.Equal(t, uint64(1), p.Swaps())

	p.BeginTick()
	require.NoError(t, p.Commit(p.Back()))
}

func TestPoolZeroCommitsLeavesStateUnchanged(t *testing.T) {
	seed := MustFromData(quad, []float32{1, 2, 3, 4})
	p, err := NewPool(quad, seed)
	require.NoError(t, err)

	front := p.Current()
	p.BeginTick()
	p.BeginTick()
	assert.Same(t, front, p.Current())
	assert.False(t, p.Committed())
}

func TestPoolRelease(t *testing.T) {
	p, err := NewPool(quad, nil)
	require.NoError(t, err)

	seed, err := NewBuffer(quad)
	require.NoError(t, err)
	p.Release()
	p.Release()
	assert.True(t, p.Released())
	assert.Nil(t, p.Current())
	assert.Nil(t, p.Back())

	p.BeginTick()
	require.ErrorIs(t, p.Commit(seed), common.ErrReleased)
}
