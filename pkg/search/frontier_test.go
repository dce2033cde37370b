package search

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierEmpty(t *testing.T) {
	f := NewFrontier()

	_, err := f.Pop()
	require.ErrorIs(t, err, ErrEmptyFrontier)
	_, err = f.PeekWeight()
	require.ErrorIs(t, err, ErrEmptyFrontier)
	assert.Zero(t, f.Len())
}

func TestFrontierPopOrder(t *testing.T) {
	f := NewFrontier()
	for v, w := range []float64{5, 1, 3, 3, 0, 8} {
		assert.True(t, f.Push(NewSeed(uint32(v), w)))
	}

	var got []float64
	for f.Len() > 0 {
		w, err := f.PeekWeight()
		require.NoError(t, err)
		s, err := f.Pop()
		require.NoError(t, err)
		assert.Equal(t, w, s.Weight)
		got = append(got, s.Weight)
	}
	assert.Equal(t, []float64{0, 1, 3, 3, 5, 8}, got)

	_, err := f.Pop()
	require.ErrorIs(t, err, ErrEmptyFrontier)
}

func TestFrontierDecreaseKey(t *testing.T) {
	f := NewFrontier()
	require.True(t, f.Push(NewSeed(1, 10)))
	require.True(t, f.Push(NewSeed(2, 5)))

	// Worse or equal pushes are dropped.
	assert.False(t, f.Push(NewSeed(1, 10)))
	assert.False(t, f.Push(NewSeed(1, 12)))

	// A lighter push replaces the entry.
	better := NewSeed(1, 2)
	assert.True(t, f.Push(better))
	assert.Equal(t, 2, f.Len())

	s, err := f.Pop()
	require.NoError(t, err)
	assert.Same(t, better, s)

	s, err = f.Pop()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), s.Vertex)

	// The superseded weight-10 entry is never returned.
	_, err = f.Pop()
	require.ErrorIs(t, err, ErrEmptyFrontier)
}

func TestFrontierRepushAfterPop(t *testing.T) {
	f := NewFrontier()
	require.True(t, f.Push(NewSeed(1, 4)))
	_, err := f.Pop()
	require.NoError(t, err)

	again := NewSeed(1, 6)
	assert.True(t, f.Push(again))
	s, err := f.Pop()
	require.NoError(t, err)
	assert.Same(t, again, s)
}

// Pushing a worse weight for a present vertex never changes pop order.
func TestFrontierWorsePushIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 200

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = float64(rng.Intn(50))
	}

	plain := NewFrontier()
	noisy := NewFrontier()
	for v, w := range weights {
		plain.Push(NewSeed(uint32(v), w))
		noisy.Push(NewSeed(uint32(v), w))
	}
	for i := 0; i < 3*n; i++ {
		v := rng.Intn(n)
		assert.False(t, noisy.Push(NewSeed(uint32(v), weights[v]+float64(rng.Intn(10)))))
	}

	prev := -1.0
	for plain.Len() > 0 {
		a, err := plain.Pop()
		require.NoError(t, err)
		b, err := noisy.Pop()
		require.NoError(t, err)
		assert.Equal(t, a.Vertex, b.Vertex)
		assert.GreaterOrEqual(t, a.Weight, prev)
		prev = a.Weight
	}
	assert.Zero(t, noisy.Len())
}

func TestFrontierRandomNonDecreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := NewFrontier()
	best := make(map[uint32]float64)

	for i := 0; i < 1000; i++ {
		v := uint32(rng.Intn(100))
		w := rng.Float64() * 100
		if f.Push(NewSeed(v, w)) {
			best[v] = w
		}
	}

	prev := -1.0
	seen := make(map[uint32]bool)
	for f.Len() > 0 {
		s, err := f.Pop()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.Weight, prev)
		assert.Equal(t, best[s.Vertex], s.Weight)
		assert.False(t, seen[s.Vertex], "vertex %d popped twice", s.Vertex)
		seen[s.Vertex] = true
		prev = s.Weight
	}
	assert.Len(t, seen, len(best))
}
