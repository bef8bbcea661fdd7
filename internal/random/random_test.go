package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededSourceIsDeterministic(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.Float64(), b.Float64())
		require.Equal(t, a.IntN(97), b.IntN(97))
	}
}

func TestScriptedReplaysThenFallsBack(t *testing.T) {
	src := NewScripted(New(1), 0.1, 0.9).WithInts(3, 7)

	assert.Equal(t, 0.1, src.Float64())
	assert.Equal(t, 0.9, src.Float64())
	assert.Equal(t, 3, src.IntN(10))
	assert.Equal(t, 2, src.IntN(5), "out-of-range scripted ints wrap into [0,n)")

	v := src.Float64()
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 1.0)
}

func TestScriptedWithoutFallbackYieldsZero(t *testing.T) {
	src := NewScripted(nil)
	assert.Equal(t, 0.0, src.Float64())
	assert.Equal(t, 0, src.IntN(4))
}

func TestIntRangeIsInclusive(t *testing.T) {
	src := New(7)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := IntRange(src, 90, 93)
		require.GreaterOrEqual(t, v, 90)
		require.LessOrEqual(t, v, 93)
		seen[v] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 5, IntRange(src, 5, 5))
}

func TestChance(t *testing.T) {
	assert.True(t, Chance(NewScripted(nil, 0.59), 0.6))
	assert.False(t, Chance(NewScripted(nil, 0.6), 0.6))
	assert.False(t, Chance(NewScripted(nil, 0.0), 0))
}

func TestPick(t *testing.T) {
	src := NewScripted(nil).WithInts(2)
	assert.Equal(t, "c", Pick(src, []string{"a", "b", "c"}))
}
