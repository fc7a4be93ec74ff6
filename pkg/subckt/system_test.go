package subckt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemReduce(t *testing.T) {
	const g = 1e-3
	s, err := newSystem(1, 1, false)
	require.NoError(t, err)
	defer s.destroy()

	// one pin through g to an internal node, g from there to ground
	s.GetElement(1, 1).Add(g)
	s.GetElement(1, 2).Add(-g)
	s.GetElement(2, 1).Add(-g)
	s.GetElement(2, 2).Add(2 * g)
	s.GetRHS(2).Add(1e-3)
	assert.True(t, s.GetElement(0, 2).IsGround())

	require.NoError(t, s.reduce())
	assert.InDelta(t, g/2, s.s[0], 1e-15)
	assert.InDelta(t, 5e-4, s.r[0], 1e-15)

	s.setBoundary([]float64{0, 10}, []int{1})
	s.backSolve()
	assert.InDelta(t, 10, s.solution[1], 1e-12)
	assert.InDelta(t, 5.5, s.solution[2], 1e-9)
}

func TestSystemWithoutInternalNodes(t *testing.T) {
	s, err := newSystem(2, 0, false)
	require.NoError(t, err)
	defer s.destroy()

	s.GetElement(1, 2).Add(3)
	s.GetRHS(2).Add(4)
	require.NoError(t, s.reduce())
	assert.Equal(t, []float64{0, 3, 0, 0}, s.s)
	assert.Equal(t, []float64{0, 4}, s.r)
}

func TestSystemSingularInternalBlock(t *testing.T) {
	s, err := newSystem(1, 1, false)
	require.NoError(t, err)
	defer s.destroy()

	s.GetElement(1, 1).Add(1)
	s.GetElement(2, 2).Add(0)
	s.GetRHS(2).Add(1)
	assert.Error(t, s.reduce())
}
