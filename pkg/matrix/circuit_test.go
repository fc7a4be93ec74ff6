package matrix

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealSolve(t *testing.T) {
	m, err := NewMatrix(2, false)
	require.NoError(t, err)
	defer m.Destroy()

	es := NewElementSet(m, []Location{{1, 1}, {1, 2}, {2, 1}, {2, 2}}, 1)
	es.Add(2, -1, -1, 2)
	es.AddRHS(1)

	var buf bytes.Buffer
	m.PrintSystem(&buf)
	assert.Contains(t, buf.String(), "Equation 1:  +2*x1  -1*x2 = 1")

	require.NoError(t, m.Solve())
	sol := m.Solution()
	assert.InDelta(t, 2.0/3, sol[1], 1e-12)
	assert.InDelta(t, 1.0/3, sol[2], 1e-12)

	// the factorization is reused for another rhs
	other, err := m.SolveFor([]float64{0, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, other[1], 1e-12)
	assert.InDelta(t, 2.0/3, other[2], 1e-12)
}

func TestGroundElementsDropContributions(t *testing.T) {
	m, err := NewMatrix(1, false)
	require.NoError(t, err)
	defer m.Destroy()

	g := m.GetElement(0, 1)
	assert.True(t, g.IsGround())
	g.Add(5)
	assert.Zero(t, g.Value())
	m.GetRHS(0).Add(1)
	assert.False(t, m.GetElement(1, 1).IsGround())
}

func TestLoadGminSkipsOtherRows(t *testing.T) {
	m, err := NewMatrix(3, false)
	require.NoError(t, err)
	defer m.Destroy()

	m.LoadGmin(1e-12, []int{1, 2})
	assert.Equal(t, 1e-12, m.GetElement(1, 1).Value())
	assert.Equal(t, 1e-12, m.GetElement(2, 2).Value())
	assert.Zero(t, m.GetElement(3, 3).Value())

	m.Clear()
	assert.Zero(t, m.GetElement(1, 1).Value())
}

func TestComplexSolve(t *testing.T) {
	m, err := NewMatrix(1, true)
	require.NoError(t, err)
	defer m.Destroy()

	m.GetElement(1, 1).AddComplex(complex(1, 1))
	m.GetRHS(1).AddComplex(2)
	require.NoError(t, m.Solve())

	got := m.ComplexSolution(1)
	assert.InDelta(t, 1, real(got), 1e-12)
	assert.InDelta(t, -1, imag(got), 1e-12)
	assert.Zero(t, m.ComplexSolution(0))
}

func TestSingularMatrix(t *testing.T) {
	m, err := NewMatrix(2, false)
	require.NoError(t, err)
	defer m.Destroy()

	m.GetElement(1, 1).Add(1)
	m.GetElement(2, 2).Add(0)
	m.GetRHS(1).Add(1)
	assert.ErrorIs(t, m.Solve(), ErrSingular)
}
