package circuit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/netlist"
	"github.com/edp1096/semispice/pkg/subckt"
)

const dividers = `three dividers
.subckt div a b
R1 a mid 1k
R2 mid b 1k
.ends
V1 in 0 4
X1 in 0 div mode=local
X2 in 0 div
X3 in 0 div mode=local
.end
`

func loadDeck(t *testing.T, deck string, parallel bool) *circuit.Circuit {
	t.Helper()
	data, err := netlist.Parse(deck)
	require.NoError(t, err)
	ckt, err := circuit.NewFromNetlist(data, subckt.Flat, 0)
	require.NoError(t, err)
	t.Cleanup(ckt.Destroy)
	ckt.Options.Parallel = parallel

	require.NoError(t, ckt.Setup(context.Background()))
	require.NoError(t, ckt.Temperature())
	return ckt
}

func TestNumbering(t *testing.T) {
	ckt := loadDeck(t, dividers, false)

	assert.Equal(t, "three dividers", ckt.Name())
	// in, the V1 branch and the flat instance's midpoint
	assert.Equal(t, 3, ckt.Size())
	assert.Equal(t, 2, ckt.GetNumNodes())
	assert.Equal(t, []string{"in", "X2/mid"}, ckt.NodeNames())
	assert.False(t, ckt.IsBranch(1))
	assert.True(t, ckt.IsBranch(2))
	assert.Equal(t, map[string]int{"V1": 2}, ckt.GetBranchMap())
	assert.IsType(t, &subckt.Instance{}, ckt.Device("X1"))
	assert.Nil(t, ckt.Device("X9"))
}

func TestLinearSolve(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		ckt := loadDeck(t, dividers, parallel)
		require.NoError(t, ckt.Load())
		require.NoError(t, ckt.Solve())

		sol := ckt.GetSolution()
		assert.InDelta(t, 4, sol["V(in)"], 1e-9)
		assert.InDelta(t, 2, sol["V(X2/mid)"], 1e-6)
		assert.InDelta(t, -6e-3, sol["I(V1)"], 1e-9)
		assert.Len(t, sol, 3)

		for _, name := range []string{"X1/mid", "X2/mid", "X3/mid"} {
			v, ok := ckt.Voltage(name)
			require.True(t, ok, name)
			assert.InDelta(t, 2, v, 1e-6, name)
		}
		_, ok := ckt.Voltage("X1/nowhere")
		assert.False(t, ok)
		_, ok = ckt.Voltage("nowhere")
		assert.False(t, ok)
	}
}

func TestSmallSignalSolve(t *testing.T) {
	ckt := loadDeck(t, `ac
.subckt rc a b
R1 a mid 1k
C1 mid b 1u
.ends
V1 in 0 DC 0 AC 1
X1 in 0 rc mode=local
`, false)
	ckt.Status.Mode = device.ACAnalysis
	ckt.Status.Omega = 1e3
	require.NoError(t, ckt.LoadAC())
	require.NoError(t, ckt.SolveAC())

	sol := ckt.GetComplexSolution()
	assert.InDelta(t, 1, real(sol["V(in)"]), 1e-12)
	// 1/(R + 1/jwC) with wRC = 1
	want := 1 / complex(1e3, -1e3)
	assert.InDelta(t, real(-want), real(sol["I(V1)"]), 1e-9)
	assert.InDelta(t, imag(-want), imag(sol["I(V1)"]), 1e-9)

	// outside AC the source contributes no excitation
	ckt.Status.Mode = device.NoiseAnalysis
	require.NoError(t, ckt.LoadAC())
	require.NoError(t, ckt.SolveAC())
	sol = ckt.GetComplexSolution()
	assert.Zero(t, sol["V(in)"])
	assert.Zero(t, sol["I(V1)"])
}

func TestSetupErrors(t *testing.T) {
	empty := circuit.New("empty")
	assert.Error(t, empty.Setup(context.Background()))

	ckt := circuit.New("bad")
	ckt.Add(device.NewResistor("R1", []string{"1", "0"}, 0))
	t.Cleanup(ckt.Destroy)
	err := ckt.Setup(context.Background())
	assert.ErrorIs(t, err, device.ErrInvalidModel)

	data, err := netlist.Parse("t\nQ1 c b 0 nomodel\n")
	require.NoError(t, err)
	_, err = circuit.NewFromNetlist(data, subckt.Flat, 1)
	assert.ErrorIs(t, err, netlist.ErrUndefinedModel)
}
