package netlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/subckt"
)

func build(t *testing.T, deck string, mode subckt.Mode) []device.Device {
	t.Helper()
	data, err := Parse(deck)
	require.NoError(t, err)
	devs, err := NewBuilder(data, mode).Devices()
	require.NoError(t, err)
	return devs
}

func TestBuilderSharesModels(t *testing.T) {
	devs := build(t, `pair
.model qn npn is=1e-15 bf=150
.model nch nmos vto=0.7 kp=50u
Q1 c1 b 0 qn
Q2 c2 b 0 qn 2 off ic=0.6,5
M1 d g 0 0 nch w=20u l=2u
M2 d g 0 0 nch
`, subckt.Flat)
	require.Len(t, devs, 4)

	q1, q2 := devs[0].(*device.BJT), devs[1].(*device.BJT)
	assert.Same(t, q1.Model(), q2.Model())
	assert.False(t, q1.Off)
	assert.True(t, q2.Off)
	assert.Equal(t, 2.0, q2.Area.Value)
	assert.True(t, q2.Area.Given)
	assert.Equal(t, []string{"c2", "b", "0"}, q2.GetNodeNames())

	m1, m2 := devs[2].(*device.Mosfet), devs[3].(*device.Mosfet)
	assert.Same(t, m1.Model(), m2.Model())
}

func TestBuilderBJTSubstrate(t *testing.T) {
	devs := build(t, "t\n.model qp pnp\nQ1 c b e s qp\n", subckt.Flat)
	assert.Equal(t, []string{"c", "b", "e", "s"}, devs[0].GetNodeNames())
}

func TestBuilderUndefinedModel(t *testing.T) {
	for _, deck := range []string{
		"t\nQ1 c b 0 qmissing\n",
		"t\nM1 d g 0 0 nmissing\n",
		"t\nD1 a 0 dmissing\n",
	} {
		data, err := Parse(deck)
		require.NoError(t, err)
		_, err = NewBuilder(data, subckt.Flat).Devices()
		assert.ErrorIs(t, err, ErrUndefinedModel, deck)
	}
}

func TestBuilderModelTypeMismatch(t *testing.T) {
	data, err := Parse("t\n.model dd d\nQ1 c b 0 dd\n")
	require.NoError(t, err)
	_, err = NewBuilder(data, subckt.Flat).Devices()
	assert.Error(t, err)
}

func TestBuilderSources(t *testing.T) {
	devs := build(t, `sources
V1 1 0 SIN(0.5 1 1k 90) AC 2 45
I1 0 2 PULSE(0 1m 0 1n 1n 1u 2u)
V2 3 0 PWL(0 0 1m 1)
V3 4 0 5
`, subckt.Flat)

	v1 := devs[0].(*device.VoltageSource)
	assert.Equal(t, device.SIN, v1.Type)
	assert.Equal(t, 0.5, v1.DC)
	assert.Equal(t, 90.0, v1.Phase)
	mag, phase := v1.AC()
	assert.Equal(t, 2.0, mag)
	assert.Equal(t, 45.0, phase)

	i1 := devs[1].(*device.CurrentSource)
	assert.Equal(t, device.PULSE, i1.Type)
	assert.InDelta(t, 1e-3, i1.V2, 1e-15)

	v2 := devs[2].(*device.VoltageSource)
	assert.Equal(t, device.PWL, v2.Type)
	assert.Equal(t, []float64{0, 1}, v2.Values)

	v3 := devs[3].(*device.VoltageSource)
	assert.Equal(t, device.DC, v3.Type)
	assert.Equal(t, 5.0, v3.DC)
}

func TestBuilderBadSources(t *testing.T) {
	for _, deck := range []string{
		"t\nV1 1 0 SIN(0 1)\n",
		"t\nV1 1 0 PULSE(0 1 0)\n",
		"t\nV1 1 0 PWL(0 0 0 1)\n",
		"t\nV1 1 0 PWL(0 0 1)\n",
	} {
		data, err := Parse(deck)
		require.NoError(t, err)
		_, err = NewBuilder(data, subckt.Flat).Devices()
		assert.Error(t, err, deck)
	}
}

func TestBuilderCoupledInductors(t *testing.T) {
	devs := build(t, "t\nL1 1 0 1m ic=1m\nL2 2 0 4m\nK1 L1 L2 0.5\n", subckt.Flat)
	require.Len(t, devs, 3)
	l1 := devs[0].(*device.Inductor)
	assert.True(t, l1.IC.Given)

	data, err := Parse("t\nL1 1 0 1m\nK1 L1 L9 0.5\n")
	require.NoError(t, err)
	_, err = NewBuilder(data, subckt.Flat).Devices()
	assert.Error(t, err)
}

func TestBuilderInstances(t *testing.T) {
	deck := `t
.subckt half a b
R1 a b 1k
.ends
.subckt full a c
X1 a mid half
X2 mid c half mode=flat
.ends
X1 1 0 full
X2 1 0 full mode=local iter=4
`
	data, err := Parse(deck)
	require.NoError(t, err)
	b := NewBuilder(data, subckt.Flat)
	b.MaxLocalIterations = 2
	devs, err := b.Devices()
	require.NoError(t, err)

	x1, x2 := devs[0].(*subckt.Instance), devs[1].(*subckt.Instance)
	assert.Equal(t, subckt.Flat, x1.Mode())
	assert.Equal(t, 2, x1.MaxLocalIterations)
	assert.Equal(t, subckt.Local, x2.Mode())
	assert.Equal(t, 4, x2.MaxLocalIterations)
	assert.Same(t, x1.Definition(), x2.Definition())

	children, err := x1.Definition().Build("X1")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "X1/X1", children[0].GetName())
	assert.Equal(t, "X1/X2", children[1].GetName())

	data, err = Parse("t\n.subckt s a\n.ends\nX1 1 s mode=nested\n")
	require.NoError(t, err)
	_, err = NewBuilder(data, subckt.Flat).Devices()
	assert.Error(t, err)
}
