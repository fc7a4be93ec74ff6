package device

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/pkg/matrix"
)

// testVars numbers nodes in the order they are first seen.
type testVars struct {
	n     int
	nodes map[string]int
}

func newTestVars() *testVars {
	return &testVars{nodes: map[string]int{}}
}

func (v *testVars) MapNode(name string) int {
	if name == "0" || name == "gnd" {
		return 0
	}
	if idx, ok := v.nodes[name]; ok {
		return idx
	}
	v.n++
	v.nodes[name] = v.n
	return v.n
}

func (v *testVars) CreatePrivate(string) int {
	v.n++
	return v.n
}

// bind sets up devs against a fresh real matrix and scales them to the
// status temperature.
func bind(t *testing.T, status *CircuitStatus, devs ...Device) *matrix.CircuitMatrix {
	t.Helper()
	vars := newTestVars()
	for _, d := range devs {
		require.NoError(t, d.Setup(context.Background(), vars, status))
	}
	m, err := matrix.NewMatrix(vars.n, false)
	require.NoError(t, err)
	t.Cleanup(m.Destroy)
	for _, d := range devs {
		require.NoError(t, d.Bind(&BindContext{Solver: m}))
		if tp, ok := d.(Temperaturer); ok {
			require.NoError(t, tp.Temperature())
		}
	}
	return m
}

func rowSums(m *matrix.CircuitMatrix) (rows []float64, rhs float64) {
	n := m.Size()
	rows = make([]float64, n+1)
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			rows[i] += m.GetElement(i, j).Value()
		}
		rhs += m.GetRHS(i).Value()
	}
	return rows, rhs
}

func TestResistorStamp(t *testing.T) {
	r := NewResistor("R1", []string{"a", "b"}, 2e3)
	m := bind(t, NewCircuitStatus(), r)
	require.NoError(t, r.Load())

	assert.InDelta(t, 5e-4, m.GetElement(1, 1).Value(), 1e-15)
	assert.InDelta(t, -5e-4, m.GetElement(1, 2).Value(), 1e-15)
	assert.InDelta(t, -5e-4, m.GetElement(2, 1).Value(), 1e-15)
	assert.InDelta(t, 5e-4, m.GetElement(2, 2).Value(), 1e-15)
}

func TestResistorRejectsZero(t *testing.T) {
	r := NewResistor("R1", []string{"a", "0"}, 0)
	err := r.Setup(context.Background(), newTestVars(), NewCircuitStatus())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidModel))

	var devErr *Error
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "R1", devErr.Device)
}

func TestParamTable(t *testing.T) {
	model := NewBJTModel("q", "npn")
	require.NoError(t, model.SetParameters(map[string]float64{"BF": 120, "is": 2e-15}))
	assert.Equal(t, 120.0, model.BF.Value)
	assert.True(t, model.BF.Given)
	assert.Equal(t, 2e-15, model.IS.Value)

	err := model.SetParameter("bogus", 1)
	assert.True(t, errors.Is(err, ErrUnknownParameter))

	require.NoError(t, model.SetParameter("VA", 60))
	assert.Equal(t, 60.0, model.VAF.Value)

	// names sorted before the unknown one are kept
	err = model.SetParameters(map[string]float64{"bf": 90, "zeta": 1})
	assert.True(t, errors.Is(err, ErrUnknownParameter))
	assert.Equal(t, 90.0, model.BF.Value)

	mos := NewMosfetModel("n", "nmos")
	require.NoError(t, mos.SetParameter("VT0", 0.8))
	assert.True(t, mos.VTO.Given)
	assert.True(t, errors.Is(mos.SetParameter("beta", 1), ErrUnknownParameter))
}

func TestBJTSetupErrors(t *testing.T) {
	q := NewBJT("Q1", []string{"c", "b", "e"}, nil)
	err := q.Setup(context.Background(), newTestVars(), NewCircuitStatus())
	assert.True(t, errors.Is(err, ErrMissingModel))

	q = NewBJT("Q2", []string{"c", "b"}, NewBJTModel("q", "npn"))
	err = q.Setup(context.Background(), newTestVars(), NewCircuitStatus())
	assert.True(t, errors.Is(err, ErrNodeCount))

	q = NewBJT("Q3", []string{"c", "b", "e"}, NewBJTModel("q", "npn"))
	assert.True(t, errors.Is(q.SetIC([]float64{0.6, 1, 2}), ErrBadInitialCondition))
}

func TestBJTStampConservesCurrent(t *testing.T) {
	for _, kind := range []string{"npn", "pnp"} {
		t.Run(kind, func(t *testing.T) {
			model := NewBJTModel("q", kind)
			require.NoError(t, model.SetParameters(map[string]float64{
				"bf": 100, "vaf": 50, "ikf": 0.1, "rb": 100, "rc": 10, "re": 1,
			}))
			q := NewBJT("Q1", []string{"c", "b", "e"}, model)
			status := NewCircuitStatus()
			status.Init = InitJunction

			m := bind(t, status, q)
			require.Equal(t, 6, m.Size())
			require.NoError(t, q.Load())

			rows, rhs := rowSums(m)
			for i := 1; i <= m.Size(); i++ {
				assert.InDelta(t, 0, rows[i], 1e-9, "row %d", i)
			}
			assert.InDelta(t, 0, rhs, 1e-12)

			op := q.OperatingPoint()
			assert.Greater(t, op.Ic, 0.0)
			assert.Greater(t, op.Ib, 0.0)
			assert.Greater(t, op.Gm, 0.0)
		})
	}
}

func TestBJTTemperatureIdempotent(t *testing.T) {
	model := NewBJTModel("q", "npn")
	require.NoError(t, model.SetParameters(map[string]float64{"cje": 1e-12, "cjc": 5e-13, "xti": 3, "fc": 1}))
	q := NewBJT("Q1", []string{"c", "b", "e"}, model)
	status := NewCircuitStatus()
	bind(t, status, q)

	first, firstModel := q.t, model.temp
	require.NoError(t, q.Temperature())
	if diff := cmp.Diff(first, q.t, cmp.AllowUnexported(bjtTemp{})); diff != "" {
		t.Errorf("second Temperature changed state (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(firstModel, model.temp, cmp.AllowUnexported(bjtModelTemp{})); diff != "" {
		t.Errorf("second Temperature changed the model (-first +second):\n%s", diff)
	}
	// the forward-bias extension follows the clamped FC
	assert.Equal(t, 0.9999, model.temp.fc)
	assert.Equal(t, NewJunction(q.t.be.Pot, model.MJE.Value, 0.9999), q.t.be)

	status.Temp = 100 + consts.KELVIN
	require.NoError(t, q.Temperature())
	assert.Greater(t, q.t.is, first.is)
	assert.Less(t, q.t.vcrit, first.vcrit)
	assert.InDelta(t, thermal(status.Temp), q.t.vt, 1e-15)
}

func TestBJTInstanceTemperature(t *testing.T) {
	q := NewBJT("Q1", []string{"c", "b", "e"}, NewBJTModel("q", "npn"))
	require.NoError(t, q.SetParameter("temp", 50))
	bind(t, NewCircuitStatus(), q)
	assert.InDelta(t, 50+consts.KELVIN, q.t.temp, 1e-12)
}

func newTestMosfet(t *testing.T, params map[string]float64) *Mosfet {
	t.Helper()
	model := NewMosfetModel("n", "nmos")
	require.NoError(t, model.SetParameters(params))
	m := NewMosfet("M1", []string{"d", "g", "s", "b"}, model)
	bind(t, NewCircuitStatus(), m)
	return m
}

func TestMosfetDrainSourceSymmetry(t *testing.T) {
	m := newTestMosfet(t, map[string]float64{"vto": 1, "kp": 2e-5, "gamma": 0.4, "lambda": 0.02})

	normal := m.evaluate(3, 1, 0)
	swapped := m.evaluate(2, -1, -1)

	assert.Equal(t, 1.0, normal.mode)
	assert.Equal(t, -1.0, swapped.mode)
	assert.InDelta(t, normal.cdrain, swapped.cdrain, 1e-18)
	assert.InDelta(t, normal.gm, swapped.gm, 1e-18)
	assert.InDelta(t, normal.gds, swapped.gds, 1e-18)
	assert.Greater(t, normal.cdrain, 0.0)
}

func TestMosfetCutoff(t *testing.T) {
	m := newTestMosfet(t, map[string]float64{"vto": 1})

	b := m.evaluate(0.5, 2, 0)
	assert.Zero(t, b.cdrain)
	assert.Zero(t, b.gm)
	assert.Zero(t, b.gds)
	assert.Zero(t, b.gmbs)
	assert.Zero(t, b.vdsat)
}

func TestMosfetSaturationCurrent(t *testing.T) {
	m := newTestMosfet(t, map[string]float64{"vto": 1, "kp": 2e-5})

	// W = L so beta equals kp at the nominal temperature
	b := m.evaluate(3, 5, 0)
	assert.InEpsilon(t, 0.5*m.t.beta*4, b.cdrain, 1e-12)
	assert.InEpsilon(t, m.t.beta*2, b.gm, 1e-12)
	assert.InEpsilon(t, 2e-5, m.t.beta, 1e-9)
}

func TestMosfetNodeCount(t *testing.T) {
	m := NewMosfet("M1", []string{"d", "g", "s"}, NewMosfetModel("n", "nmos"))
	err := m.Setup(context.Background(), newTestVars(), NewCircuitStatus())
	assert.True(t, errors.Is(err, ErrNodeCount))
}

func TestCircuitStatus(t *testing.T) {
	s := NewCircuitStatus()
	assert.True(t, s.IsConvergent())
	s.SetNonConvergent()
	assert.False(t, s.IsConvergent())

	child := &CircuitStatus{}
	child.SyncFrom(s)
	assert.True(t, child.IsConvergent())
	assert.Equal(t, s.Temp, child.Temp)
	assert.Equal(t, s.Init, child.Init)

	s.ResetConvergence()
	assert.True(t, s.IsConvergent())

	assert.InDelta(t, 1e-3*2+1e-12, s.Tolerance(1, -2), 1e-18)
	assert.Equal(t, "junction", InitJunction.String())
	assert.Equal(t, "float", InitFloat.String())
	assert.False(t, math.IsNaN(s.Tolerance(0, 0)))
}

func TestBJTConvergenceBoundary(t *testing.T) {
	q := NewBJT("Q1", []string{"c", "b", "e"}, NewBJTModel("q", "npn"))
	status := NewCircuitStatus()
	status.Init = InitJunction
	m := bind(t, status, q)
	require.NoError(t, q.Load())

	// put the solution exactly on the linearization point
	vbe := q.OperatingPoint().Vbe
	sol := m.Solution()
	sol[1], sol[2], sol[3] = vbe, vbe, 0
	assert.True(t, q.IsConvergent())
	assert.True(t, status.IsConvergent())

	sol[2] += 0.05
	assert.False(t, q.IsConvergent())
	assert.False(t, status.IsConvergent())
}

func TestMosfetConvergenceBoundary(t *testing.T) {
	model := NewMosfetModel("n", "nmos")
	require.NoError(t, model.SetParameters(map[string]float64{"vto": 1, "kp": 2e-5}))
	mos := NewMosfet("M1", []string{"d", "g", "s", "b"}, model)
	require.NoError(t, mos.SetIC([]float64{3, 2}))
	status := NewCircuitStatus()
	status.Init = InitJunction
	status.UseIc = true
	m := bind(t, status, mos)
	require.NoError(t, mos.Load())

	op := mos.OperatingPoint()
	require.Greater(t, op.Id, 0.0)
	sol := m.Solution()
	sol[1], sol[2], sol[3], sol[4] = op.Vds, op.Vgs, 0, op.Vbs
	assert.True(t, mos.IsConvergent())
	assert.True(t, status.IsConvergent())

	sol[2] += 0.05
	assert.False(t, mos.IsConvergent())
	assert.False(t, status.IsConvergent())
}

func TestMosfetTemperatureIdempotent(t *testing.T) {
	model := NewMosfetModel("n", "nmos")
	require.NoError(t, model.SetParameters(map[string]float64{
		"nsub": 1e15, "tox": 1e-7, "cj": 2e-4, "cjsw": 1e-9, "ld": 1e-7,
	}))
	mos := NewMosfet("M1", []string{"d", "g", "s", "b"}, model)
	for name, v := range map[string]float64{"w": 1e-5, "l": 2e-6, "ad": 1e-10, "as": 1e-10, "pd": 4e-5, "ps": 4e-5} {
		require.NoError(t, mos.SetParameter(name, v))
	}
	status := NewCircuitStatus()
	bind(t, status, mos)

	first, firstModel := mos.t, model.temp
	require.NoError(t, mos.Temperature())
	if diff := cmp.Diff(first, mos.t, cmp.AllowUnexported(mosTemp{})); diff != "" {
		t.Errorf("second Temperature changed state (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(firstModel, model.temp, cmp.AllowUnexported(mosModelTemp{})); diff != "" {
		t.Errorf("second Temperature changed the model (-first +second):\n%s", diff)
	}
	// derived process values never become given ones
	assert.False(t, model.VTO.Given)
	assert.False(t, model.GAMMA.Given)

	status.Temp = 100 + consts.KELVIN
	require.NoError(t, mos.Temperature())
	assert.Less(t, mos.t.kp, first.kp)
	assert.NotEqual(t, first.vto, mos.t.vto)
	assert.InDelta(t, thermal(status.Temp), mos.t.vt, 1e-15)
}
