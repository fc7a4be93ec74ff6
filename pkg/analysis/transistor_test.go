package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/semispice/pkg/device"
)

func chargedBJTModel(t *testing.T) *device.BJTModel {
	t.Helper()
	model := device.NewBJTModel("qn", "npn")
	require.NoError(t, model.SetParameters(map[string]float64{
		"vaf": 50, "cje": 1e-12, "cjc": 5e-13, "cjs": 2e-13, "tf": 1e-10, "tr": 1e-8,
	}))
	return model
}

func TestBJTTransientHoldsOperatingPoint(t *testing.T) {
	ckt := newCircuit(t,
		device.NewDCVoltageSource("VCC", []string{"vcc", "0"}, 5),
		device.NewDCVoltageSource("VB", []string{"in", "0"}, 0.72),
		device.NewResistor("RB", []string{"in", "b"}, 1e3),
		device.NewResistor("RC", []string{"vcc", "c"}, 1e3),
		device.NewBJT("Q1", []string{"c", "b", "0"}, chargedBJTModel(t)),
	)
	res := run(t, NewTransient(0, 1e-6, 1e-8, 0, false), ckt)

	vc := res["V(c)"]
	require.Greater(t, len(vc), 100)
	assert.Less(t, vc[0], 5.0)
	for i := range vc {
		assert.InDelta(t, vc[0], vc[i], 1e-7, "t=%g", res["TIME"][i])
		assert.InDelta(t, res["V(b)"][0], res["V(b)"][i], 1e-7)
	}
}

func TestCMOSInverterSwitches(t *testing.T) {
	nmod := device.NewMosfetModel("nch", "nmos")
	require.NoError(t, nmod.SetParameters(map[string]float64{
		"vto": 1, "kp": 2e-5, "lambda": 0.02, "tox": 1e-7,
		"cgso": 1e-10, "cgdo": 1e-10, "cbd": 1e-14, "cbs": 1e-14,
	}))
	pmod := device.NewMosfetModel("pch", "pmos")
	require.NoError(t, pmod.SetParameters(map[string]float64{
		"vto": -1, "kp": 2e-5, "lambda": 0.02, "tox": 1e-7,
		"cgso": 1e-10, "cgdo": 1e-10, "cbd": 1e-14, "cbs": 1e-14,
	}))
	mn := device.NewMosfet("MN", []string{"out", "in", "0", "0"}, nmod)
	mp := device.NewMosfet("MP", []string{"out", "in", "vdd", "vdd"}, pmod)
	require.NoError(t, mn.SetParameter("w", 10e-6))
	require.NoError(t, mn.SetParameter("l", 1e-6))
	require.NoError(t, mp.SetParameter("w", 20e-6))
	require.NoError(t, mp.SetParameter("l", 1e-6))

	ckt := newCircuit(t,
		device.NewDCVoltageSource("VDD", []string{"vdd", "0"}, 5),
		device.NewPulseVoltageSource("VIN", []string{"in", "0"}, 0, 5, 5e-9, 1e-9, 1e-9, 1, 2),
		mn, mp,
		device.NewCapacitor("CL", []string{"out", "0"}, 1e-13),
	)
	res := run(t, NewTransient(0, 6e-8, 5e-10, 0, false), ckt)

	out := res["V(out)"]
	require.NotEmpty(t, out)
	assert.InDelta(t, 5, out[0], 1e-3)
	assert.Less(t, out[len(out)-1], 0.05)
	assert.GreaterOrEqual(t, out[len(out)-1], -0.05)
	for i, tm := range res["TIME"] {
		if tm < 5e-9 {
			assert.InDelta(t, 5, out[i], 1e-3, "t=%g", tm)
		}
	}
	// the gate charge is stored at the final bias
	assert.Greater(t, mn.OperatingPoint().Cgs, 0.0)
}

func TestCommonEmitterGain(t *testing.T) {
	const rc = 1e3
	q := device.NewBJT("Q1", []string{"c", "b", "0"}, chargedBJTModel(t))
	ckt := newCircuit(t,
		device.NewDCVoltageSource("VCC", []string{"vcc", "0"}, 5),
		device.NewACVoltageSource("VB", []string{"b", "0"}, 0.7, 1, 0),
		device.NewResistor("RC", []string{"vcc", "c"}, rc),
		q,
	)
	res := run(t, NewAC(1, 1e9, 1, "dec"), ckt)

	op := q.OperatingPoint()
	require.Greater(t, op.Gm, 0.0)
	require.Greater(t, op.Go, 0.0)
	want := op.Gm * rc / (1 + op.Go*rc)

	mag := res["V(c)_MAG"]
	require.Len(t, mag, 10)
	assert.InEpsilon(t, want, mag[0], 1e-6)
	assert.InDelta(t, 180, math.Abs(res["V(c)_PHASE"][0]), 1e-3)
	// the junction capacitances roll the gain off
	assert.Less(t, mag[9], mag[0])
}

func TestCommonSourceGain(t *testing.T) {
	const rd = 1e4
	model := device.NewMosfetModel("nch", "nmos")
	require.NoError(t, model.SetParameters(map[string]float64{"vto": 1, "kp": 2e-5, "lambda": 0.02}))
	mos := device.NewMosfet("M1", []string{"d", "g", "0", "0"}, model)
	ckt := newCircuit(t,
		device.NewDCVoltageSource("VDD", []string{"vdd", "0"}, 5),
		device.NewACVoltageSource("VG", []string{"g", "0"}, 2, 1, 0),
		device.NewResistor("RD", []string{"vdd", "d"}, rd),
		mos,
	)
	res := run(t, NewAC(1e3, 1e3, 1, "lin"), ckt)

	op := mos.OperatingPoint()
	require.Greater(t, op.Vds, op.Vgs-1)
	want := op.Gm * rd / (1 + op.Gds*rd)
	assert.InEpsilon(t, want, res["V(d)_MAG"][0], 1e-6)
	assert.InDelta(t, 180, math.Abs(res["V(d)_PHASE"][0]), 1e-3)
}

func TestOperatingPointConvergenceCheck(t *testing.T) {
	model := device.NewMosfetModel("nch", "nmos")
	require.NoError(t, model.SetParameters(map[string]float64{"vto": 1, "kp": 2e-5}))
	mos := device.NewMosfet("M1", []string{"d", "g", "0", "0"}, model)
	q := device.NewBJT("Q1", []string{"c", "b", "0"}, device.NewBJTModel("qn", "npn"))
	ckt := newCircuit(t,
		device.NewDCVoltageSource("VDD", []string{"vdd", "0"}, 5),
		device.NewDCVoltageSource("VG", []string{"g", "0"}, 2),
		device.NewDCVoltageSource("VB", []string{"b", "0"}, 0.7),
		device.NewResistor("RD", []string{"vdd", "d"}, 1e4),
		device.NewResistor("RC", []string{"vdd", "c"}, 1e3),
		mos, q,
	)
	run(t, NewOP(), ckt)

	for _, tc := range []struct {
		name string
		dev  interface{ IsConvergent() bool }
		node string
	}{
		{"mosfet", mos, "g"},
		{"bjt", q, "b"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ckt.Status.ResetConvergence()
			assert.True(t, tc.dev.IsConvergent())
			assert.True(t, ckt.Status.IsConvergent())

			sol := ckt.GetMatrix().Solution()
			idx := ckt.GetNodeMap()[tc.node]
			sol[idx] += 0.05
			defer func() { sol[idx] -= 0.05 }()
			assert.False(t, tc.dev.IsConvergent())
			assert.False(t, ckt.Status.IsConvergent())
		})
	}
}
