package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/netlist"
)

func newCircuit(t *testing.T, devs ...device.Device) *circuit.Circuit {
	t.Helper()
	ckt := circuit.New(t.Name())
	ckt.Add(devs...)
	t.Cleanup(ckt.Destroy)
	return ckt
}

func run(t *testing.T, a Analysis, ckt *circuit.Circuit) map[string][]float64 {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.Setup(ctx, ckt))
	require.NoError(t, a.Execute(ctx))
	return a.GetResults()
}

func divider(t *testing.T, v float64) *circuit.Circuit {
	return newCircuit(t,
		device.NewDCVoltageSource("V1", []string{"1", "0"}, v),
		device.NewResistor("R1", []string{"1", "2"}, 1e3),
		device.NewResistor("R2", []string{"2", "0"}, 1e3),
	)
}

func TestOperatingPointDivider(t *testing.T) {
	res := run(t, NewOP(), divider(t, 10))

	assert.InDelta(t, 10, res["V(1)"][0], 1e-9)
	assert.InDelta(t, 5, res["V(2)"][0], 1e-6)
	// current enters the positive terminal from the circuit
	assert.InDelta(t, -5e-3, res["I(V1)"][0], 1e-9)
}

func TestOperatingPointBJT(t *testing.T) {
	model := device.NewBJTModel("qn", "npn")
	require.NoError(t, model.SetParameters(map[string]float64{"is": 1e-16, "bf": 100}))
	ckt := newCircuit(t,
		device.NewDCVoltageSource("V1", []string{"b", "0"}, 0.7),
		device.NewDCVoltageSource("V2", []string{"c", "0"}, 5),
		device.NewBJT("Q1", []string{"c", "b", "0"}, model),
	)
	res := run(t, NewOP(), ckt)

	vt := consts.REFTEMP * consts.KOVERQ
	ic := -res["I(V2)"][0]
	ib := -res["I(V1)"][0]
	ie := ic + ib
	assert.InEpsilon(t, 1e-16*(math.Exp(0.7/vt)-1), ic, 0.01)
	// the collector carries BF/(BF+1) of the emitter current
	assert.InEpsilon(t, ie*100/101, ic, 0.01)
	assert.InEpsilon(t, ic/100, ib, 0.01)
}

func TestOperatingPointNoConvergence(t *testing.T) {
	ckt := divider(t, 1)
	op := NewOP()
	op.Settings.Itl1 = 1
	op.Settings.GminSteps = 0
	op.Settings.SrcSteps = 0

	ctx := context.Background()
	require.NoError(t, op.Setup(ctx, ckt))
	err := op.Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestDCSweepRestoresSource(t *testing.T) {
	ckt := divider(t, 3)
	res := run(t, NewDCSweep(Sweep{Source: "V1", Start: 0, Stop: 2, Increment: 0.5}), ckt)

	require.Len(t, res["SWEEP1"], 5)
	for i, v := range res["SWEEP1"] {
		assert.InDelta(t, v/2, res["V(2)"][i], 1e-6)
	}
	src := ckt.Device("V1").(*device.VoltageSource)
	assert.Equal(t, 3.0, src.DC)
}

func TestDCSweepResistor(t *testing.T) {
	ckt := divider(t, 2)
	res := run(t, NewDCSweep(Sweep{Source: "R2", Start: 1e3, Stop: 3e3, Increment: 1e3}), ckt)

	assert.InDelta(t, 1, res["V(2)"][0], 1e-6)
	assert.InDelta(t, 1.5, res["V(2)"][2], 1e-6)
	r2 := ckt.Device("R2").(*device.Resistor)
	assert.Equal(t, 1e3, r2.Value)
}

func TestDCSweepDiodeCurve(t *testing.T) {
	ckt := newCircuit(t,
		device.NewDCVoltageSource("V1", []string{"a", "0"}, 0),
		device.NewResistor("R1", []string{"a", "d"}, 1e3),
		device.NewDiode("D1", []string{"d", "0"}),
	)
	res := run(t, NewDCSweep(Sweep{Source: "V1", Start: 0, Stop: 5, Increment: 0.25}), ckt)

	vd := res["V(d)"]
	require.Len(t, vd, 21)
	for i := 1; i < len(vd); i++ {
		assert.Greater(t, vd[i], vd[i-1])
	}
	assert.Less(t, vd[len(vd)-1], 0.8)
}

func TestDCSweepNested(t *testing.T) {
	ckt := newCircuit(t,
		device.NewDCVoltageSource("V1", []string{"a", "0"}, 0),
		device.NewDCVoltageSource("V2", []string{"b", "0"}, 0),
		device.NewResistor("R1", []string{"a", "m"}, 1e3),
		device.NewResistor("R2", []string{"b", "m"}, 1e3),
	)
	res := run(t, NewDCSweep(
		Sweep{Source: "V1", Start: 0, Stop: 1, Increment: 1},
		Sweep{Source: "V2", Start: 0, Stop: 2, Increment: 2},
	), ckt)

	assert.Equal(t, []float64{0, 1, 0, 1}, res["SWEEP1"])
	assert.Equal(t, []float64{0, 0, 2, 2}, res["SWEEP2"])
	for i := range res["SWEEP1"] {
		assert.InDelta(t, (res["SWEEP1"][i]+res["SWEEP2"][i])/2, res["V(m)"][i], 1e-6)
	}
}

func TestSweepValues(t *testing.T) {
	vals, err := Sweep{Source: "V1", Start: 1, Stop: 0, Increment: -0.25}.values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.75, 0.5, 0.25, 0}, vals)

	_, err = Sweep{Source: "V1", Start: 0, Stop: 1, Increment: -0.1}.values()
	assert.Error(t, err)
	_, err = Sweep{Source: "V1", Start: 0, Stop: 1}.values()
	assert.Error(t, err)
}

func TestTransientRCCharge(t *testing.T) {
	const (
		r   = 1e3
		c   = 1e-6
		tau = r * c
	)
	capacitor := device.NewCapacitor("C1", []string{"out", "0"}, c)
	capacitor.IC.Set(0)
	ckt := newCircuit(t,
		device.NewDCVoltageSource("V1", []string{"in", "0"}, 1),
		device.NewResistor("R1", []string{"in", "out"}, r),
		capacitor,
	)
	res := run(t, NewTransient(0, 2*tau, tau/100, 0, true), ckt)

	times := res["TIME"]
	require.GreaterOrEqual(t, len(times), 200)
	assert.Zero(t, times[0])
	assert.InDelta(t, 2*tau, times[len(times)-1], 1e-12)
	for i, tm := range times {
		want := 1 - math.Exp(-tm/tau)
		assert.InDelta(t, want, res["V(out)"][i], 2e-3, "t=%g", tm)
	}
}

func TestTransientStartsFromOperatingPoint(t *testing.T) {
	ckt := newCircuit(t,
		device.NewPulseVoltageSource("V1", []string{"in", "0"}, 1, 2, 1e-3, 1e-6, 1e-6, 1, 2),
		device.NewResistor("R1", []string{"in", "out"}, 1e3),
		device.NewCapacitor("C1", []string{"out", "0"}, 1e-9),
	)
	res := run(t, NewTransient(0, 5e-4, 1e-5, 0, false), ckt)

	// the pulse has not started, the capacitor holds the DC point
	for i := range res["TIME"] {
		assert.InDelta(t, 1, res["V(out)"][i], 1e-6)
	}
}

func TestTransientRejectsBadParameters(t *testing.T) {
	err := NewTransient(0, 0, 1e-6, 0, false).Setup(context.Background(), divider(t, 1))
	assert.Error(t, err)
}

func TestACCorner(t *testing.T) {
	const (
		r = 1e3
		c = 1e-6
	)
	fc := 1 / (2 * math.Pi * r * c)
	ckt := newCircuit(t,
		device.NewACVoltageSource("V1", []string{"in", "0"}, 0, 1, 0),
		device.NewResistor("R1", []string{"in", "out"}, r),
		device.NewCapacitor("C1", []string{"out", "0"}, c),
	)
	res := run(t, NewAC(fc, fc, 1, "lin"), ckt)

	require.Len(t, res["FREQ"], 1)
	assert.InDelta(t, 1/math.Sqrt2, res["V(out)_MAG"][0], 1e-6)
	assert.InDelta(t, -45, res["V(out)_PHASE"][0], 1e-4)
	assert.InDelta(t, 1, res["V(in)_MAG"][0], 1e-9)
}

func TestFrequencyPoints(t *testing.T) {
	freqs, err := frequencyPoints("DEC", 1, 1000, 10)
	require.NoError(t, err)
	require.Len(t, freqs, 31)
	assert.InEpsilon(t, 1000, freqs[30], 1e-9)
	assert.InEpsilon(t, math.Pow(10, 0.1), freqs[1], 1e-12)

	freqs, err = frequencyPoints("OCT", 100, 800, 2)
	require.NoError(t, err)
	assert.Len(t, freqs, 7)

	freqs, err = frequencyPoints("LIN", 0, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 25, 50, 75, 100}, freqs)

	_, err = frequencyPoints("DEC", 0, 100, 5)
	assert.Error(t, err)
	_, err = frequencyPoints("LOG", 1, 100, 5)
	assert.Error(t, err)
}

func TestResistorNoise(t *testing.T) {
	src := device.NewACVoltageSource("V1", []string{"in", "0"}, 0, 0.5, 30)
	ckt := newCircuit(t,
		src,
		device.NewResistor("R1", []string{"in", "out"}, 1e3),
		device.NewResistor("R2", []string{"out", "0"}, 1e3),
	)
	res := run(t, NewNoise("out", "0", "V1", "dec", 1, 100, 1e4), ckt)

	// both resistors see 500 ohm at the output
	want := math.Sqrt(4 * consts.BOLTZMANN * consts.REFTEMP * 500)
	require.Len(t, res["FREQ"], 3)
	for i := range res["FREQ"] {
		assert.InEpsilon(t, want, res["ONOISE"][i], 1e-6)
		assert.InEpsilon(t, 2*want, res["INOISE"][i], 1e-6)
	}

	mag, phase := src.AC()
	assert.Equal(t, 0.5, mag)
	assert.Equal(t, 30.0, phase)
}

func TestFromNetlist(t *testing.T) {
	data, err := netlist.Parse(`rc filter
V1 in 0 DC 0 AC 1
R1 in out 1k
C1 out 0 1u
.ac dec 5 10 10k
.end
`)
	require.NoError(t, err)

	a, err := FromNetlist(data, Settings{Itl1: 50, Itl4: 5, GminSteps: 3, SrcSteps: 3})
	require.NoError(t, err)
	ac, ok := a.(*ACAnalysis)
	require.True(t, ok)
	assert.Equal(t, 50, ac.Settings.Itl1)

	ckt, err := circuit.NewFromNetlist(data, 0, 1)
	require.NoError(t, err)
	t.Cleanup(ckt.Destroy)
	res := run(t, a, ckt)
	assert.Len(t, res["FREQ"], 16)
	assert.Greater(t, res["V(out)_MAG"][0], res["V(out)_MAG"][15])
}
