package netlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1k", 1e3},
		{"1meg", 1e6},
		{"1MEG", 1e6},
		{"10pF", 10e-12},
		{"25mil", 25 * 25.4e-6},
		{"4.7u", 4.7e-6},
		{"1m", 1e-3},
		{"-2.5e-3", -2.5e-3},
		{".5", 0.5},
		{"3V", 3},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseValue(tc.in)
			require.NoError(t, err)
			assert.InEpsilon(t, tc.want, got, 1e-12)
		})
	}

	for _, bad := range []string{"", "k1", "1.2.3", "abc"} {
		_, err := ParseValue(bad)
		assert.ErrorIs(t, err, ErrSyntax, bad)
	}
}

const amplifier = `* common emitter stage
.model qn npn(is=1e-15 bf=150 vaf=80)
.model dclamp d is=1e-14 n=1.05
.subckt bias vcc out
R1 vcc out 47k
D1 out 0 dclamp
.ends
V1 vcc 0 DC 12
VIN in 0 DC 0 AC 1 90 SIN(0 10m 1k)
IB 0 b PULSE(0 1u 0 1n 1n 1m 2m)
VP p 0 PWL(0 0 1m 1 2m 0)
C1 in b 1u ic=0.5
R2 vcc c 4.7k ; collector load
Q1 c b 0 qn
+ area=2
XB vcc b bias mode=local iter=3
.options reltol=1e-4 ITL1=200 noopiter
.temp 50
.noise v(c, 0) VIN dec 10 10 100k
.end
R9 never parsed 1
`

func TestParseDeck(t *testing.T) {
	data, err := Parse(amplifier)
	require.NoError(t, err)

	assert.Equal(t, "common emitter stage", data.Title)
	assert.Len(t, data.Elements, 8)

	qn := data.Models["qn"]
	assert.Equal(t, "npn", qn.Type)
	assert.Equal(t, map[string]float64{"is": 1e-15, "bf": 150, "vaf": 80}, qn.Params)
	assert.Equal(t, "d", data.Models["dclamp"].Type)

	bias := data.Subckts["bias"]
	require.NotNil(t, bias)
	assert.Equal(t, []string{"vcc", "out"}, bias.Pins)
	assert.Len(t, bias.Elements, 2)

	vin := data.Elements[1]
	assert.Equal(t, "V", vin.Type)
	assert.Equal(t, "sin", vin.Params["type"])
	assert.Equal(t, "0 10m 1k", vin.Params["sin"])
	assert.Equal(t, "1", vin.Params["ac"])
	assert.Equal(t, "90", vin.Params["acphase"])

	assert.Equal(t, "pulse", data.Elements[2].Params["type"])
	assert.Equal(t, "pwl", data.Elements[3].Params["type"])
	assert.Equal(t, "0.5", data.Elements[4].Params["ic"])

	q1 := data.Elements[6]
	assert.Equal(t, []string{"c", "b", "0", "qn"}, q1.Args)
	assert.Equal(t, "2", q1.Params["area"])

	xb := data.Elements[7]
	assert.Equal(t, []string{"vcc", "b", "bias"}, xb.Args)
	assert.Equal(t, "local", xb.Params["mode"])

	assert.Equal(t, "1e-4", data.Options["reltol"])
	assert.Equal(t, "200", data.Options["itl1"])
	assert.Equal(t, "1", data.Options["noopiter"])
	assert.Equal(t, "50", data.Options["temp"])

	assert.Equal(t, AnalysisNOISE, data.Analysis)
	assert.Equal(t, "noise", data.Analysis.String())
	np := data.NoiseParam
	assert.Equal(t, "c", np.Output)
	assert.Equal(t, "0", np.Ref)
	assert.Equal(t, "VIN", np.Input)
	assert.Equal(t, "DEC", np.Sweep)
	assert.Equal(t, 10, np.Points)
	assert.Equal(t, 1e5, np.FStop)
}

func TestParseAnalyses(t *testing.T) {
	data, err := Parse("t\nR1 1 0 1k\n.tran 1u 1m 0 5u uic\n")
	require.NoError(t, err)
	assert.Equal(t, AnalysisTRAN, data.Analysis)
	assert.Equal(t, 1e-6, data.TranParam.TStep)
	assert.Equal(t, 1e-3, data.TranParam.TStop)
	assert.InDelta(t, 5e-6, data.TranParam.TMax, 1e-18)
	assert.True(t, data.TranParam.UIC)

	data, err = Parse("t\nR1 1 0 1k\n.tran 1u 1m\n")
	require.NoError(t, err)
	assert.Equal(t, 1e-6, data.TranParam.TMax)
	assert.False(t, data.TranParam.UIC)

	data, err = Parse("t\nV1 1 0 1\nV2 2 0 1\n.dc V1 0 5 0.1 V2 0 1 0.5\n")
	require.NoError(t, err)
	dc := data.DCParam
	assert.Equal(t, "V1", dc.Source1)
	assert.Equal(t, "V2", dc.Source2)
	assert.Equal(t, 0.5, dc.Increment2)

	data, err = Parse("t\nV1 1 0 AC 1\n.ac oct 3 1 1meg\n")
	require.NoError(t, err)
	assert.Equal(t, "OCT", data.ACParam.Sweep)
	assert.Equal(t, 3, data.ACParam.Points)

	data, err = Parse("t\nV1 1 0 1\n.noise v(1) V1 lin 5 1 10\n")
	require.NoError(t, err)
	assert.Equal(t, "1", data.NoiseParam.Output)
	assert.Empty(t, data.NoiseParam.Ref)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"level 2 model":     "t\n.model m1 nmos level=2 vto=1\n",
		"unknown model":     "t\n.model m1 jfet\n",
		"open subckt":       "t\n.subckt a p\nR1 p 0 1k\n",
		"stray ends":        "t\n.ends\n",
		"undefined subckt":  "t\nX1 1 0 nothere\n",
		"recursive subckt":  "t\n.subckt a p\nX1 p b\n.ends\n.subckt b p\nX1 p a\n.ends\n",
		"duplicate subckt":  "t\n.subckt a p\n.ends\n.subckt A p\n.ends\n",
		"control in subckt": "t\n.subckt a p\n.op\n.ends\n",
		"zero increment":    "t\n.dc V1 0 1 0\n",
		"bad sweep":         "t\n.ac log 10 1 1k\n",
		"dec from zero":     "t\n.ac dec 10 0 1k\n",
		"bad noise output":  "t\n.noise i(1) V1 dec 10 1 1k\n",
		"resistor no value": "t\nR1 1 0\n",
		"coupling range":    "t\nK1 L1 L2 1.5\n",
		"unknown element":   "t\nZ1 1 0 5\n",
		"unknown control":   "t\n.four 1k v(1)\n",
		"bad source word":   "t\nV1 1 0 DC 1 wiggle\n",
	}
	for name, deck := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(deck)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestParseLevelOneAccepted(t *testing.T) {
	data, err := Parse("t\n.model m1 nmos level=1 vto=0.7 kp=50u\n")
	require.NoError(t, err)
	params := data.Models["m1"].Params
	assert.Len(t, params, 2)
	assert.Equal(t, 0.7, params["vto"])
	assert.InEpsilon(t, 50e-6, params["kp"], 1e-12)
}
