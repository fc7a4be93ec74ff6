package device

import (
	"log/slog"
	"math"
	"strings"

	"github.com/edp1096/semispice/internal/consts"
)

// BJTModel holds the Gummel-Poon parameters shared by bipolar instances.
type BJTModel struct {
	Name string
	Type float64 // +1 npn, -1 pnp

	IS   Param // transport saturation current
	BF   Param // ideal forward beta
	NF   Param // forward emission coefficient
	VAF  Param // forward Early voltage
	IKF  Param // forward beta roll-off corner
	ISE  Param // B-E leakage saturation current
	C2   Param // B-E leakage factor, ISE = C2*IS when ISE is absent
	NE   Param // B-E leakage emission coefficient
	BR   Param // ideal reverse beta
	NR   Param // reverse emission coefficient
	VAR  Param // reverse Early voltage
	IKR  Param // reverse beta roll-off corner
	ISC  Param // B-C leakage saturation current
	C4   Param // B-C leakage factor, ISC = C4*IS when ISC is absent
	NC   Param // B-C leakage emission coefficient
	RB   Param // zero-bias base resistance
	IRB  Param // current where base resistance falls halfway
	RBM  Param // minimum base resistance
	RE   Param // emitter resistance
	RC   Param // collector resistance
	CJE  Param // B-E zero-bias depletion capacitance
	VJE  Param // B-E built-in potential
	MJE  Param // B-E grading coefficient
	TF   Param // ideal forward transit time
	XTF  Param // transit time bias coefficient
	VTF  Param // transit time VBC dependence
	ITF  Param // transit time high-current parameter
	PTF  Param // excess phase in degrees
	CJC  Param // B-C zero-bias depletion capacitance
	VJC  Param // B-C built-in potential
	MJC  Param // B-C grading coefficient
	XCJC Param // fraction of CJC at the internal base
	TR   Param // ideal reverse transit time
	CJS  Param // substrate capacitance
	VJS  Param // substrate junction potential
	MJS  Param // substrate grading coefficient
	XTB  Param // beta temperature exponent
	EG   Param // bandgap for IS temperature scaling
	XTI  Param // IS temperature exponent
	FC   Param // forward-bias depletion coefficient
	TNOM Param // nominal temperature in Celsius
	KF   Param // flicker noise coefficient
	AF   Param // flicker noise exponent

	params ParamTable
	temp   bjtModelTemp
}

// bjtModelTemp is derived once per temperature epoch.
type bjtModelTemp struct {
	tnom        float64
	factor1     float64
	ise         float64
	isc         float64
	rbm         float64
	invEarlyF   float64
	invEarlyR   float64
	invRollOffF float64
	invRollOffR float64
	gcollector  float64
	gemitter    float64
	ovtf        float64
	td          float64
	fc          float64
}

// NewBJTModel returns a model with SPICE defaults. kind is "npn" or "pnp".
func NewBJTModel(name, kind string) *BJTModel {
	m := &BJTModel{
		Name: name,
		Type: 1,
		IS:   P(1e-16),
		BF:   P(100),
		NF:   P(1),
		NE:   P(1.5),
		BR:   P(1),
		NR:   P(1),
		NC:   P(2),
		VJE:  P(0.75),
		MJE:  P(0.33),
		VJC:  P(0.75),
		MJC:  P(0.33),
		XCJC: P(1),
		VJS:  P(0.75),
		EG:   P(1.11),
		XTI:  P(3),
		FC:   P(0.5),
		AF:   P(1),
	}
	if strings.EqualFold(kind, "pnp") {
		m.Type = -1
	}
	m.params = ParamTable{
		"is": &m.IS, "bf": &m.BF, "nf": &m.NF,
		"vaf": &m.VAF, "va": &m.VAF,
		"ikf": &m.IKF, "ik": &m.IKF,
		"ise": &m.ISE, "c2": &m.C2, "ne": &m.NE,
		"br": &m.BR, "nr": &m.NR,
		"var": &m.VAR, "vb": &m.VAR,
		"ikr": &m.IKR,
		"isc": &m.ISC, "c4": &m.C4, "nc": &m.NC,
		"rb": &m.RB, "irb": &m.IRB, "rbm": &m.RBM,
		"re": &m.RE, "rc": &m.RC,
		"cje": &m.CJE, "vje": &m.VJE, "pe": &m.VJE, "mje": &m.MJE, "me": &m.MJE,
		"tf": &m.TF, "xtf": &m.XTF, "vtf": &m.VTF, "itf": &m.ITF, "ptf": &m.PTF,
		"cjc": &m.CJC, "vjc": &m.VJC, "pc": &m.VJC, "mjc": &m.MJC, "mc": &m.MJC,
		"xcjc": &m.XCJC, "tr": &m.TR,
		"cjs": &m.CJS, "ccs": &m.CJS, "vjs": &m.VJS, "ps": &m.VJS, "mjs": &m.MJS, "ms": &m.MJS,
		"xtb": &m.XTB, "eg": &m.EG, "xti": &m.XTI, "fc": &m.FC,
		"tnom": &m.TNOM, "kf": &m.KF, "af": &m.AF,
	}
	return m
}

// SetParameter sets one model parameter by its SPICE name, case
// insensitive. The usual aliases are accepted: va and vb for VAF and VAR,
// ik for IKF, pe/pc/ps for the junction potentials, me/mc/ms for the
// grading coefficients and ccs for CJS. An unknown name returns an error
// wrapping ErrUnknownParameter and leaves the model unchanged.
func (m *BJTModel) SetParameter(name string, value float64) error {
	return m.params.Set(name, value)
}

// SetParameters applies values in sorted name order, so when a name and
// its alias are both present the later one in that order wins. It stops
// at the first unknown name; parameters sorted before it stay applied.
func (m *BJTModel) SetParameters(values map[string]float64) error {
	return m.params.SetAll(values)
}

// temperature derives the model quantities. FC above 0.9999 is clamped
// with a warning, the simulation continues.
func (m *BJTModel) temperature(status *CircuitStatus, logger *slog.Logger) {
	t := &m.temp

	t.tnom = status.NomTemp
	if m.TNOM.Given {
		t.tnom = m.TNOM.Value + consts.KELVIN
	}
	t.factor1 = t.tnom / consts.REFTEMP

	switch {
	case m.ISE.Given:
		t.ise = m.ISE.Value
	default:
		t.ise = m.C2.Value * m.IS.Value
	}
	switch {
	case m.ISC.Given:
		t.isc = m.ISC.Value
	default:
		t.isc = m.C4.Value * m.IS.Value
	}
	t.rbm = m.RB.Value
	if m.RBM.Given {
		t.rbm = m.RBM.Value
	}

	t.invEarlyF = inverseOrZero(m.VAF.Value)
	t.invEarlyR = inverseOrZero(m.VAR.Value)
	t.invRollOffF = inverseOrZero(m.IKF.Value)
	t.invRollOffR = inverseOrZero(m.IKR.Value)
	t.gcollector = inverseOrZero(m.RC.Value)
	t.gemitter = inverseOrZero(m.RE.Value)

	t.ovtf = 0
	if m.VTF.Value != 0 {
		t.ovtf = 1 / (m.VTF.Value * 1.44)
	}
	t.td = m.PTF.Value * math.Pi / 180 * m.TF.Value

	t.fc = m.FC.Value
	if t.fc > 0.9999 {
		logger.Warn("depletion capacitance coefficient clamped", "model", m.Name, "fc", t.fc, "limit", 0.9999)
		t.fc = 0.9999
	}
}

func inverseOrZero(x float64) float64 {
	if x == 0 {
		return 0
	}
	return 1 / x
}
