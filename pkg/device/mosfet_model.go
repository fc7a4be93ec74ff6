package device

import (
	"fmt"
	"math"
	"strings"

	"github.com/edp1096/semispice/internal/consts"
)

// MosfetModel holds the Shichman-Hodges (level 1) parameters.
type MosfetModel struct {
	Name string
	Type float64 // +1 nmos, -1 pmos

	// DC Parameters
	VTO    Param // Zero-bias threshold voltage
	KP     Param // Transconductance parameter (A/V²)
	GAMMA  Param // Body effect parameter (V^0.5)
	PHI    Param // Surface potential (V)
	LAMBDA Param // Channel length modulation (1/V)
	RD     Param // Drain resistance (Ω)
	RS     Param // Source resistance (Ω)
	RSH    Param // Sheet resistance (Ω/□)
	IS     Param // Bulk junction saturation current (A)
	JS     Param // Bulk junction saturation current density (A/m²)

	// Capacitance Parameters
	CBD  Param // Bulk-Drain zero-bias capacitance (F)
	CBS  Param // Bulk-Source zero-bias capacitance (F)
	CGSO Param // Gate-Source overlap capacitance per unit width (F/m)
	CGDO Param // Gate-Drain overlap capacitance per unit width (F/m)
	CGBO Param // Gate-Bulk overlap capacitance per unit length (F/m)
	CJ   Param // Bulk junction capacitance (F/m²)
	MJ   Param // Bulk junction grading coefficient
	CJSW Param // Bulk junction sidewall capacitance (F/m)
	MJSW Param // Bulk junction sidewall grading coefficient
	PB   Param // Bulk junction potential (V)
	FC   Param // Forward-bias depletion capacitance coefficient

	// Process Parameters
	TOX  Param // Oxide thickness (m)
	NSUB Param // Substrate doping (1/cm³)
	NSS  Param // Surface state density (1/cm²)
	TPG  Param // Gate material type: +1 opposite of substrate, -1 same as substrate, 0 aluminum
	LD   Param // Lateral diffusion (m)
	UO   Param // Surface mobility (cm²/V·s)

	TNOM Param // Parameter measurement temperature (°C)
	KF   Param // Flicker noise coefficient
	AF   Param // Flicker noise exponent

	params ParamTable
	temp   mosModelTemp
}

type mosModelTemp struct {
	tnom      float64
	factor1   float64
	vtnom     float64
	egfet1    float64
	pbfactor1 float64
	cox       float64 // oxide capacitance per area, 0 without TOX
	kp        float64
	phi       float64
	gamma     float64
	vto       float64
}

// NewMosfetModel returns a model with SPICE defaults. kind is "nmos" or
// "pmos".
func NewMosfetModel(name, kind string) *MosfetModel {
	m := &MosfetModel{
		Name: name,
		Type: 1,
		KP:   P(2e-5),
		PHI:  P(0.6),
		IS:   P(1e-14),
		MJ:   P(0.5),
		MJSW: P(0.33),
		PB:   P(0.8),
		FC:   P(0.5),
		TOX:  P(1e-7),
		TPG:  P(1),
		UO:   P(600),
		AF:   P(1),
	}
	if strings.EqualFold(kind, "pmos") {
		m.Type = -1
	}
	m.params = ParamTable{
		"vto": &m.VTO, "vt0": &m.VTO, "kp": &m.KP, "gamma": &m.GAMMA,
		"phi": &m.PHI, "lambda": &m.LAMBDA,
		"rd": &m.RD, "rs": &m.RS, "rsh": &m.RSH,
		"is": &m.IS, "js": &m.JS,
		"cbd": &m.CBD, "cbs": &m.CBS,
		"cgso": &m.CGSO, "cgdo": &m.CGDO, "cgbo": &m.CGBO,
		"cj": &m.CJ, "mj": &m.MJ, "cjsw": &m.CJSW, "mjsw": &m.MJSW,
		"pb": &m.PB, "fc": &m.FC,
		"tox": &m.TOX, "nsub": &m.NSUB, "nss": &m.NSS, "tpg": &m.TPG,
		"ld": &m.LD, "uo": &m.UO, "u0": &m.UO,
		"tnom": &m.TNOM, "kf": &m.KF, "af": &m.AF,
	}
	return m
}

// SetParameter sets one level 1 parameter by its SPICE name, case
// insensitive, with vt0 and u0 accepted for VTO and UO. PHI, GAMMA, VTO
// and KP set here take precedence over the values derived from the
// process parameters. An unknown name returns an error wrapping
// ErrUnknownParameter and leaves the model unchanged.
func (m *MosfetModel) SetParameter(name string, value float64) error {
	return m.params.Set(name, value)
}

// SetParameters applies values in sorted name order and stops at the
// first unknown name; parameters sorted before it stay applied.
func (m *MosfetModel) SetParameters(values map[string]float64) error {
	return m.params.SetAll(values)
}

// temperature derives the process dependent defaults. PHI, GAMMA, VTO and
// KP computed here never overwrite given values.
func (m *MosfetModel) temperature(status *CircuitStatus) error {
	t := &m.temp

	t.tnom = status.NomTemp
	if m.TNOM.Given {
		t.tnom = m.TNOM.Value + consts.KELVIN
	}
	t.factor1 = t.tnom / consts.REFTEMP
	t.vtnom = t.tnom * consts.KOVERQ
	kt1 := consts.BOLTZMANN * t.tnom
	t.egfet1 = egap(t.tnom)
	arg1 := -t.egfet1/(kt1+kt1) + consts.EGFET0/(consts.BOLTZMANN*(consts.REFTEMP+consts.REFTEMP))
	t.pbfactor1 = -2 * t.vtnom * (1.5*math.Log(t.factor1) + consts.CHARGE*arg1)

	t.kp = m.KP.Value
	t.phi = m.PHI.Value
	t.gamma = m.GAMMA.Value
	t.vto = m.VTO.Value

	if t.phi <= 0 {
		return fmt.Errorf("%w: model %s: phi must be positive, got %g", ErrInvalidModel, m.Name, t.phi)
	}

	t.cox = 0
	if !m.TOX.Given || m.TOX.Value == 0 {
		return nil
	}
	t.cox = consts.EPSOX / m.TOX.Value
	if !m.KP.Given {
		t.kp = m.UO.Value * t.cox * 1e-4
	}
	if !m.NSUB.Given {
		return nil
	}

	nsub := m.NSUB.Value * 1e6
	if nsub <= consts.NI {
		return fmt.Errorf("%w: model %s: nsub %g is below the intrinsic carrier concentration", ErrInvalidModel, m.Name, m.NSUB.Value)
	}
	if !m.PHI.Given {
		t.phi = math.Max(0.1, 2*t.vtnom*math.Log(nsub/consts.NI))
	}
	fermis := m.Type * 0.5 * t.phi
	wkfng := 3.2
	if m.TPG.Value != 0 {
		fermig := m.Type * m.TPG.Value * 0.5 * t.egfet1
		wkfng = 3.25 + 0.5*t.egfet1 - fermig
	}
	wkfngs := wkfng - (3.25 + 0.5*t.egfet1 + fermis)
	if !m.GAMMA.Given {
		t.gamma = math.Sqrt(2*consts.EPSSIL*consts.CHARGE*nsub) / t.cox
	}
	if !m.VTO.Given {
		vfb := wkfngs - m.NSS.Value*1e4*consts.CHARGE/t.cox
		t.vto = vfb + m.Type*(t.gamma*math.Sqrt(t.phi)+t.phi)
	}
	return nil
}
