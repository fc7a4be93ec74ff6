package device

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/edp1096/semispice/pkg/util"
)

// Mosfet is a level 1 MOS transistor. Terminals are drain, gate, source
// and bulk.
type Mosfet struct {
	BaseDevice
	model *MosfetModel

	// Geometry parameters
	L   Param // Channel length (m)
	W   Param // Channel width (m)
	AD  Param // Drain area (m²)
	AS  Param // Source area (m²)
	PD  Param // Drain perimeter (m)
	PS  Param // Source perimeter (m)
	NRD Param // Drain squares
	NRS Param // Source squares
	M   Param // Parallel multiplier

	Temp  Param // instance temperature in Celsius
	IcVds Param
	IcVgs Param
	IcVbs Param
	Off   bool

	params ParamTable
	logger *slog.Logger
	status *CircuitStatus

	drain, gate, source, bulk int
	drainPrime, sourcePrime  int

	solver  matrix.Solver
	complex matrix.Solver
	method  *util.Method

	bias *matrix.ElementSet
	ac   *matrix.ElementSet

	qgs, qgd, qgb *util.Derivative
	qbd, qbs      *util.Derivative
	// Meyer half capacitances and the voltages they were taken at
	capgs, capgd, capgb *util.StateValue
	vgsState, vgdState  *util.StateValue
	vgbState            *util.StateValue

	t    mosTemp
	last mosBias
	caps mosCaps
}

// MosfetOperatingPoint is the linearization of the last load.
type MosfetOperatingPoint struct {
	Vgs, Vds, Vbs float64
	Id            float64
	Von, Vdsat    float64
	Gm, Gds, Gmbs float64
	Gbd, Gbs      float64
	Cgs, Cgd, Cgb float64
	Cbd, Cbs      float64
	Mode          int
}

func NewMosfet(name string, nodeNames []string, model *MosfetModel) *Mosfet {
	m := &Mosfet{
		BaseDevice: NewBaseDevice(name, 0, nodeNames),
		model:      model,
		L:          P(1e-4),
		W:          P(1e-4),
		M:          P(1),
	}
	m.params = ParamTable{
		"l": &m.L, "w": &m.W,
		"ad": &m.AD, "as": &m.AS, "pd": &m.PD, "ps": &m.PS,
		"nrd": &m.NRD, "nrs": &m.NRS, "m": &m.M,
		"temp":  &m.Temp,
		"icvds": &m.IcVds, "icvgs": &m.IcVgs, "icvbs": &m.IcVbs,
	}
	return m
}

func (m *Mosfet) GetType() string { return "M" }

func (m *Mosfet) Model() *MosfetModel { return m.model }

func (m *Mosfet) SetParameter(name string, value float64) error {
	return m.params.Set(name, value)
}

// SetIC takes the IC=vds,vgs,vbs vector of the instance line.
func (m *Mosfet) SetIC(values []float64) error {
	if len(values) > 3 {
		return newError(m.Name, "ic", fmt.Errorf("%w: mosfet takes at most vds,vgs,vbs, got %d values", ErrBadInitialCondition, len(values)))
	}
	targets := []*Param{&m.IcVds, &m.IcVgs, &m.IcVbs}
	for i, v := range values {
		targets[i].Set(v)
	}
	return nil
}

func (m *Mosfet) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if m.model == nil {
		return newError(m.Name, "setup", ErrMissingModel)
	}
	if len(m.NodeNames) != 4 {
		return newError(m.Name, "setup", fmt.Errorf("%w: mosfet needs 4 terminals, got %d", ErrNodeCount, len(m.NodeNames)))
	}
	m.logger = ctxlog.FromContext(ctx).With("device", m.Name)
	m.status = status
	m.mapNodes(vars)
	m.drain, m.gate, m.source, m.bulk = m.Nodes[0], m.Nodes[1], m.Nodes[2], m.Nodes[3]

	m.drainPrime, m.sourcePrime = m.drain, m.source
	if m.drainConductance() != 0 {
		m.drainPrime = vars.CreatePrivate(m.Name + "#drain")
	}
	if m.sourceConductance() != 0 {
		m.sourcePrime = vars.CreatePrivate(m.Name + "#source")
	}
	return nil
}

func (m *Mosfet) drainConductance() float64 {
	return seriesConductance(m.model.RD, m.model.RSH.Value, m.NRD.Value, m.M.Value)
}

func (m *Mosfet) sourceConductance() float64 {
	return seriesConductance(m.model.RS, m.model.RSH.Value, m.NRS.Value, m.M.Value)
}

func seriesConductance(r Param, rsh, squares, mult float64) float64 {
	switch {
	case r.Given && r.Value != 0:
		return mult / r.Value
	case rsh != 0 && squares != 0:
		return mult / (rsh * squares)
	}
	return 0
}

func (m *Mosfet) Bind(bc *BindContext) error {
	d, g, s, b := m.drain, m.gate, m.source, m.bulk
	dp, sp := m.drainPrime, m.sourcePrime

	locations := []matrix.Location{
		{Row: d, Col: d}, {Row: g, Col: g}, {Row: s, Col: s}, {Row: b, Col: b},
		{Row: dp, Col: dp}, {Row: sp, Col: sp},
		{Row: d, Col: dp}, {Row: g, Col: b}, {Row: g, Col: dp}, {Row: g, Col: sp},
		{Row: s, Col: sp}, {Row: b, Col: g}, {Row: b, Col: dp}, {Row: b, Col: sp},
		{Row: dp, Col: d}, {Row: dp, Col: g}, {Row: dp, Col: b}, {Row: dp, Col: sp},
		{Row: sp, Col: g}, {Row: sp, Col: s}, {Row: sp, Col: b}, {Row: sp, Col: dp},
	}
	m.solver = bc.Solver
	m.bias = matrix.NewElementSet(bc.Solver, locations, g, b, dp, sp)

	if bc.Method != nil {
		m.method = bc.Method
		m.qgs = bc.Method.CreateDerivative()
		m.qgd = bc.Method.CreateDerivative()
		m.qgb = bc.Method.CreateDerivative()
		m.qbd = bc.Method.CreateDerivative()
		m.qbs = bc.Method.CreateDerivative()
		m.capgs = bc.Method.CreateState()
		m.capgd = bc.Method.CreateState()
		m.capgb = bc.Method.CreateState()
		m.vgsState = bc.Method.CreateState()
		m.vgdState = bc.Method.CreateState()
		m.vgbState = bc.Method.CreateState()
	}
	if bc.Complex != nil {
		m.complex = bc.Complex
		m.ac = matrix.NewElementSet(bc.Complex, locations)
	}
	return nil
}

func (m *Mosfet) Unbind() {
	m.solver, m.complex, m.method = nil, nil, nil
	m.bias, m.ac = nil, nil
	m.qgs, m.qgd, m.qgb, m.qbd, m.qbs = nil, nil, nil, nil, nil
	m.capgs, m.capgd, m.capgb = nil, nil, nil
	m.vgsState, m.vgdState, m.vgbState = nil, nil, nil
}

// mosTemp holds the instance quantities scaled to the device temperature.
type mosTemp struct {
	temp        float64
	vt          float64
	kp          float64
	phi         float64
	vbi         float64
	vto         float64
	is          float64
	js          float64
	bulkPot     float64
	depCap      float64
	drainVcrit  float64
	sourceVcrit float64
	gdpr, gspr  float64
	leff        float64
	oxideCap    float64
	beta        float64

	czbd, czbdsw, czbs, czbssw float64
	f2d, f3d, f4d              float64
	f2s, f3s, f4s              float64
}

// Temperature scales the model to the instance temperature.
func (m *Mosfet) Temperature() error {
	mod := m.model
	if err := mod.temperature(m.status); err != nil {
		return newError(m.Name, "temperature", err)
	}
	mt := &mod.temp
	t := &m.t
	mult := m.M.Value

	t.temp = m.status.Temp
	if m.Temp.Given {
		t.temp = m.Temp.Value + consts.KELVIN
	}
	t.vt = thermal(t.temp)
	ratio := t.temp / mt.tnom
	fact2 := t.temp / consts.REFTEMP
	egfet := egap(t.temp)
	pbfact := pbFactor(t.temp)

	t.leff = m.L.Value - 2*mod.LD.Value
	if t.leff <= 0 {
		m.logger.Warn("effective channel length less than zero", "l", m.L.Value, "ld", mod.LD.Value)
	}

	ratio4 := ratio * math.Sqrt(ratio)
	t.kp = mt.kp / ratio4
	phio := (mt.phi - mt.pbfactor1) / mt.factor1
	t.phi = fact2*phio + pbfact
	t.vbi = mt.vto - mod.Type*mt.gamma*math.Sqrt(mt.phi) +
		0.5*(mt.egfet1-egfet) + mod.Type*0.5*(t.phi-mt.phi)
	t.vto = t.vbi + mod.Type*mt.gamma*math.Sqrt(t.phi)

	satFactor := math.Exp(-egfet/t.vt + mt.egfet1/mt.vtnom)
	t.is = mod.IS.Value * satFactor
	t.js = mod.JS.Value * satFactor

	pb := mod.PB.Value
	pbo := (pb - mt.pbfactor1) / mt.factor1
	gmaold := (pb - pbo) / pbo
	capfact := 1 / (1 + mod.MJ.Value*(4e-4*(mt.tnom-consts.REFTEMP)-gmaold))
	cbd := mod.CBD.Value * capfact
	cbs := mod.CBS.Value * capfact
	cj := mod.CJ.Value * capfact
	capfact = 1 / (1 + mod.MJSW.Value*(4e-4*(mt.tnom-consts.REFTEMP)-gmaold))
	cjsw := mod.CJSW.Value * capfact

	t.bulkPot = fact2*pbo + pbfact
	gmanew := (t.bulkPot - pbo) / pbo
	capfact = 1 + mod.MJ.Value*(4e-4*(t.temp-consts.REFTEMP)-gmanew)
	cbd *= capfact
	cbs *= capfact
	cj *= capfact
	cjsw *= 1 + mod.MJSW.Value*(4e-4*(t.temp-consts.REFTEMP)-gmanew)
	t.depCap = mod.FC.Value * t.bulkPot

	if t.js == 0 || m.AS.Value == 0 || m.AD.Value == 0 {
		vcrit := criticalVoltage(t.vt, mult*t.is)
		t.drainVcrit, t.sourceVcrit = vcrit, vcrit
	} else {
		t.drainVcrit = criticalVoltage(t.vt, mult*t.js*m.AD.Value)
		t.sourceVcrit = criticalVoltage(t.vt, mult*t.js*m.AS.Value)
	}

	t.gdpr = m.drainConductance()
	t.gspr = m.sourceConductance()

	switch {
	case mod.CBD.Given:
		t.czbd = cbd * mult
	case mod.CJ.Given:
		t.czbd = cj * m.AD.Value * mult
	default:
		t.czbd = 0
	}
	switch {
	case mod.CBS.Given:
		t.czbs = cbs * mult
	case mod.CJ.Given:
		t.czbs = cj * m.AS.Value * mult
	default:
		t.czbs = 0
	}
	t.czbdsw, t.czbssw = 0, 0
	if mod.CJSW.Given {
		t.czbdsw = cjsw * m.PD.Value * mult
		t.czbssw = cjsw * m.PS.Value * mult
	}
	t.f2d, t.f3d, t.f4d = mod.bulkCoefficients(t.czbd, t.czbdsw, t.bulkPot, t.depCap)
	t.f2s, t.f3s, t.f4s = mod.bulkCoefficients(t.czbs, t.czbssw, t.bulkPot, t.depCap)

	t.oxideCap = mt.cox * t.leff * m.W.Value * mult
	t.beta = t.kp * mult * m.W.Value / t.leff
	return nil
}

// bulkCoefficients returns the forward-bias extension of the bottom plus
// sidewall bulk junction.
func (mod *MosfetModel) bulkCoefficients(cz, czsw, pot, depCap float64) (f2, f3, f4 float64) {
	fc := mod.FC.Value
	mj := mod.MJ.Value
	mjsw := mod.MJSW.Value
	arg := 1 - fc
	sarg := math.Exp(-mj * math.Log(arg))
	sargsw := math.Exp(-mjsw * math.Log(arg))

	f2 = cz*(1-fc*(1+mj))*sarg/arg + czsw*(1-fc*(1+mjsw))*sargsw/arg
	f3 = cz*mj*sarg/arg/pot + czsw*mjsw*sargsw/arg/pot
	f4 = cz*pot*(1-arg*sarg)/(1-mj) + czsw*pot*(1-arg*sargsw)/(1-mjsw) -
		f3/2*(depCap*depCap) - depCap*f2
	return f2, f3, f4
}
