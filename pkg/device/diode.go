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

// Diode is a pn junction with series resistance, depletion and transit
// time charge and an optional reverse breakdown.
type Diode struct {
	BaseDevice
	// Model parameters
	Is  float64 // Saturation current 포화 전류
	N   float64 // Ideality Factor / Emission Coefficient 이상계수 / 발광계수
	Rs  float64 // Serial resistance
	Cj0 float64 // Zero-Bias junction capacitance
	M   float64 // Grading Coefficient 접합 기울기 계수
	Vj  float64 // Built-in Potential 접합 전위
	Bv  float64 // Breakdown voltage, 0 disables breakdown

	// Temperature parameters
	Eg   float64 // Energy Gap (eV)
	Xti  float64 // Saturation current temperature exponent
	Tt   float64 // Transit time
	Fc   float64 // Forward-bias depletion capacitance coefficient
	Tnom float64 // Kelvin

	Kf float64
	Af float64

	Area float64
	Off  bool

	logger *slog.Logger
	status *CircuitStatus

	anode, cathode, anodePrime int

	solver  matrix.Solver
	bias    *matrix.ElementSet
	ac      *matrix.ElementSet
	charge  *util.Derivative
	complex matrix.Solver

	// temperature adjusted
	vt    float64
	isat  float64
	vcrit float64
	jct   Junction
	cj    float64

	// Internal states for Operating Point
	vd float64 // Voltage
	id float64 // Current
	gd float64 // Conductance at Operating Point
	cd float64 // Capacitance at Operating Point
}

func NewDiode(name string, nodeNames []string) *Diode {
	d := &Diode{
		BaseDevice: NewBaseDevice(name, 0, nodeNames),
	}
	d.setDefaultParameters()
	return d
}

func (d *Diode) GetType() string { return "D" }

func (d *Diode) setDefaultParameters() {
	d.Is = 1e-14 // 1e-14 A
	d.N = 1.0
	d.Rs = 0.0
	d.Cj0 = 0.0
	d.M = 0.5
	d.Vj = 1.0
	d.Bv = 0.0

	d.Eg = 1.11 // Silicon bandgap
	d.Xti = 3.0 // Saturation current temp. exp
	d.Tt = 0.0
	d.Fc = 0.5
	d.Tnom = consts.REFTEMP

	d.Af = 1
	d.Area = 1
}

// SetModelParameters applies .model values. Unknown names are rejected.
func (d *Diode) SetModelParameters(params map[string]float64) error {
	fields := map[string]*float64{
		"is": &d.Is, "n": &d.N, "rs": &d.Rs,
		"cj0": &d.Cj0, "cjo": &d.Cj0, "cj": &d.Cj0,
		"m": &d.M, "mj": &d.M, "vj": &d.Vj, "pb": &d.Vj,
		"bv": &d.Bv, "eg": &d.Eg, "xti": &d.Xti, "tt": &d.Tt, "fc": &d.Fc,
		"kf": &d.Kf, "af": &d.Af,
	}
	for name, v := range params {
		if name == "tnom" {
			d.Tnom = v + consts.KELVIN
			continue
		}
		p, ok := fields[name]
		if !ok {
			return newError(d.Name, "model", fmt.Errorf("%w %q", ErrUnknownParameter, name))
		}
		*p = v
	}
	return nil
}

func (d *Diode) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if len(d.NodeNames) != 2 {
		return newError(d.Name, "setup", fmt.Errorf("%w: diode requires exactly 2 nodes", ErrNodeCount))
	}
	d.logger = ctxlog.FromContext(ctx).With("device", d.Name)
	d.status = status
	d.mapNodes(vars)
	d.anode, d.cathode = d.Nodes[0], d.Nodes[1]
	d.anodePrime = d.anode
	if d.Rs != 0 {
		d.anodePrime = vars.CreatePrivate(d.Name + "#anode")
	}
	return nil
}

func (d *Diode) Bind(bc *BindContext) error {
	a, k, ap := d.anode, d.cathode, d.anodePrime
	locations := []matrix.Location{
		{Row: a, Col: a}, {Row: a, Col: ap}, {Row: ap, Col: a},
		{Row: ap, Col: ap}, {Row: ap, Col: k}, {Row: k, Col: ap}, {Row: k, Col: k},
	}
	d.solver = bc.Solver
	d.bias = matrix.NewElementSet(bc.Solver, locations, ap, k)
	if bc.Method != nil {
		d.charge = bc.Method.CreateDerivative()
	}
	if bc.Complex != nil {
		d.complex = bc.Complex
		d.ac = matrix.NewElementSet(bc.Complex, locations)
	}
	return nil
}

func (d *Diode) Unbind() {
	d.solver, d.complex = nil, nil
	d.bias, d.ac, d.charge = nil, nil, nil
}

func (d *Diode) Temperature() error {
	temp := d.status.Temp
	d.vt = thermal(temp)
	nvt := d.N * d.vt

	// is(T2) = is(T1) * (T2/T1)^(XTI/N) * exp(Eg/(N*Vt) * (T2/T1 - 1))
	ratio := temp / d.Tnom
	egfact := d.Eg / nvt * (ratio - 1.0)
	d.isat = d.Is * d.Area * math.Exp(d.Xti/d.N*math.Log(ratio)+egfact)
	d.vcrit = criticalVoltage(nvt, d.isat)

	fc := d.Fc
	if fc > 0.95 {
		d.logger.Warn("depletion capacitance coefficient clamped", "fc", fc, "limit", 0.95)
		fc = 0.95
	}
	fact1 := d.Tnom / consts.REFTEMP
	cap, pot := scaleJunction(d.Cj0, d.Vj, d.M, d.Tnom, temp, fact1, temp/consts.REFTEMP, pbFactor(temp))
	d.cj = cap * d.Area
	d.jct = NewJunction(pot, d.M, fc)
	return nil
}

func (d *Diode) junctionVoltage() float64 {
	st := d.status
	switch {
	case st.Init == InitJunction && !d.Off:
		return d.vcrit
	case st.Init == InitJunction || (st.Init == InitFix && d.Off):
		return 0
	case st.Init == InitTransient:
		return d.vd
	}
	sol := d.solver.Solution()
	vd := voltage(sol, d.anodePrime) - voltage(sol, d.cathode)
	vd, limited := LimitJunction(vd, d.vd, d.N*d.vt, d.vcrit)
	if limited {
		st.SetNonConvergent()
	}
	return vd
}

func (d *Diode) calculateCurrent(vd float64) (id, gd float64) {
	gmin := d.status.Gmin
	nvt := d.N * d.vt

	switch {
	// Forward bias and weak reverse bias
	case vd >= -3*nvt:
		evd := safeExp(vd / nvt)
		return d.isat*(evd-1) + gmin*vd, d.isat*evd/nvt + gmin
	// Reverse breakdown
	case d.Bv != 0 && vd < -d.Bv:
		evrev := safeExp(-(d.Bv + vd) / nvt)
		return -d.isat*evrev + gmin*vd, d.isat*evrev/nvt + gmin
	default:
		arg := 3 * nvt / (vd * math.E)
		arg = arg * arg * arg
		return -d.isat*(1+arg) + gmin*vd, d.isat*3*arg/vd + gmin
	}
}

// junctionCharge is the depletion charge plus the transit time charge.
func (d *Diode) junctionCharge(vd, id, gd float64) (q, c float64) {
	q, c = d.jct.Charge(vd, d.cj)
	return q + d.Tt*id, c + d.Tt*gd
}

func (d *Diode) Load() error {
	vd := d.junctionVoltage()
	id, gd := d.calculateCurrent(vd)
	d.vd = vd

	st := d.status
	if st.Mode == TransientAnalysis && !st.UseDc && d.charge != nil {
		q, c := d.junctionCharge(vd, id, gd)
		d.cd = c
		d.charge.SetValue(q)
		geq, ceq := d.charge.Integrate(c, vd)
		gd += geq
		id += ceq + geq*vd
	}
	d.id, d.gd = id, gd

	gs := 0.0
	if d.anodePrime != d.anode {
		gs = 1 / d.Rs
	}
	ieq := id - gd*vd
	d.bias.Add(gs, -gs, -gs, gs+gd, -gd, -gd, gd)
	d.bias.AddRHS(-ieq, ieq)
	return nil
}

func (d *Diode) IsConvergent() bool {
	sol := d.solver.Solution()
	vd := voltage(sol, d.anodePrime) - voltage(sol, d.cathode)
	idhat := d.id + d.gd*(vd-d.vd)
	if math.Abs(idhat-d.id) > d.status.Tolerance(idhat, d.id) {
		d.status.SetNonConvergent()
		return false
	}
	return true
}

func (d *Diode) InitializeStates() error {
	if d.charge == nil {
		return nil
	}
	q, c := d.junctionCharge(d.vd, d.id, d.gd)
	d.cd = c
	d.charge.SetValue(q)
	return nil
}

// Stamp for AC: admittance G + jωC at the operating point.
func (d *Diode) LoadAC() error {
	if d.ac == nil {
		return nil
	}
	id, gd := d.calculateCurrent(d.vd)
	_, c := d.junctionCharge(d.vd, id, gd)
	y := complex(gd, d.status.Omega*c)
	gs := complex(0, 0)
	if d.anodePrime != d.anode {
		gs = complex(1/d.Rs, 0)
	}
	d.ac.AddComplex(gs, -gs, -gs, gs+y, -y, -y, y)
	return nil
}

func (d *Diode) NoiseSources() []NoiseSource {
	if d.complex == nil {
		return nil
	}
	temp := d.status.Temp
	var sources []NoiseSource
	if d.anodePrime != d.anode {
		g := 1 / d.Rs
		sources = append(sources, newNoiseSource(d.Name+".rs", d.complex, d.anode, d.anodePrime, func(float64) float64 {
			return thermalNoise(temp, g)
		}))
	}
	sources = append(sources, newNoiseSource(d.Name+".id", d.complex, d.anodePrime, d.cathode, func(freq float64) float64 {
		return shotNoise(d.id) + flickerNoise(d.Kf, d.Af, d.id, freq)
	}))
	return sources
}

// Current returns the junction current of the last load.
func (d *Diode) Current() float64 { return d.id }

func (d *Diode) Voltage() float64 { return d.vd }
