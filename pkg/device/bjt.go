package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/edp1096/semispice/pkg/util"
)

// BJT is a Gummel-Poon bipolar transistor. Terminals are collector, base,
// emitter and an optional substrate (ground when omitted).
type BJT struct {
	BaseDevice
	model *BJTModel

	Area  Param
	M     Param // parallel multiplier
	Temp  Param // instance temperature in Celsius
	IcVbe Param
	IcVce Param
	Off   bool

	params ParamTable
	logger *slog.Logger
	status *CircuitStatus

	col, base, emit, subst        int
	colPrime, basePrime, emitPrime int

	solver  matrix.Solver
	complex matrix.Solver
	method  *util.Method

	bias *matrix.ElementSet
	time *matrix.ElementSet
	ac   *matrix.ElementSet

	qbe, qbc, qcs, qbx *util.Derivative
	cexbc              *util.StateValue
	weil               excessPhase

	t    bjtTemp
	last bjtBias
	chg  bjtCharges
}

// BJTOperatingPoint is the linearization of the last load.
type BJTOperatingPoint struct {
	Vbe, Vbc, Vce float64
	Ic, Ib        float64
	Gpi, Gmu, Gm  float64
	Go, Gx        float64
	CapBE, CapBC  float64
	CapCS, CapBX  float64
}

func NewBJT(name string, nodeNames []string, model *BJTModel) *BJT {
	q := &BJT{
		BaseDevice: NewBaseDevice(name, 0, nodeNames),
		model:      model,
		Area:       P(1),
		M:          P(1),
	}
	q.params = ParamTable{
		"area":  &q.Area,
		"m":     &q.M,
		"temp":  &q.Temp,
		"icvbe": &q.IcVbe,
		"icvce": &q.IcVce,
	}
	return q
}

func (q *BJT) GetType() string { return "Q" }

func (q *BJT) Model() *BJTModel { return q.model }

func (q *BJT) SetParameter(name string, value float64) error {
	return q.params.Set(name, value)
}

// SetIC takes the IC=vbe,vce vector of the instance line.
func (q *BJT) SetIC(values []float64) error {
	if len(values) > 2 {
		return newError(q.Name, "ic", fmt.Errorf("%w: bjt takes at most vbe,vce, got %d values", ErrBadInitialCondition, len(values)))
	}
	if len(values) > 0 {
		q.IcVbe.Set(values[0])
	}
	if len(values) > 1 {
		q.IcVce.Set(values[1])
	}
	return nil
}

func (q *BJT) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if q.model == nil {
		return newError(q.Name, "setup", ErrMissingModel)
	}
	if n := len(q.NodeNames); n != 3 && n != 4 {
		return newError(q.Name, "setup", fmt.Errorf("%w: bjt needs 3 or 4 terminals, got %d", ErrNodeCount, n))
	}
	q.logger = ctxlog.FromContext(ctx).With("device", q.Name)
	q.status = status
	q.mapNodes(vars)

	q.col, q.base, q.emit = q.Nodes[0], q.Nodes[1], q.Nodes[2]
	q.subst = 0
	if len(q.Nodes) == 4 {
		q.subst = q.Nodes[3]
	}

	q.colPrime, q.basePrime, q.emitPrime = q.col, q.base, q.emit
	if q.model.RC.Value != 0 {
		q.colPrime = vars.CreatePrivate(q.Name + "#collector")
	}
	if q.model.RB.Value != 0 {
		q.basePrime = vars.CreatePrivate(q.Name + "#base")
	}
	if q.model.RE.Value != 0 {
		q.emitPrime = vars.CreatePrivate(q.Name + "#emitter")
	}
	return nil
}

func (q *BJT) Bind(bc *BindContext) error {
	c, b, e, s := q.col, q.base, q.emit, q.subst
	cp, bp, ep := q.colPrime, q.basePrime, q.emitPrime

	biasLocations := []matrix.Location{
		{Row: c, Col: c}, {Row: b, Col: b}, {Row: e, Col: e},
		{Row: cp, Col: cp}, {Row: bp, Col: bp}, {Row: ep, Col: ep},
		{Row: c, Col: cp}, {Row: b, Col: bp}, {Row: e, Col: ep},
		{Row: cp, Col: c}, {Row: cp, Col: bp}, {Row: cp, Col: ep},
		{Row: bp, Col: b}, {Row: bp, Col: cp}, {Row: bp, Col: ep},
		{Row: ep, Col: e}, {Row: ep, Col: cp}, {Row: ep, Col: bp},
	}

	q.solver = bc.Solver
	q.bias = matrix.NewElementSet(bc.Solver, biasLocations, cp, bp, ep)

	if bc.Method != nil {
		q.method = bc.Method
		q.time = matrix.NewElementSet(bc.Solver, []matrix.Location{
			{Row: b, Col: b}, {Row: cp, Col: cp}, {Row: bp, Col: bp}, {Row: ep, Col: ep},
			{Row: cp, Col: bp}, {Row: bp, Col: cp}, {Row: bp, Col: ep},
			{Row: ep, Col: cp}, {Row: ep, Col: bp},
			{Row: s, Col: s}, {Row: cp, Col: s}, {Row: s, Col: cp},
			{Row: b, Col: cp}, {Row: cp, Col: b},
		}, b, s, cp, bp, ep)
		q.qbe = bc.Method.CreateDerivative()
		q.qbc = bc.Method.CreateDerivative()
		q.qcs = bc.Method.CreateDerivative()
		q.qbx = bc.Method.CreateDerivative()
		q.cexbc = bc.Method.CreateState()
		q.weil = &weilPhase{q: q}
	}

	if bc.Complex != nil {
		q.complex = bc.Complex
		acLocations := append(append([]matrix.Location{}, biasLocations...),
			matrix.Location{Row: s, Col: s}, matrix.Location{Row: cp, Col: s}, matrix.Location{Row: s, Col: cp},
			matrix.Location{Row: b, Col: cp}, matrix.Location{Row: cp, Col: b},
		)
		q.ac = matrix.NewElementSet(bc.Complex, acLocations)
	}
	return nil
}

func (q *BJT) Unbind() {
	q.solver, q.complex, q.method = nil, nil, nil
	q.bias, q.time, q.ac = nil, nil, nil
	q.qbe, q.qbc, q.qcs, q.qbx, q.cexbc = nil, nil, nil, nil, nil
	q.weil = nil
}

// OperatingPoint returns the bias computed by the last load, with the
// terminal currents of one unit (the multiplier not applied).
func (q *BJT) OperatingPoint() BJTOperatingPoint {
	b := q.last
	return BJTOperatingPoint{
		Vbe: b.vbe, Vbc: b.vbc, Vce: b.vbe - b.vbc,
		Ic: b.cc, Ib: b.cb,
		Gpi: b.gpi, Gmu: b.gmu, Gm: b.gm, Go: b.goo, Gx: b.gx,
		CapBE: q.chg.capbe, CapBC: q.chg.capbc, CapCS: q.chg.capcs, CapBX: q.chg.capbx,
	}
}

// temperature returns the instance temperature in Kelvin.
func (q *BJT) temperature() float64 {
	if q.Temp.Given {
		return q.Temp.Value + consts.KELVIN
	}
	return q.status.Temp
}
