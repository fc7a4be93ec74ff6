package util

import "math"

type IntegrationMethod int

const (
	GearMethod IntegrationMethod = iota
	TrapezoidalMethod
)

func (m IntegrationMethod) String() string {
	if m == TrapezoidalMethod {
		return "trap"
	}
	return "gear"
}

type BackwardDifferentialFormula struct {
	coefficients []float64
	beta         float64
}

var BdfCoefficients = [6]BackwardDifferentialFormula{
	{[]float64{1.0}, 1.0},
	{[]float64{4.0 / 3.0, -1.0 / 3.0}, 2.0 / 3.0},
	{[]float64{18.0 / 11.0, -9.0 / 11.0, 2.0 / 11.0}, 6.0 / 11.0},
	{[]float64{48.0 / 25.0, -36.0 / 25.0, 16.0 / 25.0, -3.0 / 25.0}, 12.0 / 25.0},
	{[]float64{300.0 / 137.0, -300.0 / 137.0, 200.0 / 137.0, -75.0 / 137.0, 12.0 / 137.0}, 60.0 / 137.0},
	{[]float64{360.0 / 147.0, -450.0 / 147.0, 400.0 / 147.0, -225.0 / 147.0, 72.0 / 147.0, -10.0 / 147.0}, 60.0 / 147.0},
}

// GetBDFcoeffs returns c such that dx/dt = sum(c[i] * x[n-i]) for a constant
// step dt.
func GetBDFcoeffs(order int, dt float64) []float64 {
	if order < 1 || order > 6 {
		order = 1
	}

	bdf := BdfCoefficients[order-1]
	coeffs := make([]float64, order+1)
	scale := 1.0 / (bdf.beta * dt)
	coeffs[0] = scale

	for i := 1; i <= order; i++ {
		coeffs[i] = -bdf.coefficients[i-1] * scale
	}

	return coeffs
}

// GetTrapezoidalCoeffs returns the slope dq'/dq of the trapezoidal rule;
// order 1 degenerates to backward Euler.
func GetTrapezoidalCoeffs(order int, dt float64) []float64 {
	if order == 2 {
		return []float64{2.0 / dt}
	}
	return []float64{1.0 / dt}
}

// Method owns the history of every charge and state registered with it and
// turns charges into the companion conductance/current pair.
type Method struct {
	Kind     IntegrationMethod
	MaxOrder int

	order  int
	deltas []float64
	coeffs []float64
	slope  float64

	derivatives []*Derivative
	states      []*StateValue
}

func NewMethod(kind IntegrationMethod, maxOrder int) *Method {
	limit := 6
	if kind == TrapezoidalMethod {
		limit = 2
	}
	if maxOrder < 1 || maxOrder > limit {
		maxOrder = limit
	}
	return &Method{
		Kind:     kind,
		MaxOrder: maxOrder,
		order:    1,
		deltas:   make([]float64, maxOrder+2),
	}
}

func (m *Method) history() int { return m.MaxOrder + 2 }

// CreateDerivative registers a new charge whose time derivative is needed.
func (m *Method) CreateDerivative() *Derivative {
	d := &Derivative{
		method: m,
		q:      make([]float64, m.history()),
		dq:     make([]float64, m.history()),
	}
	m.derivatives = append(m.derivatives, d)
	return d
}

// CreateState registers a plain value with history (no derivative).
func (m *Method) CreateState() *StateValue {
	s := &StateValue{values: make([]float64, m.history())}
	m.states = append(m.states, s)
	return s
}

func (m *Method) Order() int { return m.order }

// Delta returns the i-th step size, 0 being the step in progress.
func (m *Method) Delta(i int) float64 {
	if i < 0 || i >= len(m.deltas) {
		return 0
	}
	return m.deltas[i]
}

// Slope is d(dq/dt)/dq for the present step.
func (m *Method) Slope() float64 { return m.slope }

// SetStep prepares the coefficients for a step of size dt. A change of step
// size restarts at order one since the stored coefficient table assumes
// equidistant points.
func (m *Method) SetStep(dt float64) {
	if m.deltas[0] != 0 && math.Abs(dt-m.deltas[0]) > 1e-9*dt {
		m.order = 1
	}
	m.deltas[0] = dt
	switch m.Kind {
	case TrapezoidalMethod:
		m.coeffs = GetTrapezoidalCoeffs(m.order, dt)
	default:
		m.coeffs = GetBDFcoeffs(m.order, dt)
	}
	m.slope = m.coeffs[0]
}

// Seed copies the present value of every state into its history, so the
// first time step starts from a steady state.
func (m *Method) Seed() {
	for _, d := range m.derivatives {
		for i := range d.q {
			d.q[i] = d.q[0]
			d.dq[i] = 0
		}
	}
	for _, s := range m.states {
		for i := range s.values {
			s.values[i] = s.values[0]
		}
	}
	m.order = 1
}

// Accept shifts all histories after a converged time point and raises the
// order by one up to MaxOrder.
func (m *Method) Accept() {
	for _, d := range m.derivatives {
		shift(d.q)
		shift(d.dq)
	}
	for _, s := range m.states {
		shift(s.values)
	}
	shift(m.deltas)
	if m.order < m.MaxOrder {
		m.order++
	}
}

func shift(v []float64) {
	copy(v[1:], v[:len(v)-1])
}

// StateValue is a scalar with history.
type StateValue struct {
	values []float64
}

func (s *StateValue) Value() float64     { return s.values[0] }
func (s *StateValue) SetValue(v float64) { s.values[0] = v }

// Previous returns the value i accepted points back.
func (s *StateValue) Previous(i int) float64 { return s.values[i] }

// Derivative is a charge whose time derivative feeds a companion model.
type Derivative struct {
	method *Method
	q      []float64
	dq     []float64
}

func (d *Derivative) Value() float64     { return d.q[0] }
func (d *Derivative) SetValue(v float64) { d.q[0] = v }

func (d *Derivative) Previous(i int) float64 { return d.q[i] }

// Derivative returns dq/dt computed by the last Derive.
func (d *Derivative) Derivative() float64 { return d.dq[0] }

// Derive computes dq/dt at the present point.
func (d *Derivative) Derive() {
	m := d.method
	switch {
	case m.Kind == TrapezoidalMethod && m.order == 2:
		d.dq[0] = m.coeffs[0]*(d.q[0]-d.q[1]) - d.dq[1]
	case m.Kind == TrapezoidalMethod:
		d.dq[0] = m.coeffs[0] * (d.q[0] - d.q[1])
	default:
		sum := 0.0
		for i, c := range m.coeffs {
			sum += c * d.q[i]
		}
		d.dq[0] = sum
	}
}

// Integrate derives the charge and returns the companion model of a
// capacitance at voltage v: geq = slope*C and ceq = dq/dt - geq*v.
func (d *Derivative) Integrate(capacitance, v float64) (geq, ceq float64) {
	d.Derive()
	geq = d.method.slope * capacitance
	ceq = d.dq[0] - geq*v
	return geq, ceq
}
