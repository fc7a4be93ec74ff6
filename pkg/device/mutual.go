package device

import (
	"context"
	"fmt"
	"math"

	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/edp1096/semispice/pkg/util"
)

// Mutual couples two inductors with coefficient k, M = k*sqrt(L1*L2).
type Mutual struct {
	BaseDevice
	inductors   [2]*Inductor
	names       []string
	coefficient float64

	status *CircuitStatus
	solver matrix.Solver
	bias   *matrix.ElementSet
	ac     *matrix.ElementSet
	flux12 *util.Derivative // M*i2 seen by the first branch
	flux21 *util.Derivative
}

func NewMutual(name string, indNames []string, k float64) *Mutual {
	return &Mutual{
		BaseDevice:  NewBaseDevice(name, k, nil),
		names:       indNames,
		coefficient: k,
	}
}

func (m *Mutual) GetType() string { return "K" }

func (m *Mutual) GetInductorNames() []string {
	return m.names
}

func (m *Mutual) GetCoefficient() float64 { return m.coefficient }

// SetInductor resolves one of the coupled inductors by position.
func (m *Mutual) SetInductor(index int, ind *Inductor) error {
	if index < 0 || index >= len(m.inductors) {
		return fmt.Errorf("invalid inductor index: %d", index)
	}
	m.inductors[index] = ind
	return nil
}

func (m *Mutual) inductance() float64 {
	return m.coefficient * math.Sqrt(m.inductors[0].Value*m.inductors[1].Value)
}

func (m *Mutual) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if len(m.names) != 2 || m.inductors[0] == nil || m.inductors[1] == nil {
		return newError(m.Name, "setup", fmt.Errorf("%w: mutual coupling requires two inductors", ErrNodeCount))
	}
	m.status = status
	return nil
}

// Bind runs after the inductors were set up, so their branches exist.
func (m *Mutual) Bind(bc *BindContext) error {
	br1, br2 := m.inductors[0].branchIdx, m.inductors[1].branchIdx
	locations := []matrix.Location{{Row: br1, Col: br2}, {Row: br2, Col: br1}}
	m.solver = bc.Solver
	m.bias = matrix.NewElementSet(bc.Solver, locations, br1, br2)
	if bc.Method != nil {
		m.flux12 = bc.Method.CreateDerivative()
		m.flux21 = bc.Method.CreateDerivative()
	}
	if bc.Complex != nil {
		m.ac = matrix.NewElementSet(bc.Complex, locations)
	}
	return nil
}

func (m *Mutual) Unbind() {
	m.solver, m.bias, m.ac = nil, nil, nil
	m.flux12, m.flux21 = nil, nil
}

func (m *Mutual) Load() error {
	st := m.status
	if st.Mode != TransientAnalysis || st.UseDc || m.flux12 == nil {
		return nil
	}
	mi := m.inductance()
	sol := m.solver.Solution()
	i1 := voltage(sol, m.inductors[0].branchIdx)
	i2 := voltage(sol, m.inductors[1].branchIdx)
	if st.Init == InitTransient {
		i1 = m.flux21.Value() / mi
		i2 = m.flux12.Value() / mi
	}
	m.flux12.SetValue(mi * i2)
	m.flux21.SetValue(mi * i1)
	req12, veq12 := m.flux12.Integrate(mi, i2)
	req21, veq21 := m.flux21.Integrate(mi, i1)
	m.bias.Add(-req12, -req21)
	m.bias.AddRHS(veq12, veq21)
	return nil
}

func (m *Mutual) LoadAC() error {
	if m.ac != nil {
		z := complex(0, m.status.Omega*m.inductance())
		m.ac.AddComplex(-z, -z)
	}
	return nil
}

func (m *Mutual) InitializeStates() error {
	if m.flux12 == nil {
		return nil
	}
	mi := m.inductance()
	m.flux12.SetValue(mi * m.inductors[1].GetCurrent())
	m.flux21.SetValue(mi * m.inductors[0].GetCurrent())
	return nil
}
