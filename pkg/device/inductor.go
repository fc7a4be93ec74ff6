package device

import (
	"context"
	"fmt"

	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/edp1096/semispice/pkg/util"
)

// Inductor owns a branch current. In DC it is a short.
type Inductor struct {
	BaseDevice
	IC Param // initial current under UIC

	branchIdx int // Branch index
	status    *CircuitStatus
	solver    matrix.Solver
	bias      *matrix.ElementSet
	ac        *matrix.ElementSet
	flux      *util.Derivative
}

var _ TimeDependent = (*Inductor)(nil)

func NewInductor(name string, nodeNames []string, value float64) *Inductor {
	return &Inductor{BaseDevice: NewBaseDevice(name, value, nodeNames)}
}

func (l *Inductor) GetType() string { return "L" }

func (l *Inductor) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if len(l.NodeNames) != 2 {
		return newError(l.Name, "setup", fmt.Errorf("%w: inductor requires exactly 2 nodes", ErrNodeCount))
	}
	l.status = status
	l.mapNodes(vars)
	l.branchIdx = vars.CreatePrivate(l.Name + "#branch")
	return nil
}

func (l *Inductor) Bind(bc *BindContext) error {
	n1, n2, br := l.Nodes[0], l.Nodes[1], l.branchIdx
	locations := []matrix.Location{
		{Row: n1, Col: br}, {Row: n2, Col: br},
		{Row: br, Col: n1}, {Row: br, Col: n2},
		{Row: br, Col: br},
	}
	l.solver = bc.Solver
	l.bias = matrix.NewElementSet(bc.Solver, locations, br)
	if bc.Method != nil {
		l.flux = bc.Method.CreateDerivative()
	}
	if bc.Complex != nil {
		l.ac = matrix.NewElementSet(bc.Complex, locations)
	}
	return nil
}

func (l *Inductor) Unbind() {
	l.solver, l.bias, l.ac, l.flux = nil, nil, nil, nil
}

// Load stamps v1 - v2 - L di/dt = 0.
func (l *Inductor) Load() error {
	st := l.status
	if st.Mode != TransientAnalysis || st.UseDc || l.flux == nil {
		l.bias.Add(1, -1, 1, -1, 0)
		return nil
	}
	i := l.GetCurrent()
	if st.Init == InitTransient {
		i = l.flux.Value() / l.Value
	}
	l.flux.SetValue(l.Value * i)
	req, veq := l.flux.Integrate(l.Value, i)
	l.bias.Add(1, -1, 1, -1, -req)
	l.bias.AddRHS(veq)
	return nil
}

func (l *Inductor) LoadAC() error {
	if l.ac != nil {
		z := complex(0, l.status.Omega*l.Value)
		l.ac.AddComplex(1, -1, 1, -1, -z)
	}
	return nil
}

func (l *Inductor) InitializeStates() error {
	if l.flux == nil {
		return nil
	}
	i := l.GetCurrent()
	if l.status.UseIc && l.IC.Given {
		i = l.IC.Value
	}
	l.flux.SetValue(l.Value * i)
	return nil
}

// GetCurrent reads the branch current of the last solution.
func (l *Inductor) GetCurrent() float64 {
	return voltage(l.solver.Solution(), l.branchIdx)
}

func (l *Inductor) BranchIndex() int {
	return l.branchIdx
}
