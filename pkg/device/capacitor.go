package device

import (
	"context"
	"fmt"

	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/edp1096/semispice/pkg/util"
)

type Capacitor struct {
	BaseDevice
	IC Param // initial voltage under UIC

	status *CircuitStatus
	solver matrix.Solver
	bias   *matrix.ElementSet
	ac     *matrix.ElementSet
	charge *util.Derivative
}

var _ TimeDependent = (*Capacitor)(nil)

func NewCapacitor(name string, nodeNames []string, value float64) *Capacitor {
	return &Capacitor{BaseDevice: NewBaseDevice(name, value, nodeNames)}
}

func (c *Capacitor) GetType() string { return "C" }

func (c *Capacitor) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if len(c.NodeNames) != 2 {
		return newError(c.Name, "setup", fmt.Errorf("%w: capacitor requires exactly 2 nodes", ErrNodeCount))
	}
	c.status = status
	c.mapNodes(vars)
	return nil
}

func (c *Capacitor) Bind(bc *BindContext) error {
	n1, n2 := c.Nodes[0], c.Nodes[1]
	locations := []matrix.Location{
		{Row: n1, Col: n1}, {Row: n1, Col: n2},
		{Row: n2, Col: n1}, {Row: n2, Col: n2},
	}
	c.solver = bc.Solver
	c.bias = matrix.NewElementSet(bc.Solver, locations, n1, n2)
	if bc.Method != nil {
		c.charge = bc.Method.CreateDerivative()
	}
	if bc.Complex != nil {
		c.ac = matrix.NewElementSet(bc.Complex, locations)
	}
	return nil
}

func (c *Capacitor) Unbind() {
	c.solver, c.bias, c.ac, c.charge = nil, nil, nil, nil
}

func (c *Capacitor) voltage() float64 {
	sol := c.solver.Solution()
	return voltage(sol, c.Nodes[0]) - voltage(sol, c.Nodes[1])
}

// Load is open in DC and a companion model in a transient.
func (c *Capacitor) Load() error {
	st := c.status
	if st.Mode != TransientAnalysis || st.UseDc || c.charge == nil {
		return nil
	}
	vd := c.voltage()
	if st.Init == InitTransient {
		vd = c.charge.Value() / c.Value
	}
	c.charge.SetValue(c.Value * vd)
	geq, ceq := c.charge.Integrate(c.Value, vd)
	c.bias.Add(geq, -geq, -geq, geq)
	c.bias.AddRHS(-ceq, ceq)
	return nil
}

func (c *Capacitor) LoadAC() error {
	if c.ac != nil {
		y := complex(0, c.status.Omega*c.Value) // C * jω
		c.ac.AddComplex(y, -y, -y, y)
	}
	return nil
}

func (c *Capacitor) InitializeStates() error {
	if c.charge == nil {
		return nil
	}
	vd := c.voltage()
	if c.status.UseIc && c.IC.Given {
		vd = c.IC.Value
	}
	c.charge.SetValue(c.Value * vd)
	return nil
}
