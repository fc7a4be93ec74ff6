package device

import (
	"context"

	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/edp1096/semispice/pkg/util"
)

// Device is one placed element. The lifecycle is Setup (equation
// allocation), Bind (stamp handles), then any number of Temperature, Load
// and IsConvergent calls, and finally Unbind.
type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error
	Bind(bc *BindContext) error
	Unbind()
	Load() error
}

// Temperaturer recomputes temperature dependent quantities.
type Temperaturer interface {
	Temperature() error
}

// Convergent devices check their own linearization after a solve.
type Convergent interface {
	IsConvergent() bool
}

// ACElement stamps the small-signal admittances into the complex solver.
type ACElement interface {
	LoadAC() error
}

// TimeDependent devices seed their charge history from the operating point.
type TimeDependent interface {
	InitializeStates() error
}

// Noisy devices expose their noise generators.
type Noisy interface {
	NoiseSources() []NoiseSource
}

// BranchDevice owns a branch current equation.
type BranchDevice interface {
	BranchIndex() int
}

// VariableSet hands out equation indices. Index 0 is ground.
type VariableSet interface {
	// MapNode returns the index of a named node shared with other devices.
	MapNode(name string) int
	// CreatePrivate allocates an equation visible only to its creator.
	CreatePrivate(name string) int
}

// BindContext carries everything a device resolves handles against.
type BindContext struct {
	Solver  matrix.Solver
	Complex matrix.Solver
	Method  *util.Method
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	Value     float64
	NodeNames []string
}

func (d *BaseDevice) GetName() string {
	return d.Name
}

func (d *BaseDevice) GetNodes() []int {
	return d.Nodes
}

func (d *BaseDevice) GetNodeNames() []string {
	return d.NodeNames
}

func (d *BaseDevice) GetValue() float64 {
	return d.Value
}

// mapNodes resolves every terminal through vars.
func (d *BaseDevice) mapNodes(vars VariableSet) {
	d.Nodes = make([]int, len(d.NodeNames))
	for i, name := range d.NodeNames {
		d.Nodes[i] = vars.MapNode(name)
	}
}

func NewBaseDevice(name string, value float64, nodeNames []string) BaseDevice {
	return BaseDevice{
		Name:      name,
		Value:     value,
		NodeNames: nodeNames,
		Nodes:     make([]int, len(nodeNames)),
	}
}

// voltage reads the solution entry of a node, ground reads as zero.
func voltage(sol []float64, idx int) float64 {
	if idx <= 0 || idx >= len(sol) {
		return 0
	}
	return sol[idx]
}
