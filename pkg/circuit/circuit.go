package circuit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/edp1096/semispice/pkg/subckt"
	"github.com/edp1096/semispice/pkg/util"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Options fixes what the circuit allocates at Setup.
type Options struct {
	Method   util.IntegrationMethod
	MaxOrder int
	// Parallel loads local subcircuits concurrently.
	Parallel bool
}

type Circuit struct {
	name    string
	devices []device.Device
	Status  *device.CircuitStatus
	Options Options

	// GminStep is extra diagonal conductance while stepping gmin.
	GminStep float64

	nodeMap   map[string]int // shared nodes
	names     []string       // equation index -> name, [0] is ground
	branchMap map[string]int // device name -> branch equation
	branch    map[int]bool   // rows holding a branch current
	gminRows  []int

	matrix  *matrix.CircuitMatrix
	complex *matrix.CircuitMatrix
	method  *util.Method

	instances []*subckt.Instance // top level only
	locals    []*subckt.Instance
	logger    *slog.Logger
}

var _ device.VariableSet = (*Circuit)(nil)

func New(name string) *Circuit {
	return &Circuit{
		name:      name,
		Status:    device.NewCircuitStatus(),
		nodeMap:   make(map[string]int),
		branchMap: make(map[string]int),
		names:     []string{"0"},
		Options:   Options{Method: util.TrapezoidalMethod, MaxOrder: 2},
		logger:    ctxlog.FromContext(context.Background()),
	}
}

// Add appends devices. It must be called before Setup.
func (c *Circuit) Add(devs ...device.Device) {
	c.devices = append(c.devices, devs...)
}

func (c *Circuit) MapNode(name string) int {
	if name == "0" || name == "gnd" || name == "GND" {
		return 0
	}
	if idx, ok := c.nodeMap[name]; ok {
		return idx
	}
	idx := len(c.names)
	c.names = append(c.names, name)
	c.nodeMap[name] = idx
	return idx
}

func (c *Circuit) CreatePrivate(name string) int {
	idx := len(c.names)
	c.names = append(c.names, name)
	return idx
}

// Setup numbers every equation, creates the real and complex systems and
// binds all devices to them.
func (c *Circuit) Setup(ctx context.Context) error {
	c.logger = ctxlog.FromContext(ctx)
	c.Unbind()
	c.nodeMap = make(map[string]int)
	c.branchMap = make(map[string]int)
	c.names = []string{"0"}
	c.instances, c.locals = nil, nil

	for _, d := range c.devices {
		if err := d.Setup(ctx, c, c.Status); err != nil {
			return errors.Wrapf(err, "setup %s", d.GetName())
		}
		if x, ok := d.(*subckt.Instance); ok {
			c.instances = append(c.instances, x)
			if x.IsLocal() {
				c.locals = append(c.locals, x)
			}
		}
	}

	size := len(c.names) - 1
	if size == 0 {
		return errors.New("circuit has no equations")
	}

	c.branch = make(map[int]bool)
	walk(c.devices, func(d device.Device) {
		if b, ok := d.(device.BranchDevice); ok {
			c.branch[b.BranchIndex()] = true
			c.branchMap[d.GetName()] = b.BranchIndex()
		}
	})
	c.gminRows = c.gminRows[:0]
	for i := 1; i <= size; i++ {
		if !c.branch[i] {
			c.gminRows = append(c.gminRows, i)
		}
	}

	var err error
	if c.matrix, err = matrix.NewMatrix(size, false); err != nil {
		return err
	}
	if c.complex, err = matrix.NewMatrix(size, true); err != nil {
		return err
	}
	c.method = util.NewMethod(c.Options.Method, c.Options.MaxOrder)

	bc := &device.BindContext{Solver: c.matrix, Complex: c.complex, Method: c.method}
	for _, d := range c.devices {
		if err := d.Bind(bc); err != nil {
			return errors.Wrapf(err, "bind %s", d.GetName())
		}
	}
	c.logger.Debug("circuit bound", "name", c.name, "equations", size,
		"nodes", len(c.nodeMap), "branches", len(c.branchMap), "local subckts", len(c.locals))
	return nil
}

// walk visits devices, descending into flat subcircuits whose children
// share the circuit's equations.
func walk(devs []device.Device, fn func(device.Device)) {
	for _, d := range devs {
		if x, ok := d.(*subckt.Instance); ok {
			if !x.IsLocal() {
				walk(x.Children(), fn)
			}
			continue
		}
		fn(d)
	}
}

func (c *Circuit) Unbind() {
	for _, d := range c.devices {
		d.Unbind()
	}
	if c.matrix != nil {
		c.matrix.Destroy()
		c.matrix = nil
	}
	if c.complex != nil {
		c.complex.Destroy()
		c.complex = nil
	}
}

func (c *Circuit) Destroy() {
	c.Unbind()
}

// Temperature runs the temperature stage of every device.
func (c *Circuit) Temperature() error {
	for _, d := range c.devices {
		if t, ok := d.(device.Temperaturer); ok {
			if err := t.Temperature(); err != nil {
				return errors.Wrapf(err, "temperature %s", d.GetName())
			}
		}
	}
	return nil
}

// Load clears the real system and stamps every device plus gmin on the
// node rows.
func (c *Circuit) Load() error {
	c.matrix.Clear()

	parallel := c.Options.Parallel && len(c.locals) > 1
	if parallel {
		var g errgroup.Group
		for _, x := range c.locals {
			g.Go(x.LoadLocal)
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, d := range c.devices {
		if x, ok := d.(*subckt.Instance); ok && parallel && x.IsLocal() {
			x.Bridge()
			continue
		}
		if err := d.Load(); err != nil {
			return errors.Wrapf(err, "load %s", d.GetName())
		}
	}
	c.matrix.LoadGmin(c.Status.Gmin+c.GminStep, c.gminRows)
	return nil
}

// Solve factors and solves the loaded system, then lets subcircuits
// recover their internal voltages.
func (c *Circuit) Solve() error {
	if err := c.matrix.Solve(); err != nil {
		return err
	}
	for _, x := range c.instances {
		x.Update()
	}
	return nil
}

// IsConvergent asks every device to check its linearization. All devices
// are visited so each keeps its own state current.
func (c *Circuit) IsConvergent() bool {
	ok := true
	for _, d := range c.devices {
		if cv, is := d.(device.Convergent); is && !cv.IsConvergent() {
			ok = false
		}
	}
	return ok && c.Status.IsConvergent()
}

func (c *Circuit) InitializeStates() error {
	for _, d := range c.devices {
		if td, ok := d.(device.TimeDependent); ok {
			if err := td.InitializeStates(); err != nil {
				return errors.Wrapf(err, "initialize %s", d.GetName())
			}
		}
	}
	return nil
}

// LoadAC stamps the small-signal system at the present Status.Omega.
func (c *Circuit) LoadAC() error {
	c.complex.Clear()
	for _, d := range c.devices {
		if ac, ok := d.(device.ACElement); ok {
			if err := ac.LoadAC(); err != nil {
				return errors.Wrapf(err, "load ac %s", d.GetName())
			}
		}
	}
	return nil
}

func (c *Circuit) SolveAC() error {
	return c.complex.Solve()
}

// NoiseSources collects every generator, subcircuits included.
func (c *Circuit) NoiseSources() []device.NoiseSource {
	var sources []device.NoiseSource
	for _, d := range c.devices {
		if n, ok := d.(device.Noisy); ok {
			sources = append(sources, n.NoiseSources()...)
		}
	}
	return sources
}

// SolveNoise computes the response to a unit current of one generator,
// reusing the factorization of the last SolveAC.
func (c *Circuit) SolveNoise(src device.NoiseSource) error {
	c.complex.ClearRHS()
	for _, x := range c.instances {
		x.ClearNoiseRHS()
	}
	src.Inject()
	for _, x := range c.instances {
		if err := x.ReduceNoiseRHS(); err != nil {
			return err
		}
	}
	return c.complex.SolveFactored()
}

func (c *Circuit) Method() *util.Method { return c.method }

func (c *Circuit) GetMatrix() *matrix.CircuitMatrix { return c.matrix }

func (c *Circuit) GetComplexMatrix() *matrix.CircuitMatrix { return c.complex }

func (c *Circuit) GetNodeMap() map[string]int { return c.nodeMap }

func (c *Circuit) GetBranchMap() map[string]int { return c.branchMap }

func (c *Circuit) GetDevices() []device.Device { return c.devices }

func (c *Circuit) Name() string { return c.name }

func (c *Circuit) GetNumNodes() int { return len(c.nodeMap) }

// IsBranch reports whether equation i is a branch current.
func (c *Circuit) IsBranch(i int) bool { return c.branch[i] }

// Size is the number of equations.
func (c *Circuit) Size() int { return len(c.names) - 1 }

// Device finds a top-level device by name.
func (c *Circuit) Device(name string) device.Device {
	for _, d := range c.devices {
		if d.GetName() == name {
			return d
		}
	}
	return nil
}

func (c *Circuit) GetNodeVoltage(nodeIdx int) float64 {
	solution := c.matrix.Solution()
	if nodeIdx <= 0 || nodeIdx >= len(solution) {
		return 0
	}
	return solution[nodeIdx]
}

// Voltage returns the voltage of a named node. Internal nodes of local
// subcircuits are found as "<instance>/<node>".
func (c *Circuit) Voltage(name string) (float64, bool) {
	if idx, ok := c.nodeMap[name]; ok {
		return c.GetNodeVoltage(idx), true
	}
	for _, x := range c.locals {
		prefix := x.GetName() + "/"
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return x.NodeVoltage(name[len(prefix):])
		}
	}
	return 0, false
}

// GetSolution returns node voltages V(x) and branch currents I(x) of the
// last real solve.
func (c *Circuit) GetSolution() map[string]float64 {
	solution := make(map[string]float64)
	sol := c.matrix.Solution()
	at := func(i int) float64 {
		if i <= 0 || i >= len(sol) {
			return 0
		}
		return sol[i]
	}
	for name, idx := range c.nodeMap {
		solution[fmt.Sprintf("V(%s)", name)] = at(idx)
	}
	for name, idx := range c.branchMap {
		solution[fmt.Sprintf("I(%s)", name)] = at(idx)
	}
	return solution
}

// GetComplexSolution is GetSolution for the last complex solve.
func (c *Circuit) GetComplexSolution() map[string]complex128 {
	solution := make(map[string]complex128)
	for name, idx := range c.nodeMap {
		solution[fmt.Sprintf("V(%s)", name)] = c.complex.ComplexSolution(idx)
	}
	for name, idx := range c.branchMap {
		solution[fmt.Sprintf("I(%s)", name)] = c.complex.ComplexSolution(idx)
	}
	return solution
}

// NodeNames lists the shared nodes in equation order.
func (c *Circuit) NodeNames() []string {
	names := make([]string, 0, len(c.nodeMap))
	for name := range c.nodeMap {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return c.nodeMap[names[i]] < c.nodeMap[names[j]] })
	return names
}
