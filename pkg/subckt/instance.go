package subckt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/matrix"
	"github.com/pkg/errors"
)

// Instance places a Definition in a circuit. In Flat mode its children are
// ordinary devices of the parent. In Local mode they stamp into a private
// system whose internal nodes are eliminated, and the parent only sees the
// Schur complement over the pins.
type Instance struct {
	name string
	def  *Definition
	pins []string
	mode Mode

	// MaxLocalIterations bounds the inner Newton loop of a local instance.
	// One pass reproduces a plain linearization of the internal nodes.
	MaxLocalIterations int

	children []device.Device
	logger   *slog.Logger
	status   *device.CircuitStatus

	// local mode
	localStatus *device.CircuitStatus
	boundary    []int          // parent index of every boundary node
	pinLocal    map[string]int // definition pin -> local index
	internal    map[string]int // internal node -> local index
	ni          int

	parent       matrix.Solver
	real, cplx   *system
	parentElems  []matrix.Element
	parentRHS    []matrix.Element
	parentCElems []matrix.Element
	parentCRHS   []matrix.Element
}

var (
	_ device.Device        = (*Instance)(nil)
	_ device.Temperaturer  = (*Instance)(nil)
	_ device.Convergent    = (*Instance)(nil)
	_ device.ACElement     = (*Instance)(nil)
	_ device.TimeDependent = (*Instance)(nil)
	_ device.Noisy         = (*Instance)(nil)
)

func NewInstance(name string, def *Definition, pins []string, mode Mode) (*Instance, error) {
	if def == nil {
		return nil, errors.Errorf("instance %s: no definition", name)
	}
	if len(pins) != len(def.Pins) {
		return nil, errors.Wrapf(ErrPinCount, "instance %s of %s: %d connections, %d pins",
			name, def.Name, len(pins), len(def.Pins))
	}
	return &Instance{
		name:               name,
		def:                def,
		pins:               pins,
		mode:               mode,
		MaxLocalIterations: 1,
	}, nil
}

func (x *Instance) GetName() string { return x.name }

func (x *Instance) GetType() string { return "X" }

func (x *Instance) GetNodeNames() []string { return x.pins }

func (x *Instance) Mode() Mode { return x.mode }

func (x *Instance) Definition() *Definition { return x.def }

// IsLocal reports whether the instance runs its own solver.
func (x *Instance) IsLocal() bool { return x.mode == Local }

// Children returns the devices built for this instance, valid after Setup.
func (x *Instance) Children() []device.Device { return x.children }

func (x *Instance) Setup(ctx context.Context, vars device.VariableSet, status *device.CircuitStatus) error {
	x.logger = ctxlog.FromContext(ctx).With("subckt", x.name)
	x.status = status

	children, err := x.def.Build(x.name)
	if err != nil {
		return errors.Wrapf(err, "instance %s: building %s", x.name, x.def.Name)
	}
	x.children = children

	pins := make(map[string]string, len(x.pins))
	for i, p := range x.def.Pins {
		pins[p] = x.pins[i]
	}

	if x.mode == Flat {
		fv := &flatVars{parent: vars, prefix: x.name, pins: pins}
		for _, c := range x.children {
			if err := c.Setup(ctx, fv, status); err != nil {
				return errors.Wrapf(err, "instance %s", x.name)
			}
		}
		return nil
	}

	// boundary first, so internal indices can follow
	x.boundary = x.boundary[:0]
	x.pinLocal = make(map[string]int, len(x.def.Pins))
	x.internal = make(map[string]int)
	x.ni = 0
	for _, p := range x.def.Pins {
		idx := vars.MapNode(pins[p])
		if idx == 0 {
			x.pinLocal[p] = 0
			continue
		}
		local := 0
		for k, b := range x.boundary {
			if b == idx {
				local = k + 1
				break
			}
		}
		if local == 0 {
			x.boundary = append(x.boundary, idx)
			local = len(x.boundary)
		}
		x.pinLocal[p] = local
	}

	x.localStatus = &device.CircuitStatus{}
	x.localStatus.SyncFrom(status)
	lv := &localVars{x: x}
	for _, c := range x.children {
		if err := c.Setup(ctx, lv, x.localStatus); err != nil {
			return errors.Wrapf(err, "instance %s", x.name)
		}
	}
	x.logger.Debug("local subcircuit", "boundary", len(x.boundary), "internal", x.ni)
	return nil
}

func (x *Instance) Bind(bc *device.BindContext) error {
	if x.mode == Flat {
		for _, c := range x.children {
			if err := c.Bind(bc); err != nil {
				return errors.Wrapf(err, "instance %s", x.name)
			}
		}
		return nil
	}

	nb := len(x.boundary)
	rs, err := newSystem(nb, x.ni, false)
	if err != nil {
		return errors.Wrapf(err, "instance %s", x.name)
	}
	x.real = rs
	x.parent = bc.Solver

	local := &device.BindContext{Solver: rs, Method: bc.Method}
	if bc.Complex != nil {
		cplx, err := newSystem(nb, x.ni, true)
		if err != nil {
			return errors.Wrapf(err, "instance %s", x.name)
		}
		cplx.solution = rs.solution
		x.cplx = cplx
		local.Complex = cplx
	}

	for _, c := range x.children {
		if err := c.Bind(local); err != nil {
			return errors.Wrapf(err, "instance %s", x.name)
		}
	}

	x.parentElems = boundaryElements(bc.Solver, x.boundary)
	x.parentRHS = boundaryRHS(bc.Solver, x.boundary)
	if bc.Complex != nil {
		x.parentCElems = boundaryElements(bc.Complex, x.boundary)
		x.parentCRHS = boundaryRHS(bc.Complex, x.boundary)
	}
	return nil
}

func boundaryElements(s matrix.Solver, boundary []int) []matrix.Element {
	nb := len(boundary)
	elems := make([]matrix.Element, nb*nb)
	for i, r := range boundary {
		for j, c := range boundary {
			elems[i*nb+j] = s.GetElement(r, c)
		}
	}
	return elems
}

func boundaryRHS(s matrix.Solver, boundary []int) []matrix.Element {
	rhs := make([]matrix.Element, len(boundary))
	for i, r := range boundary {
		rhs[i] = s.GetRHS(r)
	}
	return rhs
}

func (x *Instance) Unbind() {
	for _, c := range x.children {
		c.Unbind()
	}
	if x.real != nil {
		x.real.destroy()
		x.real = nil
	}
	if x.cplx != nil {
		x.cplx.destroy()
		x.cplx = nil
	}
	x.parent = nil
	x.parentElems, x.parentRHS = nil, nil
	x.parentCElems, x.parentCRHS = nil, nil
}

func (x *Instance) Temperature() error {
	if x.mode == Local {
		x.localStatus.SyncFrom(x.status)
	}
	for _, c := range x.children {
		if t, ok := c.(device.Temperaturer); ok {
			if err := t.Temperature(); err != nil {
				return errors.Wrapf(err, "instance %s", x.name)
			}
		}
	}
	return nil
}

// Load stamps the children, or the equivalent of a local instance.
func (x *Instance) Load() error {
	if x.mode == Flat {
		for _, c := range x.children {
			if err := c.Load(); err != nil {
				return errors.Wrapf(err, "instance %s", x.name)
			}
		}
		return nil
	}
	if err := x.LoadLocal(); err != nil {
		return err
	}
	x.Bridge()
	return nil
}

// LoadLocal linearizes a local instance around the present parent solution
// and computes its boundary equivalent. It touches nothing outside the
// instance, so distinct instances may run it concurrently.
func (x *Instance) LoadLocal() error {
	if x.mode != Local {
		return nil
	}
	s := x.real
	x.localStatus.SyncFrom(x.status)
	s.setBoundary(x.parent.Solution(), x.boundary)

	passes := max(x.MaxLocalIterations, 1)
	for pass := 0; pass < passes; pass++ {
		if pass > 0 {
			x.localStatus.Init = device.InitFloat
			x.localStatus.ResetConvergence()
		}
		s.clear()
		for _, c := range x.children {
			if err := c.Load(); err != nil {
				return errors.Wrapf(err, "instance %s", x.name)
			}
		}
		if err := s.reduce(); err != nil {
			return errors.Wrapf(ErrNoEquivalentSubcircuit, "instance %s: %v", x.name, err)
		}
		if pass == passes-1 {
			break
		}
		s.backSolve()
		if x.localStatus.IsConvergent() && x.childrenConvergent() {
			break
		}
	}
	return nil
}

// Bridge adds the equivalent computed by LoadLocal to the parent system.
// It must not run concurrently with another Bridge on the same parent.
func (x *Instance) Bridge() {
	if x.mode != Local {
		return
	}
	for k, e := range x.parentElems {
		e.Add(x.real.s[k])
	}
	for k, e := range x.parentRHS {
		e.Add(x.real.r[k])
	}
	if !x.localStatus.IsConvergent() {
		x.status.SetNonConvergent()
	}
}

// Update recovers internal voltages after the parent solved.
func (x *Instance) Update() {
	if x.mode == Local {
		x.real.setBoundary(x.parent.Solution(), x.boundary)
		x.real.backSolve()
	}
	for _, c := range x.children {
		if sub, ok := c.(*Instance); ok {
			sub.Update()
		}
	}
}

func (x *Instance) childrenConvergent() bool {
	ok := true
	for _, c := range x.children {
		if cv, is := c.(device.Convergent); is && !cv.IsConvergent() {
			ok = false
		}
	}
	return ok
}

func (x *Instance) IsConvergent() bool {
	ok := x.childrenConvergent()
	if x.mode == Local && (!ok || !x.localStatus.IsConvergent()) {
		x.status.SetNonConvergent()
		return false
	}
	return ok
}

func (x *Instance) InitializeStates() error {
	if x.mode == Local {
		x.localStatus.SyncFrom(x.status)
	}
	for _, c := range x.children {
		if td, ok := c.(device.TimeDependent); ok {
			if err := td.InitializeStates(); err != nil {
				return errors.Wrapf(err, "instance %s", x.name)
			}
		}
	}
	return nil
}

func (x *Instance) LoadAC() error {
	if x.mode == Local {
		if x.cplx == nil {
			return nil
		}
		x.localStatus.SyncFrom(x.status)
		x.cplx.clear()
	}
	for _, c := range x.children {
		if ac, ok := c.(device.ACElement); ok {
			if err := ac.LoadAC(); err != nil {
				return errors.Wrapf(err, "instance %s", x.name)
			}
		}
	}
	if x.mode == Flat {
		return nil
	}
	if err := x.cplx.reduceComplex(); err != nil {
		return errors.Wrapf(ErrNoEquivalentSubcircuit, "instance %s: %v", x.name, err)
	}
	for k, e := range x.parentCElems {
		e.AddComplex(x.cplx.sc[k])
	}
	x.bridgeComplexRHS()
	return nil
}

func (x *Instance) bridgeComplexRHS() {
	for k, e := range x.parentCRHS {
		e.AddComplex(x.cplx.rc[k])
	}
}

func (x *Instance) NoiseSources() []device.NoiseSource {
	var sources []device.NoiseSource
	for _, c := range x.children {
		if n, ok := c.(device.Noisy); ok {
			sources = append(sources, n.NoiseSources()...)
		}
	}
	return sources
}

// ClearNoiseRHS zeroes the private complex rhs before a generator is
// injected.
func (x *Instance) ClearNoiseRHS() {
	if x.mode == Local && x.cplx != nil {
		x.cplx.clearRHS()
	}
	for _, c := range x.children {
		if sub, ok := c.(*Instance); ok {
			sub.ClearNoiseRHS()
		}
	}
}

// ReduceNoiseRHS carries an injected generator to the parent rhs through
// the factorization of the last LoadAC.
func (x *Instance) ReduceNoiseRHS() error {
	for _, c := range x.children {
		if sub, ok := c.(*Instance); ok {
			if err := sub.ReduceNoiseRHS(); err != nil {
				return err
			}
		}
	}
	if x.mode != Local || x.cplx == nil {
		return nil
	}
	if err := x.cplx.reduceComplexRHS(); err != nil {
		return errors.Wrapf(ErrNoEquivalentSubcircuit, "instance %s: %v", x.name, err)
	}
	x.bridgeComplexRHS()
	return nil
}

// NodeVoltage returns the voltage of an internal node of a local instance.
func (x *Instance) NodeVoltage(name string) (float64, bool) {
	if x.mode != Local || x.real == nil {
		return 0, false
	}
	idx, ok := x.pinLocal[name]
	if !ok {
		idx, ok = x.internal[name]
	}
	if !ok {
		return 0, false
	}
	return x.real.solution[idx], true
}

// flatVars maps child node names into the parent system.
type flatVars struct {
	parent device.VariableSet
	prefix string
	pins   map[string]string
}

func (v *flatVars) MapNode(name string) int {
	if isGround(name) {
		return 0
	}
	if p, ok := v.pins[name]; ok {
		return v.parent.MapNode(p)
	}
	// nodes of nested instances already carry this prefix
	if strings.HasPrefix(name, v.prefix+"/") {
		return v.parent.MapNode(name)
	}
	return v.parent.MapNode(v.prefix + "/" + name)
}

func (v *flatVars) CreatePrivate(name string) int {
	return v.parent.CreatePrivate(name)
}

// localVars numbers child nodes inside a local instance.
type localVars struct {
	x *Instance
}

func (v *localVars) MapNode(name string) int {
	if isGround(name) {
		return 0
	}
	if idx, ok := v.x.pinLocal[name]; ok {
		return idx
	}
	if idx, ok := v.x.internal[name]; ok {
		return idx
	}
	return v.allocate(name)
}

func (v *localVars) CreatePrivate(name string) int {
	return v.allocate(name)
}

func (v *localVars) allocate(name string) int {
	v.x.ni++
	idx := len(v.x.boundary) + v.x.ni
	v.x.internal[name] = idx
	return idx
}
