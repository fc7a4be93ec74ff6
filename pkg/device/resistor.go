package device

import (
	"context"
	"fmt"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/pkg/matrix"
)

type Resistor struct {
	BaseDevice
	Tc1  float64
	Tc2  float64
	Tnom float64

	status  *CircuitStatus
	g       float64
	bias    *matrix.ElementSet
	ac      *matrix.ElementSet
	complex matrix.Solver
}

func NewResistor(name string, nodeNames []string, value float64) *Resistor {
	return &Resistor{
		BaseDevice: NewBaseDevice(name, value, nodeNames),
		Tnom:       consts.REFTEMP,
	}
}

func (r *Resistor) GetType() string { return "R" }

func (r *Resistor) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if len(r.NodeNames) != 2 {
		return newError(r.Name, "setup", fmt.Errorf("%w: resistor requires exactly 2 nodes", ErrNodeCount))
	}
	if r.Value == 0 {
		return newError(r.Name, "setup", fmt.Errorf("%w: zero resistance", ErrInvalidModel))
	}
	r.status = status
	r.mapNodes(vars)
	return nil
}

func (r *Resistor) Bind(bc *BindContext) error {
	n1, n2 := r.Nodes[0], r.Nodes[1]
	locations := []matrix.Location{
		{Row: n1, Col: n1}, {Row: n1, Col: n2},
		{Row: n2, Col: n1}, {Row: n2, Col: n2},
	}
	r.bias = matrix.NewElementSet(bc.Solver, locations)
	if bc.Complex != nil {
		r.complex = bc.Complex
		r.ac = matrix.NewElementSet(bc.Complex, locations)
	}
	return nil
}

func (r *Resistor) Unbind() {
	r.bias, r.ac, r.complex = nil, nil, nil
}

func (r *Resistor) Temperature() error {
	// Conductance. G = 1/R
	r.g = 1.0 / r.temperatureAdjustedValue(r.status.Temp)
	return nil
}

func (r *Resistor) Load() error {
	r.bias.Add(r.g, -r.g, -r.g, r.g)
	return nil
}

func (r *Resistor) LoadAC() error {
	if r.ac != nil {
		g := complex(r.g, 0)
		r.ac.AddComplex(g, -g, -g, g)
	}
	return nil
}

func (r *Resistor) NoiseSources() []NoiseSource {
	if r.complex == nil {
		return nil
	}
	temp := r.status.Temp
	return []NoiseSource{
		newNoiseSource(r.Name, r.complex, r.Nodes[0], r.Nodes[1], func(float64) float64 {
			return thermalNoise(temp, r.g)
		}),
	}
}

func (r *Resistor) temperatureAdjustedValue(temp float64) float64 {
	dt := temp - r.Tnom
	factor := 1.0 + r.Tc1*dt + r.Tc2*dt*dt
	return r.Value * factor
}

// SetValue changes the resistance, used by the DC sweep.
func (r *Resistor) SetValue(value float64) {
	r.Value = value
	if r.status != nil {
		r.g = 1.0 / r.temperatureAdjustedValue(r.status.Temp)
	}
}
