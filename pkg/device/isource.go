package device

import (
	"context"
	"fmt"

	"github.com/edp1096/semispice/pkg/matrix"
)

type CurrentSource struct {
	BaseDevice
	Waveform
	// AC params
	acMag   float64
	acPhase float64

	status *CircuitStatus
	bias   *matrix.ElementSet
	ac     *matrix.ElementSet
}

func NewCurrentSource(name string, nodeNames []string, w Waveform) *CurrentSource {
	return &CurrentSource{
		BaseDevice: NewBaseDevice(name, w.Initial(), nodeNames),
		Waveform:   w,
	}
}

func NewDCCurrentSource(name string, nodeNames []string, value float64) *CurrentSource {
	return NewCurrentSource(name, nodeNames, Waveform{Type: DC, DC: value})
}

func NewSinCurrentSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *CurrentSource {
	return NewCurrentSource(name, nodeNames, Waveform{Type: SIN, DC: offset, Amplitude: amplitude, Freq: freq, Phase: phase})
}

func NewPulseCurrentSource(name string, nodeNames []string, i1, i2, delay, rise, fall, pWidth, period float64) *CurrentSource {
	return NewCurrentSource(name, nodeNames, Waveform{
		Type: PULSE, V1: i1, V2: i2, Delay: delay, Rise: rise, Fall: fall, PWidth: pWidth, Period: period,
	})
}

func NewPWLCurrentSource(name string, nodeNames []string, times []float64, values []float64) *CurrentSource {
	return NewCurrentSource(name, nodeNames, Waveform{Type: PWL, Times: times, Values: values})
}

func NewACCurrentSource(name string, nodeNames []string, dcValue, acMag, acPhase float64) *CurrentSource {
	i := NewDCCurrentSource(name, nodeNames, dcValue)
	i.SetAC(acMag, acPhase)
	return i
}

func (i *CurrentSource) GetType() string { return "I" }

func (i *CurrentSource) AC() (mag, phase float64) {
	return i.acMag, i.acPhase
}

func (i *CurrentSource) SetAC(mag, phase float64) {
	i.acMag = mag
	i.acPhase = phase
}

func (i *CurrentSource) GetCurrent(t float64) float64 {
	return i.At(t)
}

func (i *CurrentSource) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if len(i.NodeNames) != 2 {
		return newError(i.Name, "setup", fmt.Errorf("%w: current source requires exactly 2 nodes", ErrNodeCount))
	}
	i.status = status
	i.mapNodes(vars)
	return nil
}

func (i *CurrentSource) Bind(bc *BindContext) error {
	n1, n2 := i.Nodes[0], i.Nodes[1]
	i.bias = matrix.NewElementSet(bc.Solver, nil, n1, n2)
	if bc.Complex != nil {
		i.ac = matrix.NewElementSet(bc.Complex, nil, n1, n2)
	}
	return nil
}

func (i *CurrentSource) Unbind() {
	i.bias, i.ac = nil, nil
}

// Load drives the current from n1 through the source into n2.
func (i *CurrentSource) Load() error {
	current := sourceValue(&i.Waveform, i.status)
	i.bias.AddRHS(-current, current)
	return nil
}

// Stamp for AC analysis
func (i *CurrentSource) LoadAC() error {
	if i.ac == nil || i.status.Mode != ACAnalysis {
		return nil
	}
	current := phasor(i.acMag, i.acPhase)
	i.ac.AddComplexRHS(-current, current)
	return nil
}

// SetValue changes the DC value, used by the DC sweep.
func (i *CurrentSource) SetValue(value float64) {
	i.Value = value
	i.Type = DC
	i.DC = value
}
