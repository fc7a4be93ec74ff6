package device

import (
	"context"
	"fmt"

	"github.com/edp1096/semispice/pkg/matrix"
)

type VoltageSource struct {
	BaseDevice
	Waveform
	// AC params
	acMag   float64
	acPhase float64
	// Branch index for MNA
	branchIdx int

	status *CircuitStatus
	bias   *matrix.ElementSet
	ac     *matrix.ElementSet
}

func NewVoltageSource(name string, nodeNames []string, w Waveform) *VoltageSource {
	return &VoltageSource{
		BaseDevice: NewBaseDevice(name, w.Initial(), nodeNames),
		Waveform:   w,
	}
}

func NewDCVoltageSource(name string, nodeNames []string, value float64) *VoltageSource {
	return NewVoltageSource(name, nodeNames, Waveform{Type: DC, DC: value})
}

func NewSinVoltageSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *VoltageSource {
	return NewVoltageSource(name, nodeNames, Waveform{Type: SIN, DC: offset, Amplitude: amplitude, Freq: freq, Phase: phase})
}

func NewPulseVoltageSource(name string, nodeNames []string, v1, v2, delay, rise, fall, pWidth, period float64) *VoltageSource {
	return NewVoltageSource(name, nodeNames, Waveform{
		Type: PULSE, V1: v1, V2: v2, Delay: delay, Rise: rise, Fall: fall, PWidth: pWidth, Period: period,
	})
}

func NewPWLVoltageSource(name string, nodeNames []string, times []float64, values []float64) *VoltageSource {
	return NewVoltageSource(name, nodeNames, Waveform{Type: PWL, Times: times, Values: values})
}

func NewACVoltageSource(name string, nodeNames []string, dcValue, acMag, acPhase float64) *VoltageSource {
	v := NewDCVoltageSource(name, nodeNames, dcValue)
	v.SetAC(acMag, acPhase)
	return v
}

func (v *VoltageSource) GetType() string { return "V" }

// AC returns the small-signal magnitude and phase in degrees.
func (v *VoltageSource) AC() (mag, phase float64) {
	return v.acMag, v.acPhase
}

// SetAC sets the small-signal magnitude and phase in degrees.
func (v *VoltageSource) SetAC(mag, phase float64) {
	v.acMag = mag
	v.acPhase = phase
}

func (v *VoltageSource) GetVoltage(t float64) float64 {
	return v.At(t)
}

func (v *VoltageSource) Setup(ctx context.Context, vars VariableSet, status *CircuitStatus) error {
	if len(v.NodeNames) != 2 {
		return newError(v.Name, "setup", fmt.Errorf("%w: voltage source requires exactly 2 nodes", ErrNodeCount))
	}
	v.status = status
	v.mapNodes(vars)
	v.branchIdx = vars.CreatePrivate(v.Name + "#branch")
	return nil
}

func (v *VoltageSource) Bind(bc *BindContext) error {
	n1, n2, br := v.Nodes[0], v.Nodes[1], v.branchIdx
	// v1 - v2 = V
	locations := []matrix.Location{
		{Row: n1, Col: br}, {Row: n2, Col: br},
		{Row: br, Col: n1}, {Row: br, Col: n2},
	}
	v.bias = matrix.NewElementSet(bc.Solver, locations, br)
	if bc.Complex != nil {
		v.ac = matrix.NewElementSet(bc.Complex, locations, br)
	}
	return nil
}

func (v *VoltageSource) Unbind() {
	v.bias, v.ac = nil, nil
}

func (v *VoltageSource) Load() error {
	v.bias.Add(1, -1, 1, -1)
	v.bias.AddRHS(sourceValue(&v.Waveform, v.status))
	return nil
}

// Stamp for AC analysis
func (v *VoltageSource) LoadAC() error {
	if v.ac == nil {
		return nil
	}
	v.ac.AddComplex(1, -1, 1, -1)
	if v.status.Mode == ACAnalysis {
		v.ac.AddComplexRHS(phasor(v.acMag, v.acPhase))
	}
	return nil
}

func (v *VoltageSource) BranchIndex() int {
	return v.branchIdx
}

// SetValue changes the DC value, used by the DC sweep.
func (v *VoltageSource) SetValue(value float64) {
	v.Value = value
	v.Type = DC
	v.DC = value
}
