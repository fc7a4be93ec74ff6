package device

import (
	"math"

	"github.com/edp1096/semispice/internal/consts"
)

type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	DCSweep
	TransientAnalysis
	ACAnalysis
	NoiseAnalysis
)

// InitMode tells nonlinear devices where their voltages come from.
type InitMode int

const (
	// InitFloat reads the last solution and limits it against the previous one.
	InitFloat InitMode = iota
	// InitJunction starts junctions at their critical voltage.
	InitJunction
	// InitFix keeps OFF devices at zero bias.
	InitFix
	// InitTransient is the first time point after the operating point.
	InitTransient
)

func (m InitMode) String() string {
	switch m {
	case InitJunction:
		return "junction"
	case InitFix:
		return "fix"
	case InitTransient:
		return "transient"
	default:
		return "float"
	}
}

// CircuitStatus holds the simulation-wide flags every device reads. Devices
// may clear the convergence flag but never set it.
type CircuitStatus struct {
	Mode    AnalysisMode
	Init    InitMode
	UseDc   bool
	UseIc   bool
	Gmin    float64
	Temp    float64
	NomTemp float64
	RelTol  float64
	AbsTol  float64
	VnTol   float64
	Time    float64
	Omega   float64
	SrcFact float64

	convergent bool
}

func NewCircuitStatus() *CircuitStatus {
	return &CircuitStatus{
		Mode:       OperatingPointAnalysis,
		Init:       InitJunction,
		UseDc:      true,
		Gmin:       1e-12,
		Temp:       consts.REFTEMP,
		NomTemp:    consts.REFTEMP,
		RelTol:     1e-3,
		AbsTol:     1e-12,
		VnTol:      1e-6,
		SrcFact:    1,
		convergent: true,
	}
}

// SetNonConvergent forces another Newton iteration.
func (s *CircuitStatus) SetNonConvergent() { s.convergent = false }

func (s *CircuitStatus) IsConvergent() bool { return s.convergent }

// ResetConvergence is reserved for the driver, once per iteration.
func (s *CircuitStatus) ResetConvergence() { s.convergent = true }

// SyncFrom copies the flags of parent, keeping a fresh convergence flag.
func (s *CircuitStatus) SyncFrom(parent *CircuitStatus) {
	*s = *parent
	s.convergent = true
}

// Tolerance is the allowed deviation between a predicted and actual current.
func (s *CircuitStatus) Tolerance(predicted, actual float64) float64 {
	return s.RelTol*math.Max(math.Abs(predicted), math.Abs(actual)) + s.AbsTol
}
