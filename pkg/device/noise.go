package device

import (
	"math"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/pkg/matrix"
)

// NoiseSource is a noise current generator between two nodes. Pos and Neg
// are rhs handles of the complex solver the owner is bound to; Density
// returns the current spectral density in A^2/Hz.
type NoiseSource struct {
	Name    string
	Pos     matrix.Element
	Neg     matrix.Element
	Density func(freq float64) float64
}

// Inject adds a unit current flowing from Neg into Pos.
func (n NoiseSource) Inject() {
	n.Pos.AddComplex(1)
	n.Neg.AddComplex(-1)
}

func thermalNoise(temp float64, g float64) float64 {
	return 4 * consts.BOLTZMANN * temp * math.Abs(g)
}

func shotNoise(i float64) float64 {
	return 2 * consts.CHARGE * math.Abs(i)
}

// flickerNoise is kf*|i|^af/f, guarding the logarithm.
func flickerNoise(kf, af, i, freq float64) float64 {
	if kf == 0 || freq <= 0 {
		return 0
	}
	return kf * math.Exp(af*math.Log(math.Max(math.Abs(i), 1e-38))) / freq
}

func newNoiseSource(name string, s matrix.Solver, pos, neg int, density func(float64) float64) NoiseSource {
	return NoiseSource{
		Name:    name,
		Pos:     s.GetRHS(pos),
		Neg:     s.GetRHS(neg),
		Density: density,
	}
}
