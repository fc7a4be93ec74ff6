package analysis

import (
	"context"
	"math"
	"strings"

	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/pkg/errors"
)

type ACAnalysis struct {
	BaseAnalysis
	startFreq   float64
	stopFreq    float64
	numPoints   int
	pointsType  string // "DEC", "OCT", "LIN"
	frequencies []float64
}

func NewAC(fStart, fStop float64, nPoints int, pType string) *ACAnalysis {
	return &ACAnalysis{
		BaseAnalysis: *NewBaseAnalysis(),
		startFreq:    fStart,
		stopFreq:     fStop,
		numPoints:    nPoints,
		pointsType:   strings.ToUpper(pType),
	}
}

func (ac *ACAnalysis) Setup(ctx context.Context, ckt *circuit.Circuit) error {
	freqs, err := frequencyPoints(ac.pointsType, ac.startFreq, ac.stopFreq, ac.numPoints)
	if err != nil {
		return err
	}
	ac.frequencies = freqs
	return ac.setup(ctx, ckt)
}

// smallSignalPoint solves the operating point the small-signal models are
// linearized at.
func (a *BaseAnalysis) smallSignalPoint(ctx context.Context) error {
	a.Circuit.Status.Mode = device.OperatingPointAnalysis
	if err := a.operatingPoint(ctx); err != nil {
		return errors.Wrap(err, "operating point")
	}
	// Capacitances are evaluated at the converged bias.
	return a.Circuit.InitializeStates()
}

func (ac *ACAnalysis) Execute(ctx context.Context) error {
	if ac.Circuit == nil {
		return errors.New("circuit not set")
	}
	if err := ac.smallSignalPoint(ctx); err != nil {
		return err
	}

	status := ac.Circuit.Status
	status.Mode = device.ACAnalysis
	defer func() { status.Omega = 0 }()
	for _, freq := range ac.frequencies {
		if err := ctx.Err(); err != nil {
			return err
		}
		status.Omega = 2 * math.Pi * freq
		if err := ac.Circuit.LoadAC(); err != nil {
			return errors.Wrapf(err, "f=%g", freq)
		}
		if err := ac.Circuit.SolveAC(); err != nil {
			return errors.Wrapf(err, "f=%g", freq)
		}
		ac.StoreACResult(freq, ac.Circuit.GetComplexSolution())
	}
	return nil
}

// frequencyPoints spaces points per decade, per octave or linearly in
// total.
func frequencyPoints(sweep string, start, stop float64, n int) ([]float64, error) {
	if n < 1 || start < 0 || (start == 0 && sweep != "LIN") || stop < start {
		return nil, errors.Errorf("invalid frequency sweep %s %d %g %g", sweep, n, start, stop)
	}
	if start == stop {
		return []float64{start}, nil
	}

	var freqs []float64
	switch sweep {
	case "DEC", "OCT":
		base := 10.0
		if sweep == "OCT" {
			base = 2
		}
		ratio := math.Pow(base, 1/float64(n))
		span := math.Log(stop/start) / math.Log(ratio)
		total := int(math.Floor(span+1e-9)) + 1
		for i := 0; i < total; i++ {
			freqs = append(freqs, start*math.Pow(ratio, float64(i)))
		}
	case "LIN":
		if n == 1 {
			return []float64{start}, nil
		}
		step := (stop - start) / float64(n-1)
		for i := 0; i < n; i++ {
			freqs = append(freqs, start+float64(i)*step)
		}
	default:
		return nil, errors.Errorf("unknown sweep type %q", sweep)
	}
	return freqs, nil
}
