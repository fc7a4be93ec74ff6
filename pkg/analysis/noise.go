package analysis

import (
	"context"
	"math"
	"math/cmplx"
	"strings"

	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/pkg/errors"
)

// acSource is an independent source with a small-signal excitation.
type acSource interface {
	device.Device
	AC() (mag, phase float64)
	SetAC(mag, phase float64)
}

// Noise computes the output noise density at a node pair and refers it to
// an input source through the small-signal gain.
type Noise struct {
	BaseAnalysis
	output, ref string
	input       string
	sweep       string
	points      int
	fStart      float64
	fStop       float64

	frequencies []float64
	outIdx      int
	refIdx      int
	source      acSource
}

func NewNoise(output, ref, input, sweep string, points int, fStart, fStop float64) *Noise {
	return &Noise{
		BaseAnalysis: *NewBaseAnalysis(),
		output:       output,
		ref:          ref,
		input:        input,
		sweep:        strings.ToUpper(sweep),
		points:       points,
		fStart:       fStart,
		fStop:        fStop,
	}
}

func (n *Noise) Setup(ctx context.Context, ckt *circuit.Circuit) error {
	freqs, err := frequencyPoints(n.sweep, n.fStart, n.fStop, n.points)
	if err != nil {
		return err
	}
	n.frequencies = freqs
	if err := n.setup(ctx, ckt); err != nil {
		return err
	}

	src, ok := ckt.Device(n.input).(acSource)
	if !ok {
		return errors.Errorf("noise input source %s not found", n.input)
	}
	n.source = src
	if n.outIdx, err = nodeIndex(ckt, n.output); err != nil {
		return err
	}
	n.refIdx, err = nodeIndex(ckt, n.ref)
	return err
}

func nodeIndex(ckt *circuit.Circuit, name string) (int, error) {
	if name == "" || name == "0" || strings.EqualFold(name, "gnd") {
		return 0, nil
	}
	idx, ok := ckt.GetNodeMap()[name]
	if !ok {
		return 0, errors.Errorf("node %s not found", name)
	}
	return idx, nil
}

func (n *Noise) Execute(ctx context.Context) error {
	if n.Circuit == nil {
		return errors.New("circuit not set")
	}
	ckt := n.Circuit
	if err := n.smallSignalPoint(ctx); err != nil {
		return err
	}
	restore := n.exciteInput()
	defer restore()

	status := ckt.Status
	cm := ckt.GetComplexMatrix()
	generators := ckt.NoiseSources()
	n.logger.Debug("noise generators", "count", len(generators))
	defer func() {
		status.Omega = 0
		status.Mode = device.OperatingPointAnalysis
	}()

	for _, freq := range n.frequencies {
		if err := ctx.Err(); err != nil {
			return err
		}
		status.Mode = device.ACAnalysis
		status.Omega = 2 * math.Pi * freq
		if err := ckt.LoadAC(); err != nil {
			return errors.Wrapf(err, "f=%g", freq)
		}
		if err := ckt.SolveAC(); err != nil {
			return errors.Wrapf(err, "f=%g", freq)
		}
		gain := cmplx.Abs(cm.ComplexSolution(n.outIdx) - cm.ComplexSolution(n.refIdx))

		status.Mode = device.NoiseAnalysis
		total := 0.0
		for _, g := range generators {
			if err := ckt.SolveNoise(g); err != nil {
				return errors.Wrapf(err, "noise %s at f=%g", g.Name, freq)
			}
			h := cm.ComplexSolution(n.outIdx) - cm.ComplexSolution(n.refIdx)
			mag := cmplx.Abs(h)
			total += mag * mag * g.Density(freq)
		}

		onoise := math.Sqrt(total)
		inoise := math.Inf(1)
		if gain > 0 {
			inoise = onoise / gain
		}
		n.append("FREQ", freq)
		n.append("ONOISE", onoise)
		n.append("INOISE", inoise)
	}
	return nil
}

// exciteInput drives the input source with a unit phasor and silences every
// other AC excitation. The returned func puts them back.
func (n *Noise) exciteInput() func() {
	type saved struct {
		src        acSource
		mag, phase float64
	}
	var prev []saved
	for _, d := range n.Circuit.GetDevices() {
		src, ok := d.(acSource)
		if !ok {
			continue
		}
		mag, phase := src.AC()
		prev = append(prev, saved{src, mag, phase})
		src.SetAC(0, 0)
	}
	n.source.SetAC(1, 0)
	return func() {
		for _, p := range prev {
			p.src.SetAC(p.mag, p.phase)
		}
	}
}
