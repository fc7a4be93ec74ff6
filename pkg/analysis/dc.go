package analysis

import (
	"context"
	"math"

	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/pkg/errors"
)

// sweepable is a source or resistor whose value the sweep drives.
type sweepable interface {
	device.Device
	GetValue() float64
	SetValue(float64)
}

type savedValue struct {
	value    float64
	waveform device.Waveform
}

// Sweep is one swept source.
type Sweep struct {
	Source    string
	Start     float64
	Stop      float64
	Increment float64
}

// values lists the points from Start to Stop inclusive. A negative
// increment sweeps downwards.
func (s Sweep) values() ([]float64, error) {
	if s.Increment == 0 || (s.Stop-s.Start)*s.Increment < 0 {
		return nil, errors.Errorf("sweep %s: increment %g does not reach %g from %g", s.Source, s.Increment, s.Stop, s.Start)
	}
	n := int(math.Floor((s.Stop-s.Start)/s.Increment+1e-9)) + 1
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = s.Start + float64(i)*s.Increment
	}
	return vals, nil
}

type DCSweep struct {
	BaseAnalysis
	sweeps    []Sweep
	sources   []sweepable
	sweepVals [][]float64
	saved     []savedValue
}

// NewDCSweep sweeps one or two sources. The second source is the outer
// loop as in SPICE.
func NewDCSweep(sweeps ...Sweep) *DCSweep {
	return &DCSweep{BaseAnalysis: *NewBaseAnalysis(), sweeps: sweeps}
}

func (dc *DCSweep) Setup(ctx context.Context, ckt *circuit.Circuit) error {
	if len(dc.sweeps) < 1 || len(dc.sweeps) > 2 {
		return errors.Errorf("unsupported number of sweep sources: %d", len(dc.sweeps))
	}
	if err := dc.setup(ctx, ckt); err != nil {
		return err
	}
	dc.sources = dc.sources[:0]
	dc.sweepVals = dc.sweepVals[:0]
	for _, s := range dc.sweeps {
		src, ok := ckt.Device(s.Source).(sweepable)
		if !ok {
			return errors.Errorf("source %s not found", s.Source)
		}
		vals, err := s.values()
		if err != nil {
			return err
		}
		dc.sources = append(dc.sources, src)
		dc.sweepVals = append(dc.sweepVals, vals)
	}
	return nil
}

func (dc *DCSweep) Execute(ctx context.Context) error {
	if dc.Circuit == nil {
		return errors.New("circuit not set")
	}
	dc.save()
	defer dc.restore()

	dc.Circuit.Status.Mode = device.DCSweep
	outer := []float64{0}
	if len(dc.sources) == 2 {
		outer = dc.sweepVals[1]
	}
	for _, v2 := range outer {
		if len(dc.sources) == 2 {
			dc.sources[1].SetValue(v2)
		}
		for i, v1 := range dc.sweepVals[0] {
			dc.sources[0].SetValue(v1)
			// Each point starts from the last one; junction init only once.
			var err error
			if i == 0 {
				err = dc.operatingPoint(ctx)
			} else {
				dc.Circuit.Status.Init = device.InitFloat
				if err = dc.iterate(ctx, dc.Settings.Itl1); errors.Is(err, ErrNoConvergence) {
					err = dc.operatingPoint(ctx)
				}
			}
			if err != nil {
				return errors.Wrapf(err, "%s=%g", dc.sweeps[0].Source, v1)
			}
			dc.append("SWEEP1", v1)
			if len(dc.sources) == 2 {
				dc.append("SWEEP2", v2)
			}
			for name, value := range dc.Circuit.GetSolution() {
				dc.append(name, value)
			}
		}
	}
	return nil
}

func (dc *DCSweep) save() {
	dc.saved = dc.saved[:0]
	for _, src := range dc.sources {
		saved := savedValue{value: src.GetValue()}
		if w := waveformOf(src); w != nil {
			saved.waveform = *w
		}
		dc.saved = append(dc.saved, saved)
	}
}

func (dc *DCSweep) restore() {
	for i, src := range dc.sources {
		src.SetValue(dc.saved[i].value)
		if w := waveformOf(src); w != nil {
			*w = dc.saved[i].waveform
		}
	}
}

func waveformOf(src sweepable) *device.Waveform {
	switch s := src.(type) {
	case *device.VoltageSource:
		return &s.Waveform
	case *device.CurrentSource:
		return &s.Waveform
	}
	return nil
}
