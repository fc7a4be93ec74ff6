package device

import "math"

type SourceType int

const (
	DC SourceType = iota
	SIN
	PULSE
	PWL
)

// Waveform is the time dependence of an independent source.
type Waveform struct {
	Type SourceType
	// DC, common params
	DC float64
	// SIN params
	Amplitude float64
	Freq      float64
	Phase     float64 // degrees
	// PULSE params
	V1     float64
	V2     float64
	Delay  float64
	Rise   float64
	Fall   float64
	PWidth float64
	Period float64
	// PWL params
	Times  []float64
	Values []float64
}

// Initial is the value used by every analysis without a time axis.
func (w *Waveform) Initial() float64 {
	switch w.Type {
	case PULSE:
		return w.V1
	case PWL:
		if len(w.Values) == 0 {
			return 0
		}
		return w.Values[0]
	default:
		return w.DC
	}
}

func (w *Waveform) At(t float64) float64 {
	switch w.Type {
	case SIN:
		phaseRad := w.Phase * math.Pi / 180.0
		return w.DC + w.Amplitude*math.Sin(2.0*math.Pi*w.Freq*t+phaseRad)
	case PULSE:
		return w.pulse(t)
	case PWL:
		return w.pwl(t)
	default:
		return w.DC
	}
}

func (w *Waveform) pulse(t float64) float64 {
	if t < w.Delay {
		return w.V1
	}

	t = t - w.Delay
	if w.Period > 0 {
		t = math.Mod(t, w.Period)
	}

	if t < w.Rise {
		return w.V1 + (w.V2-w.V1)*t/w.Rise
	}
	if t < w.Rise+w.PWidth {
		return w.V2
	}

	fallStart := w.Rise + w.PWidth
	if t < fallStart+w.Fall {
		return w.V2 - (w.V2-w.V1)*(t-fallStart)/w.Fall
	}
	return w.V1
}

func (w *Waveform) pwl(t float64) float64 {
	if len(w.Times) == 0 {
		return 0
	}
	if t <= w.Times[0] {
		return w.Values[0]
	}

	lastIdx := len(w.Times) - 1
	if t >= w.Times[lastIdx] {
		return w.Values[lastIdx]
	}

	for i := 1; i < len(w.Times); i++ {
		if t <= w.Times[i] {
			t1, t2 := w.Times[i-1], w.Times[i]
			v1, v2 := w.Values[i-1], w.Values[i]
			slope := (v2 - v1) / (t2 - t1)
			return v1 + slope*(t-t1)
		}
	}
	return w.Values[lastIdx] // Must not reach
}

// sourceValue is the source value for the present analysis point,
// scaled by the source stepping factor.
func sourceValue(w *Waveform, status *CircuitStatus) float64 {
	v := w.Initial()
	if status.Mode == TransientAnalysis {
		v = w.At(status.Time)
	}
	return v * status.SrcFact
}

func phasor(mag, phaseDeg float64) complex128 {
	phaseRad := phaseDeg * math.Pi / 180.0
	return complex(mag*math.Cos(phaseRad), mag*math.Sin(phaseRad))
}
