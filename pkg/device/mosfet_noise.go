package device

import "math"

// NoiseSources returns the thermal noise of the series resistances, the
// channel thermal noise and the drain flicker noise.
func (m *Mosfet) NoiseSources() []NoiseSource {
	if m.complex == nil {
		return nil
	}
	s := m.complex
	temp := m.t.temp

	var sources []NoiseSource
	if m.drainPrime != m.drain {
		g := m.t.gdpr
		sources = append(sources, newNoiseSource(m.Name+".rd", s, m.drain, m.drainPrime, func(float64) float64 {
			return thermalNoise(temp, g)
		}))
	}
	if m.sourcePrime != m.source {
		g := m.t.gspr
		sources = append(sources, newNoiseSource(m.Name+".rs", s, m.source, m.sourcePrime, func(float64) float64 {
			return thermalNoise(temp, g)
		}))
	}
	sources = append(sources, newNoiseSource(m.Name+".id", s, m.drainPrime, m.sourcePrime, func(float64) float64 {
		return thermalNoise(temp, 2.0/3.0*math.Abs(m.last.gm))
	}))
	if kf := m.model.KF.Value; kf != 0 {
		sources = append(sources, newNoiseSource(m.Name+".flicker", s, m.drainPrime, m.sourcePrime, func(freq float64) float64 {
			cox := m.model.temp.cox
			leff := m.t.leff
			if cox == 0 || leff == 0 {
				return 0
			}
			return flickerNoise(kf, m.model.AF.Value, m.last.cdrain, freq) / (cox * leff * leff)
		}))
	}
	return sources
}
