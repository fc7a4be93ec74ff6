package device

// NoiseSources returns the thermal noise of the three series resistances,
// the shot noise of both junction currents and the base flicker noise.
func (q *BJT) NoiseSources() []NoiseSource {
	if q.complex == nil {
		return nil
	}
	m := q.model
	s := q.complex
	temp := q.t.temp
	mult := q.M.Value
	area := q.Area.Value

	var sources []NoiseSource
	if q.colPrime != q.col {
		g := m.temp.gcollector * area
		sources = append(sources, newNoiseSource(q.Name+".rc", s, q.col, q.colPrime, func(float64) float64 {
			return mult * thermalNoise(temp, g)
		}))
	}
	if q.basePrime != q.base {
		sources = append(sources, newNoiseSource(q.Name+".rb", s, q.base, q.basePrime, func(float64) float64 {
			return mult * thermalNoise(temp, q.last.gx)
		}))
	}
	if q.emitPrime != q.emit {
		g := m.temp.gemitter * area
		sources = append(sources, newNoiseSource(q.Name+".re", s, q.emit, q.emitPrime, func(float64) float64 {
			return mult * thermalNoise(temp, g)
		}))
	}
	sources = append(sources,
		newNoiseSource(q.Name+".ic", s, q.colPrime, q.emitPrime, func(float64) float64 {
			return mult * shotNoise(q.last.cc)
		}),
		newNoiseSource(q.Name+".ib", s, q.basePrime, q.emitPrime, func(float64) float64 {
			return mult * shotNoise(q.last.cb)
		}),
	)
	if m.KF.Value != 0 {
		sources = append(sources, newNoiseSource(q.Name+".flicker", s, q.basePrime, q.emitPrime, func(freq float64) float64 {
			return mult * flickerNoise(m.KF.Value, m.AF.Value, q.last.cb, freq)
		}))
	}
	return sources
}
