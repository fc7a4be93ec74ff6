package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBDFCoefficientsSumToZero(t *testing.T) {
	for order := 1; order <= 6; order++ {
		sum := 0.0
		for _, c := range GetBDFcoeffs(order, 1e-3) {
			sum += c
		}
		assert.InDelta(t, 0, sum, 1e-9, "order %d", order)
	}
}

func TestBDFExactForPolynomials(t *testing.T) {
	const dt = 0.5
	for order := 1; order <= 6; order++ {
		tn := float64(order)*dt + 1
		coeffs := GetBDFcoeffs(order, dt)
		require.Len(t, coeffs, order+1)

		got := 0.0
		for i, c := range coeffs {
			got += c * math.Pow(tn-float64(i)*dt, float64(order))
		}
		want := float64(order) * math.Pow(tn, float64(order-1))
		assert.InEpsilon(t, want, got, 1e-9, "order %d", order)
	}
}

func TestNewMethodOrderLimits(t *testing.T) {
	assert.Equal(t, 2, NewMethod(TrapezoidalMethod, 5).MaxOrder)
	assert.Equal(t, 6, NewMethod(GearMethod, 0).MaxOrder)
	assert.Equal(t, 3, NewMethod(GearMethod, 3).MaxOrder)
	assert.Equal(t, 1, NewMethod(GearMethod, 3).Order())
	assert.Equal(t, "trap", TrapezoidalMethod.String())
	assert.Equal(t, "gear", GearMethod.String())
}

func TestGearSecondOrderDerivative(t *testing.T) {
	const dt = 0.1
	m := NewMethod(GearMethod, 2)
	d := m.CreateDerivative()

	m.SetStep(dt)
	m.Seed()
	d.SetValue(dt * dt)
	d.Derive()
	assert.InDelta(t, dt, d.Derivative(), 1e-12)
	m.Accept()
	require.Equal(t, 2, m.Order())

	// q = t^2 sampled at 0, dt, 2dt
	m.SetStep(dt)
	d.SetValue(4 * dt * dt)
	d.Derive()
	assert.InDelta(t, 4*dt, d.Derivative(), 1e-12)
}

func TestTrapezoidalRampCurrent(t *testing.T) {
	const (
		dt = 1e-6
		c  = 1e-9
		i  = 1e-3
	)
	m := NewMethod(TrapezoidalMethod, 2)
	d := m.CreateDerivative()
	m.SetStep(dt)
	m.Seed()

	for step := 1; step <= 5; step++ {
		m.SetStep(dt)
		v := i * float64(step) * dt / c
		d.SetValue(c * v)
		geq, ceq := d.Integrate(c, v)

		assert.InEpsilon(t, i, d.Derivative(), 1e-9, "step %d", step)
		assert.InEpsilon(t, m.Slope()*c, geq, 1e-12)
		assert.InDelta(t, i, geq*v+ceq, 1e-12)
		m.Accept()
	}
	assert.Equal(t, 2, m.Order())
	assert.InEpsilon(t, 2/dt, m.Slope(), 1e-12)
}

func TestSetStepRestartsOrder(t *testing.T) {
	m := NewMethod(GearMethod, 4)
	m.SetStep(1e-3)
	m.Accept()
	m.SetStep(1e-3)
	m.Accept()
	require.Equal(t, 3, m.Order())

	m.SetStep(1e-3)
	assert.Equal(t, 3, m.Order())
	assert.Equal(t, 1e-3, m.Delta(1))

	m.SetStep(5e-4)
	assert.Equal(t, 1, m.Order())
	assert.InEpsilon(t, 1/5e-4, m.Slope(), 1e-12)
	assert.Zero(t, m.Delta(-1))
}

func TestStateHistory(t *testing.T) {
	m := NewMethod(GearMethod, 2)
	s := m.CreateState()
	s.SetValue(1)
	m.Seed()
	assert.Equal(t, 1.0, s.Previous(2))

	s.SetValue(2)
	m.Accept()
	s.SetValue(3)
	assert.Equal(t, 3.0, s.Value())
	assert.Equal(t, 2.0, s.Previous(1))
	assert.Equal(t, 1.0, s.Previous(2))
}
