package device

import (
	"math"

	"github.com/edp1096/semispice/internal/consts"
)

// thermal returns the thermal voltage at temperature t.
func thermal(t float64) float64 {
	return t * consts.KOVERQ
}

// egap is the silicon bandgap at temperature t.
func egap(t float64) float64 {
	return 1.16 - (7.02e-4*t*t)/(t+1108)
}

// pbFactor is the junction potential shift between REFTEMP and t.
func pbFactor(t float64) float64 {
	vt := thermal(t)
	fact := t / consts.REFTEMP
	kt := consts.BOLTZMANN * t
	arg := -egap(t)/(kt+kt) + consts.EGFET0/(consts.BOLTZMANN*(consts.REFTEMP+consts.REFTEMP))
	return -2 * vt * (1.5*math.Log(fact) + consts.CHARGE*arg)
}

// criticalVoltage is the voltage above which junction steps get limited.
func criticalVoltage(vt, isat float64) float64 {
	return vt * math.Log(vt/(consts.ROOT2*isat))
}

// safeExp clamps the argument so the result stays finite.
func safeExp(x float64) float64 {
	return math.Exp(math.Min(x, consts.MAXEXP))
}

// gradingPower returns arg^(-m).
func gradingPower(arg, m float64) float64 {
	if m == 0.5 {
		return 1 / math.Sqrt(arg)
	}
	return math.Exp(-m * math.Log(arg))
}

// LimitJunction limits a new pn-junction voltage against the previous
// iteration so the exponential cannot run away. The second result reports
// whether the value was changed.
func LimitJunction(vnew, vold, vt, vcrit float64) (float64, bool) {
	if vnew <= vcrit || math.Abs(vnew-vold) <= vt+vt {
		return vnew, false
	}
	if vold > 0 {
		arg := 1 + (vnew-vold)/vt
		if arg > 0 {
			return vold + vt*math.Log(arg), true
		}
		return vcrit, true
	}
	return vt * math.Log(vnew/vt), true
}

// LimitFet limits a gate voltage step around the threshold vto.
func LimitFet(vnew, vold, vto float64) float64 {
	vtsthi := math.Abs(2*(vold-vto)) + 2
	vtstlo := math.Abs(vold-vto) + 1
	vtox := vto + 3.5
	delv := vnew - vold

	if vold >= vto {
		if vold >= vtox {
			if delv <= 0 {
				// going off
				if vnew >= vtox {
					if -delv > vtstlo {
						return vold - vtstlo
					}
					return vnew
				}
				return math.Max(vnew, vto+2)
			}
			// staying on
			if delv >= vtsthi {
				return vold + vtsthi
			}
			return vnew
		}
		// middle region
		if delv <= 0 {
			return math.Max(vnew, vto-0.5)
		}
		return math.Min(vnew, vto+4)
	}

	// off
	if delv <= 0 {
		if -delv > vtsthi {
			return vold - vtsthi
		}
		return vnew
	}
	vtemp := vto + 0.5
	if vnew <= vtemp {
		if delv > vtstlo {
			return vold + vtstlo
		}
		return vnew
	}
	return vtemp
}

// LimitVds limits a drain-source voltage step.
func LimitVds(vnew, vold float64) float64 {
	if vold >= 3.5 {
		if vnew > vold {
			return math.Min(vnew, 3*vold+2)
		}
		if vnew < 3.5 {
			return math.Max(vnew, 2)
		}
		return vnew
	}
	if vnew > vold {
		return math.Min(vnew, 4)
	}
	return math.Max(vnew, -0.5)
}

// Junction holds the temperature-adjusted depletion coefficients of one
// junction: below DepCap the textbook depletion charge is used, above it a
// quadratic extension that matches charge and capacitance at DepCap.
type Junction struct {
	Pot    float64
	M      float64
	DepCap float64
	F1     float64
	F2     float64
	F3     float64
}

// NewJunction derives the extension coefficients for potential pot,
// grading m and forward-bias coefficient fc.
func NewJunction(pot, m, fc float64) Junction {
	xfc := math.Log(1 - fc)
	return Junction{
		Pot:    pot,
		M:      m,
		DepCap: fc * pot,
		F1:     pot * (1 - math.Exp((1-m)*xfc)) / (1 - m),
		F2:     math.Exp((1 + m) * xfc),
		F3:     1 - fc*(1+m),
	}
}

// Charge returns the depletion charge and capacitance for zero-bias
// capacitance cz at voltage v.
func (j Junction) Charge(v, cz float64) (q, c float64) {
	if cz == 0 {
		return 0, 0
	}
	if v < j.DepCap {
		arg := 1 - v/j.Pot
		sarg := gradingPower(arg, j.M)
		q = j.Pot * cz * (1 - arg*sarg) / (1 - j.M)
		c = cz * sarg
		return q, c
	}
	czf2 := cz / j.F2
	q = cz*j.F1 + czf2*(j.F3*(v-j.DepCap)+j.M/(j.Pot+j.Pot)*(v*v-j.DepCap*j.DepCap))
	c = czf2 * (j.F3 + j.M*v/j.Pot)
	return q, c
}

// MeyerCharges evaluates half of the Meyer gate capacitances. The caller
// adds the other half from the previous time point plus the overlaps.
func MeyerCharges(vgs, vgd, von, vdsat, phi, cox float64) (cgs, cgd, cgb float64) {
	vgst := vgs - von
	vdsat = math.Max(vdsat, 0)
	switch {
	case vgst <= -phi:
		return 0, 0, cox / 2
	case vgst <= -phi/2:
		return 0, 0, -vgst * cox / (2 * phi)
	case vgst <= 0:
		return vgst*cox/(1.5*phi) + cox/3, 0, -vgst * cox / (2 * phi)
	}

	vds := vgs - vgd
	if vdsat <= vds {
		return cox / 3, 0, 0
	}
	vddif := 2*vdsat - vds
	vddif1 := vdsat - vds
	vddif2 := vddif * vddif
	cgd = cox * (1 - vdsat*vdsat/vddif2) / 3
	cgs = cox * (1 - vddif1*vddif1/vddif2) / 3
	return cgs, cgd, 0
}
