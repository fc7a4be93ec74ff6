package device

import (
	"math"

	"github.com/edp1096/semispice/internal/consts"
)

// bjtTemp holds the instance quantities scaled to the device temperature.
type bjtTemp struct {
	temp  float64
	vt    float64
	is    float64
	bf    float64
	br    float64
	ise   float64
	isc   float64
	vcrit float64
	be    Junction
	bc    Junction
	beCap float64
	bcCap float64
}

// Temperature scales the model parameters to the instance temperature.
// Calling it twice without a change in between yields identical values.
func (q *BJT) Temperature() error {
	m := q.model
	m.temperature(q.status, q.logger)
	mt := &m.temp
	t := &q.t

	t.temp = q.temperature()
	t.vt = thermal(t.temp)
	fact2 := t.temp / consts.REFTEMP
	pbfact := pbFactor(t.temp)

	ratlog := math.Log(t.temp / mt.tnom)
	ratio1 := t.temp/mt.tnom - 1
	factlog := ratio1*m.EG.Value/t.vt + m.XTI.Value*ratlog
	factor := math.Exp(factlog)
	bfactor := math.Exp(ratlog * m.XTB.Value)

	t.is = m.IS.Value * factor
	t.bf = m.BF.Value * bfactor
	t.br = m.BR.Value * bfactor
	t.ise = mt.ise * math.Exp(factlog/m.NE.Value) / bfactor
	t.isc = mt.isc * math.Exp(factlog/m.NC.Value) / bfactor

	var bePot, bcPot float64
	t.beCap, bePot = scaleJunction(m.CJE.Value, m.VJE.Value, m.MJE.Value, mt.tnom, t.temp, mt.factor1, fact2, pbfact)
	t.bcCap, bcPot = scaleJunction(m.CJC.Value, m.VJC.Value, m.MJC.Value, mt.tnom, t.temp, mt.factor1, fact2, pbfact)
	t.be = NewJunction(bePot, m.MJE.Value, mt.fc)
	t.bc = NewJunction(bcPot, m.MJC.Value, mt.fc)

	t.vcrit = criticalVoltage(t.vt, t.is*q.Area.Value)
	return nil
}

// scaleJunction moves a zero-bias capacitance and its built-in potential
// from tnom to temp. factor1 and fact2 are tnom and temp over REFTEMP.
func scaleJunction(cap, pot, m, tnom, temp, factor1, fact2, pbfact float64) (float64, float64) {
	pbo := (pot - pbfact) / factor1
	gmaold := (pot - pbo) / pbo
	cap /= 1 + m*(4e-4*(tnom-consts.REFTEMP)-gmaold)
	tpot := fact2*pbo + pbfact
	gmanew := (tpot - pbo) / pbo
	cap *= 1 + m*(4e-4*(temp-consts.REFTEMP)-gmanew)
	return cap, tpot
}
