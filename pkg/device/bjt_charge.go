package device

import "math"

// bjtCharges holds the junction charges and their incremental
// capacitances. geqcb is the transcapacitance of the B-E diffusion charge
// with respect to vbc.
type bjtCharges struct {
	qbe, capbe float64
	qbc, capbc float64
	qbx, capbx float64
	qcs, capcs float64
	geqcb      float64
}

// charges splits every junction charge into a depletion part and, for the
// B-E and B-C junctions, a diffusion part proportional to the transit time.
func (q *BJT) charges(b *bjtBias) bjtCharges {
	m := q.model
	mt := &m.temp
	t := &q.t
	area := q.Area.Value

	tf := m.TF.Value
	tr := m.TR.Value
	czbe := t.beCap * area
	ctot := t.bcCap * area
	czbc := ctot * m.XCJC.Value
	czbx := ctot - czbc
	czcs := m.CJS.Value * area

	var ch bjtCharges
	cbe, gbe := b.cbe, b.gbe
	if tf != 0 && b.vbe > 0 {
		var argtf, arg2, arg3 float64
		if xtf := m.XTF.Value; xtf != 0 {
			argtf = xtf
			if mt.ovtf != 0 {
				argtf *= math.Exp(b.vbc * mt.ovtf)
			}
			arg2 = argtf
			if xjtf := m.ITF.Value * area; xjtf != 0 {
				tmp := cbe / (cbe + xjtf)
				argtf *= tmp * tmp
				arg2 = argtf * (3 - tmp - tmp)
			}
			arg3 = cbe * argtf * mt.ovtf
		}
		cbe = cbe * (1 + argtf) / b.qb
		gbe = (gbe*(1+arg2) - cbe*b.dqbdve) / b.qb
		ch.geqcb = tf * (arg3 - cbe*b.dqbdvc) / b.qb
	}

	qdep, cdep := t.be.Charge(b.vbe, czbe)
	ch.qbe = tf*cbe + qdep
	ch.capbe = tf*gbe + cdep

	qdep, cdep = t.bc.Charge(b.vbc, czbc)
	ch.qbc = tr*b.cbc + qdep
	ch.capbc = tr*b.gbc + cdep

	ch.qbx, ch.capbx = t.bc.Charge(b.vbx, czbx)
	ch.qcs, ch.capcs = substrateCharge(b.vcs, czcs, m.VJS.Value, m.MJS.Value)
	return ch
}

// substrateCharge has no forward-bias extension: a forward biased
// substrate junction gets a linearly rising capacitance.
func substrateCharge(vcs, cz, pot, m float64) (q, c float64) {
	if cz == 0 {
		return 0, 0
	}
	if vcs < 0 {
		arg := 1 - vcs/pot
		sarg := gradingPower(arg, m)
		return pot * cz * (1 - arg*sarg) / (1 - m), cz * sarg
	}
	return vcs * cz * (1 + m*vcs/(2*pot)), cz * (1 + m*vcs/pot)
}
