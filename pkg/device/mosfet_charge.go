package device

// mosCaps holds the charge state of the last evaluation. cgs, cgd and cgb
// are Meyer half capacitances without overlap.
type mosCaps struct {
	qbs, capbs    float64
	qbd, capbd    float64
	cgs, cgd, cgb float64
}

// bulkCharge is the bottom plus sidewall depletion charge of one bulk
// junction with the shared quadratic extension above depCap.
func (m *Mosfet) bulkCharge(v, cz, czsw, f2, f3, f4 float64) (q, c float64) {
	if cz == 0 && czsw == 0 {
		return 0, 0
	}
	t := &m.t
	mod := m.model
	if v < t.depCap {
		arg := 1 - v/t.bulkPot
		mj, mjsw := mod.MJ.Value, mod.MJSW.Value
		sarg := gradingPower(arg, mj)
		sargsw := gradingPower(arg, mjsw)
		q = t.bulkPot * (cz*(1-arg*sarg)/(1-mj) + czsw*(1-arg*sargsw)/(1-mjsw))
		c = cz*sarg + czsw*sargsw
		return q, c
	}
	q = f4 + v*(f2+v*(f3/2))
	c = f2 + f3*v
	return q, c
}

// charges evaluates both bulk junctions and the Meyer gate capacitances.
// In reverse mode drain and source roles are swapped for Meyer.
func (m *Mosfet) charges(b *mosBias) mosCaps {
	t := &m.t
	var c mosCaps
	c.qbs, c.capbs = m.bulkCharge(b.vbs, t.czbs, t.czbssw, t.f2s, t.f3s, t.f4s)
	c.qbd, c.capbd = m.bulkCharge(b.vbd, t.czbd, t.czbdsw, t.f2d, t.f3d, t.f4d)
	if b.mode > 0 {
		c.cgs, c.cgd, c.cgb = MeyerCharges(b.vgs, b.vgd, b.von, b.vdsat, t.phi, t.oxideCap)
	} else {
		c.cgd, c.cgs, c.cgb = MeyerCharges(b.vgd, b.vgs, b.von, b.vdsat, t.phi, t.oxideCap)
	}
	return c
}

func (m *Mosfet) overlaps() (ovgs, ovgd, ovgb float64) {
	mod := m.model
	w := m.W.Value * m.M.Value
	return mod.CGSO.Value * w, mod.CGDO.Value * w, mod.CGBO.Value * m.M.Value * m.t.leff
}

// loadCharges integrates the bulk and gate charges of a transient step.
// The bulk diode conductances and currents of b get the charge parts
// added; the gate companions are returned.
func (m *Mosfet) loadCharges(b *mosBias) gateCompanion {
	c := m.charges(b)
	m.caps = c

	m.qbs.SetValue(c.qbs)
	m.qbd.SetValue(c.qbd)
	gbs, _ := m.qbs.Integrate(c.capbs, b.vbs)
	gbd, _ := m.qbd.Integrate(c.capbd, b.vbd)
	b.gbs += gbs
	b.cbs += m.qbs.Derivative()
	b.gbd += gbd
	b.cbd += m.qbd.Derivative()

	vgb := b.vgs - b.vbs
	m.capgs.SetValue(c.cgs)
	m.capgd.SetValue(c.cgd)
	m.capgb.SetValue(c.cgb)
	m.vgsState.SetValue(b.vgs)
	m.vgdState.SetValue(b.vgd)
	m.vgbState.SetValue(vgb)

	ovgs, ovgd, ovgb := m.overlaps()
	capgs := c.cgs + m.capgs.Previous(1) + ovgs
	capgd := c.cgd + m.capgd.Previous(1) + ovgd
	capgb := c.cgb + m.capgb.Previous(1) + ovgb

	m.qgs.SetValue((b.vgs-m.vgsState.Previous(1))*capgs + m.qgs.Previous(1))
	m.qgd.SetValue((b.vgd-m.vgdState.Previous(1))*capgd + m.qgd.Previous(1))
	m.qgb.SetValue((vgb-m.vgbState.Previous(1))*capgb + m.qgb.Previous(1))

	var g gateCompanion
	g.gGs, g.cGs = m.qgs.Integrate(capgs, b.vgs)
	g.gGd, g.cGd = m.qgd.Integrate(capgd, b.vgd)
	g.gGb, g.cGb = m.qgb.Integrate(capgb, vgb)
	return g
}

// InitializeStates seeds every charge from the operating point.
func (m *Mosfet) InitializeStates() error {
	if m.method == nil {
		return nil
	}
	b := &m.last
	c := m.charges(b)
	m.caps = c
	vgb := b.vgs - b.vbs

	m.qbs.SetValue(c.qbs)
	m.qbd.SetValue(c.qbd)

	m.capgs.SetValue(c.cgs)
	m.capgd.SetValue(c.cgd)
	m.capgb.SetValue(c.cgb)
	m.vgsState.SetValue(b.vgs)
	m.vgdState.SetValue(b.vgd)
	m.vgbState.SetValue(vgb)

	ovgs, ovgd, ovgb := m.overlaps()
	m.qgs.SetValue(b.vgs * (2*c.cgs + ovgs))
	m.qgd.SetValue(b.vgd * (2*c.cgd + ovgd))
	m.qgb.SetValue(vgb * (2*c.cgb + ovgb))
	return nil
}
