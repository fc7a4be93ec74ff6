package device

import "math"

// mosBias is the type-normalized linearization of one load.
type mosBias struct {
	vgs, vds, vbs float64
	vbd, vgd      float64
	mode          float64 // +1 normal, -1 drain and source swapped

	von, vdsat float64

	cdrain, gm, gds, gmbs float64
	gbd, gbs, cbd, cbs    float64 // bulk diodes, charge currents included in a transient
	id                    float64
}

// terminalVoltages returns vgs, vds and vbs for this iteration after
// limiting against the previous linearization.
func (m *Mosfet) terminalVoltages() (vgs, vds, vbs float64) {
	st := m.status
	typ := m.model.Type
	t := &m.t
	prev := &m.last

	switch {
	case st.Init == InitTransient:
		return prev.vgs, prev.vds, prev.vbs

	case st.Init == InitFloat || (st.Init == InitFix && !m.Off):
		sol := m.solver.Solution()
		vsp := voltage(sol, m.sourcePrime)
		vbs = typ * (voltage(sol, m.bulk) - vsp)
		vgs = typ * (voltage(sol, m.gate) - vsp)
		vds = typ * (voltage(sol, m.drainPrime) - vsp)
		vbd := vbs - vds
		vgd := vgs - vds
		vgdo := prev.vgs - prev.vds

		if prev.vds >= 0 {
			vgs = LimitFet(vgs, prev.vgs, prev.von)
			vds = vgs - vgd
			vds = LimitVds(vds, prev.vds)
		} else {
			vgd = LimitFet(vgd, vgdo, prev.von)
			vds = vgs - vgd
			vds = -LimitVds(-vds, -prev.vds)
			vgs = vgd + vds
		}

		var limited bool
		if vds >= 0 {
			vbs, limited = LimitJunction(vbs, prev.vbs, t.vt, t.sourceVcrit)
		} else {
			vbd, limited = LimitJunction(vbd, prev.vbd, t.vt, t.drainVcrit)
			vbs = vbd + vds
		}
		if limited && !m.Off && st.Init != InitFix {
			st.SetNonConvergent()
		}
		return vgs, vds, vbs

	case st.Init == InitJunction && !m.Off:
		vds = typ * m.IcVds.Value
		vgs = typ * m.IcVgs.Value
		vbs = typ * m.IcVbs.Value
		if vds == 0 && vgs == 0 && vbs == 0 && !st.UseIc {
			vbs = -1
			vgs = typ * t.vto
			vds = 0
		}
		return vgs, vds, vbs
	}
	return 0, 0, 0
}

// evaluate computes the channel and bulk diode currents.
func (m *Mosfet) evaluate(vgs, vds, vbs float64) mosBias {
	mod := m.model
	t := &m.t
	gmin := m.status.Gmin
	mult := m.M.Value

	b := mosBias{vgs: vgs, vds: vds, vbs: vbs}
	b.vbd = vbs - vds
	b.vgd = vgs - vds

	drainSat, sourceSat := mult*t.is, mult*t.is
	if t.js != 0 && m.AD.Value != 0 && m.AS.Value != 0 {
		drainSat = mult * t.js * m.AD.Value
		sourceSat = mult * t.js * m.AS.Value
	}
	b.gbs, b.cbs = bulkDiode(b.vbs, sourceSat, t.vt, gmin)
	b.gbd, b.cbd = bulkDiode(b.vbd, drainSat, t.vt, gmin)

	b.mode = 1
	if vds < 0 {
		b.mode = -1
	}

	vb, vg := b.vbs, b.vgs
	if b.mode < 0 {
		vb, vg = b.vbd, b.vgd
	}

	var sarg float64
	if vb <= 0 {
		sarg = math.Sqrt(t.phi - vb)
	} else {
		sarg = math.Sqrt(t.phi)
		sarg = math.Max(0, sarg-vb/(sarg+sarg))
	}
	gamma := mod.temp.gamma
	b.von = t.vbi*mod.Type + gamma*sarg
	vgst := vg - b.von
	b.vdsat = math.Max(vgst, 0)
	arg := 0.0
	if sarg > 0 {
		arg = gamma / (sarg + sarg)
	}

	if vgst > 0 {
		// saturation and linear regions
		lambda := mod.LAMBDA.Value
		vdsm := vds * b.mode
		betap := t.beta * (1 + lambda*vdsm)
		if vgst <= vdsm {
			b.cdrain = betap * vgst * vgst * 0.5
			b.gm = betap * vgst
			b.gds = lambda * t.beta * vgst * vgst * 0.5
		} else {
			b.cdrain = betap * vdsm * (vgst - 0.5*vdsm)
			b.gm = betap * vdsm
			b.gds = betap*(vgst-vdsm) + lambda*t.beta*vdsm*(vgst-0.5*vdsm)
		}
		b.gmbs = b.gm * arg
	}
	return b
}

// bulkDiode returns conductance and current of a bulk junction.
func bulkDiode(v, isat, vt, gmin float64) (g, c float64) {
	if v <= -3*vt {
		g = gmin
		return g, g*v - isat
	}
	ev := safeExp(v / vt)
	return isat*ev/vt + gmin, isat*(ev-1) + gmin*v
}

// Load evaluates the transistor at the present iterate and stamps its
// linearization. In a transient the gate and bulk charge companions are
// folded into the same stamp.
func (m *Mosfet) Load() error {
	vgs, vds, vbs := m.terminalVoltages()
	b := m.evaluate(vgs, vds, vbs)

	var g gateCompanion
	st := m.status
	if st.Mode == TransientAnalysis && !st.UseDc && m.method != nil {
		g = m.loadCharges(&b)
	}
	b.id = b.mode*b.cdrain - b.cbd
	m.last = b
	m.stamp(&b, &g)
	return nil
}

// gateCompanion holds the gate charge companions of a transient step.
type gateCompanion struct {
	gGs, gGd, gGb float64
	cGs, cGd, cGb float64
}

func (m *Mosfet) stamp(b *mosBias, g *gateCompanion) {
	typ := m.model.Type
	gdpr, gspr := m.t.gdpr, m.t.gspr

	xnrm, xrev := 1.0, 0.0
	cdreq := typ * (b.cdrain - b.gds*b.vds - b.gm*b.vgs - b.gmbs*b.vbs)
	if b.mode < 0 {
		xnrm, xrev = 0, 1
		cdreq = -typ * (b.cdrain + b.gds*b.vds - b.gm*b.vgd - b.gmbs*b.vbd)
	}
	ceqbs := typ * (b.cbs - b.gbs*b.vbs)
	ceqbd := typ * (b.cbd - b.gbd*b.vbd)

	gm, gds, gmbs, gbd, gbs := b.gm, b.gds, b.gmbs, b.gbd, b.gbs
	m.bias.Add(
		gdpr,
		g.gGd+g.gGs+g.gGb,
		gspr,
		gbd+gbs+g.gGb,
		gdpr+gds+gbd+xrev*(gm+gmbs)+g.gGd,
		gspr+gds+gbs+xnrm*(gm+gmbs)+g.gGs,
		-gdpr,
		-g.gGb,
		-g.gGd,
		-g.gGs,
		-gspr,
		-g.gGb,
		-gbd,
		-gbs,
		-gdpr,
		(xnrm-xrev)*gm-g.gGd,
		-gbd+(xnrm-xrev)*gmbs,
		-gds-xnrm*(gm+gmbs),
		-(xnrm-xrev)*gm-g.gGs,
		-gspr,
		-gbs-(xnrm-xrev)*gmbs,
		-gds-xrev*(gm+gmbs),
	)
	m.bias.AddRHS(
		-typ*(g.cGs+g.cGb+g.cGd),
		-(ceqbs+ceqbd-typ*g.cGb),
		ceqbd-cdreq+typ*g.cGd,
		cdreq+ceqbs+typ*g.cGs,
	)
}

// IsConvergent predicts drain and bulk currents from the linearization.
func (m *Mosfet) IsConvergent() bool {
	typ := m.model.Type
	sol := m.solver.Solution()
	vsp := voltage(sol, m.sourcePrime)
	vbs := typ * (voltage(sol, m.bulk) - vsp)
	vgs := typ * (voltage(sol, m.gate) - vsp)
	vds := typ * (voltage(sol, m.drainPrime) - vsp)
	vbd := vbs - vds
	vgd := vgs - vds

	b := &m.last
	delvbs := vbs - b.vbs
	delvbd := vbd - b.vbd
	delvgs := vgs - b.vgs
	delvds := vds - b.vds
	delvgd := vgd - b.vgd

	var cdhat float64
	if b.mode >= 0 {
		cdhat = b.id - b.gbd*delvbd + b.gmbs*delvbs + b.gm*delvgs + b.gds*delvds
	} else {
		cdhat = b.id - (b.gbd-b.gmbs)*delvbd - b.gm*delvgd + b.gds*delvds
	}
	cbhat := b.cbs + b.cbd + b.gbd*delvbd + b.gbs*delvbs
	cbulk := b.cbs + b.cbd

	st := m.status
	if math.Abs(cdhat-b.id) > st.Tolerance(cdhat, b.id) || math.Abs(cbhat-cbulk) > st.Tolerance(cbhat, cbulk) {
		st.SetNonConvergent()
		return false
	}
	return true
}

// OperatingPoint reports the last linearization in terminal polarity.
func (m *Mosfet) OperatingPoint() MosfetOperatingPoint {
	typ := m.model.Type
	b := &m.last
	c := &m.caps
	return MosfetOperatingPoint{
		Vgs: typ * b.vgs, Vds: typ * b.vds, Vbs: typ * b.vbs,
		Id:  typ * b.id,
		Von: typ * b.von, Vdsat: typ * b.vdsat,
		Gm: b.gm, Gds: b.gds, Gmbs: b.gmbs,
		Gbd: b.gbd, Gbs: b.gbs,
		Cgs: c.cgs, Cgd: c.cgd, Cgb: c.cgb,
		Cbd: c.capbd, Cbs: c.capbs,
		Mode: int(b.mode),
	}
}
