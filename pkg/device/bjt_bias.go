package device

import "math"

// bjtBias is the result of evaluating the transport model at one bias.
type bjtBias struct {
	vbe, vbc, vbx, vcs float64

	cbe, gbe float64 // forward diode, before excess phase
	cbc, gbc float64
	qb       float64
	dqbdve   float64
	dqbdvc   float64

	cc, cb   float64
	gpi, gmu float64
	gm, goo  float64
	gx       float64
}

// excessPhase turns the forward diode current into the transported part.
// It returns the delayed current, the scaled diode current and its
// conductance.
type excessPhase interface {
	apply(cbe, gbe, qb float64) (cc, cex, gex float64)
}

// quasiStatic is used in every analysis without a time step.
type quasiStatic struct{}

func (quasiStatic) apply(cbe, gbe, qb float64) (float64, float64, float64) {
	return 0, cbe, gbe
}

// weilPhase is the second order excess phase filter of the transient.
type weilPhase struct {
	q *BJT
}

func (w *weilPhase) apply(cbe, gbe, qb float64) (float64, float64, float64) {
	td := w.q.model.temp.td
	if td == 0 {
		return 0, cbe, gbe
	}
	method := w.q.method
	delta := method.Delta(0)
	prevDelta := method.Delta(1)
	if prevDelta == 0 {
		prevDelta = delta
	}

	arg1 := delta / td
	arg2 := 3 * arg1
	arg1 = arg2 * arg1
	denom := 1 + arg1 + arg2
	arg3 := arg1 / denom

	state := w.q.cexbc
	cc := (state.Previous(1)*(1+delta/prevDelta+arg2) - state.Previous(2)*delta/prevDelta) / denom
	cex := cbe * arg3
	gex := gbe * arg3
	state.SetValue(cc + cex/qb)
	return cc, cex, gex
}

// junctionVoltages returns vbe and vbc for this iteration, limited against
// the previous ones. Limiting marks the iteration non-convergent.
func (q *BJT) junctionVoltages() (vbe, vbc float64) {
	st := q.status
	typ := q.model.Type

	switch {
	case st.Init == InitJunction && st.UseIc && !q.Off:
		vbe = typ * q.IcVbe.Value
		vbc = vbe - typ*q.IcVce.Value
		return vbe, vbc
	case st.Init == InitJunction && !q.Off:
		return q.t.vcrit, 0
	case st.Init == InitJunction || (st.Init == InitFix && q.Off):
		return 0, 0
	case st.Init == InitTransient:
		return q.last.vbe, q.last.vbc
	}

	sol := q.solver.Solution()
	vbp := voltage(sol, q.basePrime)
	vbe = typ * (vbp - voltage(sol, q.emitPrime))
	vbc = typ * (vbp - voltage(sol, q.colPrime))

	var limitedBe, limitedBc bool
	vbe, limitedBe = LimitJunction(vbe, q.last.vbe, q.t.vt, q.t.vcrit)
	vbc, limitedBc = LimitJunction(vbc, q.last.vbc, q.t.vt, q.t.vcrit)
	if limitedBe || limitedBc {
		st.SetNonConvergent()
	}
	return vbe, vbc
}

// evaluate computes currents and conductances of the transport model.
func (q *BJT) evaluate(vbe, vbc float64, phase excessPhase) bjtBias {
	m := q.model
	mt := &m.temp
	t := &q.t
	gmin := q.status.Gmin
	area := q.Area.Value

	b := bjtBias{vbe: vbe, vbc: vbc}

	sol := q.solver.Solution()
	b.vbx = m.Type * (voltage(sol, q.base) - voltage(sol, q.colPrime))
	b.vcs = m.Type * (voltage(sol, q.subst) - voltage(sol, q.colPrime))

	csat := t.is * area
	rbpr := mt.rbm / area
	rbpi := m.RB.Value/area - rbpr
	c2 := t.ise * area
	c4 := t.isc * area

	vtn := t.vt * m.NF.Value
	var cben, gben float64
	if vbe > -5*vtn {
		evbe := math.Exp(vbe / vtn)
		b.cbe = csat*(evbe-1) + gmin*vbe
		b.gbe = csat*evbe/vtn + gmin
		if c2 != 0 {
			vte := m.NE.Value * t.vt
			evben := math.Exp(vbe / vte)
			cben = c2 * (evben - 1)
			gben = c2 * evben / vte
		}
	} else {
		b.gbe = -csat/vbe + gmin
		b.cbe = b.gbe * vbe
		gben = -c2 / vbe
		cben = gben * vbe
	}

	vtc := t.vt * m.NR.Value
	var cbcn, gbcn float64
	if vbc > -5*vtc {
		evbc := math.Exp(vbc / vtc)
		b.cbc = csat*(evbc-1) + gmin*vbc
		b.gbc = csat*evbc/vtc + gmin
		if c4 != 0 {
			vtcl := m.NC.Value * t.vt
			evbcn := math.Exp(vbc / vtcl)
			cbcn = c4 * (evbcn - 1)
			gbcn = c4 * evbcn / vtcl
		}
	} else {
		b.gbc = -csat/vbc + gmin
		b.cbc = b.gbc * vbc
		gbcn = -c4 / vbc
		cbcn = gbcn * vbc
	}

	// base charge
	q1 := 1 / (1 - mt.invEarlyF*vbc - mt.invEarlyR*vbe)
	if mt.invRollOffF == 0 && mt.invRollOffR == 0 {
		b.qb = q1
		b.dqbdve = q1 * b.qb * mt.invEarlyR
		b.dqbdvc = q1 * b.qb * mt.invEarlyF
	} else {
		q2 := mt.invRollOffF*b.cbe + mt.invRollOffR*b.cbc
		arg := math.Max(0, 1+4*q2)
		sqarg := 1.0
		if arg != 0 {
			sqarg = math.Sqrt(arg)
		}
		b.qb = q1 * (1 + sqarg) / 2
		b.dqbdve = q1 * (b.qb*mt.invEarlyR + mt.invRollOffF*b.gbe/sqarg)
		b.dqbdvc = q1 * (b.qb*mt.invEarlyF + mt.invRollOffR*b.gbc/sqarg)
	}

	cc, cex, gex := phase.apply(b.cbe, b.gbe, b.qb)

	b.cc = cc + (cex-b.cbc)/b.qb - b.cbc/t.br - cbcn
	b.cb = b.cbe/t.bf + cben + b.cbc/t.br + cbcn

	gx := rbpr + rbpi/b.qb
	if m.IRB.Value != 0 {
		xjrb := m.IRB.Value * area
		arg1 := math.Max(b.cb/xjrb, 1e-9)
		arg2 := (-1 + math.Sqrt(1+14.59025*arg1)) / 2.4317 / math.Sqrt(arg1)
		arg1 = math.Tan(arg2)
		gx = rbpr + 3*rbpi*(arg1-arg2)/arg2/arg1/arg1
	}
	if gx != 0 {
		gx = 1 / gx
	}
	b.gx = gx

	b.gpi = b.gbe/t.bf + gben
	b.gmu = b.gbc/t.br + gbcn
	b.goo = (b.gbc + (cex-b.cbc)*b.dqbdvc/b.qb) / b.qb
	b.gm = (gex-(cex-b.cbc)*b.dqbdve/b.qb)/b.qb - b.goo
	return b
}

// Load evaluates the transistor at the present iterate and stamps its
// linearization. In a transient the charge companions are stamped too.
func (q *BJT) Load() error {
	transient := q.status.Mode == TransientAnalysis && !q.status.UseDc && q.time != nil

	var phase excessPhase = quasiStatic{}
	if transient {
		phase = q.weil
	}

	vbe, vbc := q.junctionVoltages()
	b := q.evaluate(vbe, vbc, phase)
	q.last = b
	q.stampBias(&b)

	if transient {
		q.loadTransient(&b)
	}
	return nil
}

func (q *BJT) stampBias(b *bjtBias) {
	typ := q.model.Type
	mult := q.M.Value
	area := q.Area.Value
	gcpr := q.model.temp.gcollector * area
	gepr := q.model.temp.gemitter * area
	gpi, gmu, gm, goo, gx := b.gpi, b.gmu, b.gm, b.goo, b.gx

	ceqbe := typ * (b.cc + b.cb - b.vbe*(gm+goo+gpi) + b.vbc*goo)
	ceqbc := typ * (-b.cc + b.vbe*(gm+goo) - b.vbc*(gmu+goo))

	q.bias.Add(
		mult*gcpr,
		mult*gx,
		mult*gepr,
		mult*(gmu+goo+gcpr),
		mult*(gx+gpi+gmu),
		mult*(gpi+gepr+gm+goo),
		-mult*gcpr,
		-mult*gx,
		-mult*gepr,
		-mult*gcpr,
		mult*(-gmu+gm),
		mult*(-gm-goo),
		-mult*gx,
		-mult*gmu,
		-mult*gpi,
		-mult*gepr,
		-mult*goo,
		mult*(-gpi-gm),
	)
	q.bias.AddRHS(
		mult*ceqbc,
		mult*(-ceqbe-ceqbc),
		mult*ceqbe,
	)
}

// IsConvergent predicts the terminal currents from the linearization and
// compares them against the currents at the new solution.
func (q *BJT) IsConvergent() bool {
	typ := q.model.Type
	sol := q.solver.Solution()
	vbp := voltage(sol, q.basePrime)
	vbe := typ * (vbp - voltage(sol, q.emitPrime))
	vbc := typ * (vbp - voltage(sol, q.colPrime))

	b := &q.last
	delvbe := vbe - b.vbe
	delvbc := vbc - b.vbc
	cchat := b.cc + (b.gm+b.goo)*delvbe - (b.goo+b.gmu)*delvbc
	cbhat := b.cb + b.gpi*delvbe + b.gmu*delvbc

	st := q.status
	if math.Abs(cchat-b.cc) > st.Tolerance(cchat, b.cc) || math.Abs(cbhat-b.cb) > st.Tolerance(cbhat, b.cb) {
		st.SetNonConvergent()
		return false
	}
	return true
}
