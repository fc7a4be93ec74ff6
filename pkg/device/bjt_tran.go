package device

// loadTransient integrates the four junction charges and stamps their
// companion models.
func (q *BJT) loadTransient(b *bjtBias) {
	ch := q.charges(b)
	q.chg = ch

	typ := q.model.Type
	mult := q.M.Value
	slope := q.method.Slope()

	q.qbe.SetValue(ch.qbe)
	q.qbc.SetValue(ch.qbc)
	q.qcs.SetValue(ch.qcs)
	q.qbx.SetValue(ch.qbx)

	gpi, cqbe := q.qbe.Integrate(ch.capbe, b.vbe)
	gmu, cqbc := q.qbc.Integrate(ch.capbc, b.vbc)
	gccs, cqcs := q.qcs.Integrate(ch.capcs, b.vcs)
	geqbx, cqbx := q.qbx.Integrate(ch.capbx, b.vbx)
	geqcb := slope * ch.geqcb

	ceqbe := typ * (cqbe - b.vbc*geqcb)
	ceqbc := typ * cqbc
	ceqcs := typ * cqcs
	ceqbx := typ * cqbx

	q.time.Add(
		mult*geqbx,
		mult*(gmu+gccs+geqbx),
		mult*(gpi+gmu+geqcb),
		mult*gpi,
		-mult*gmu,
		mult*(-gmu-geqcb),
		-mult*gpi,
		mult*geqcb,
		mult*(-gpi-geqcb),
		mult*gccs,
		-mult*gccs,
		-mult*gccs,
		-mult*geqbx,
		-mult*geqbx,
	)
	q.time.AddRHS(
		-mult*ceqbx,
		-mult*ceqcs,
		mult*(ceqcs+ceqbx+ceqbc),
		mult*(-ceqbe-ceqbc),
		mult*ceqbe,
	)
}

// InitializeStates seeds the charges and the excess phase filter from the
// operating point.
func (q *BJT) InitializeStates() error {
	if q.method == nil {
		return nil
	}
	b := &q.last
	ch := q.charges(b)
	q.chg = ch
	q.qbe.SetValue(ch.qbe)
	q.qbc.SetValue(ch.qbc)
	q.qcs.SetValue(ch.qcs)
	q.qbx.SetValue(ch.qbx)
	q.cexbc.SetValue(b.cbe / b.qb)
	return nil
}
