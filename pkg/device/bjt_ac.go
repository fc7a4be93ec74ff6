package device

import "math/cmplx"

// LoadAC stamps the small-signal admittances at the operating point. With
// excess phase the transconductance turns complex.
func (q *BJT) LoadAC() error {
	if q.ac == nil {
		return nil
	}
	b := &q.last
	ch := q.charges(b)
	q.chg = ch

	mult := complex(q.M.Value, 0)
	area := q.Area.Value
	omega := q.status.Omega

	gcpr := complex(q.model.temp.gcollector*area, 0)
	gepr := complex(q.model.temp.gemitter*area, 0)
	gpi := complex(b.gpi, 0)
	gmu := complex(b.gmu, 0)
	goo := complex(b.goo, 0)
	gx := complex(b.gx, 0)

	gm := complex(b.gm, 0)
	if td := q.model.temp.td; td != 0 {
		gm = (gm+goo)*cmplx.Exp(complex(0, -omega*td)) - goo
	}

	xcpi := complex(0, ch.capbe*omega)
	xcmu := complex(0, ch.capbc*omega)
	xcbx := complex(0, ch.capbx*omega)
	xccs := complex(0, ch.capcs*omega)
	xcmcb := complex(0, ch.geqcb*omega)

	q.ac.AddComplex(
		mult*gcpr,
		mult*(gx+xcbx),
		mult*gepr,
		mult*(gmu+goo+gcpr+xcmu+xccs+xcbx),
		mult*(gx+gpi+gmu+xcpi+xcmu+xcmcb),
		mult*(gpi+gepr+gm+goo+xcpi),
		-mult*gcpr,
		-mult*gx,
		-mult*gepr,
		-mult*gcpr,
		mult*(-gmu+gm-xcmu),
		mult*(-gm-goo),
		-mult*gx,
		mult*(-gmu-xcmu-xcmcb),
		mult*(-gpi-xcpi),
		-mult*gepr,
		mult*(-goo+xcmcb),
		mult*(-gpi-gm-xcpi-xcmcb),
		mult*xccs,
		-mult*xccs,
		-mult*xccs,
		-mult*xcbx,
		-mult*xcbx,
	)
	return nil
}
