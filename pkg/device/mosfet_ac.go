package device

// LoadAC stamps the small-signal admittances at the operating point.
func (m *Mosfet) LoadAC() error {
	if m.ac == nil {
		return nil
	}
	b := &m.last
	c := m.charges(b)
	m.caps = c
	omega := m.status.Omega

	ovgs, ovgd, ovgb := m.overlaps()
	xgs := complex(0, (2*c.cgs+ovgs)*omega)
	xgd := complex(0, (2*c.cgd+ovgd)*omega)
	xgb := complex(0, (2*c.cgb+ovgb)*omega)
	xbd := complex(0, c.capbd*omega)
	xbs := complex(0, c.capbs*omega)

	xnrm, xrev := complex(1, 0), complex(0, 0)
	if b.mode < 0 {
		xnrm, xrev = 0, 1
	}
	gdpr := complex(m.t.gdpr, 0)
	gspr := complex(m.t.gspr, 0)
	gm := complex(b.gm, 0)
	gds := complex(b.gds, 0)
	gmbs := complex(b.gmbs, 0)
	gbd := complex(b.gbd, 0)
	gbs := complex(b.gbs, 0)

	m.ac.AddComplex(
		gdpr,
		xgd+xgs+xgb,
		gspr,
		gbd+gbs+xgb+xbd+xbs,
		gdpr+gds+gbd+xrev*(gm+gmbs)+xgd+xbd,
		gspr+gds+gbs+xnrm*(gm+gmbs)+xgs+xbs,
		-gdpr,
		-xgb,
		-xgd,
		-xgs,
		-gspr,
		-xgb,
		-gbd-xbd,
		-gbs-xbs,
		-gdpr,
		(xnrm-xrev)*gm-xgd,
		-gbd+(xnrm-xrev)*gmbs-xbd,
		-gds-xnrm*(gm+gmbs),
		-(xnrm-xrev)*gm-xgs,
		-gspr,
		-gbs-(xnrm-xrev)*gmbs-xbs,
		-gds-xrev*(gm+gmbs),
	)
	return nil
}
