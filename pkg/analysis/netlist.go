package analysis

import (
	"github.com/edp1096/semispice/pkg/netlist"
	"github.com/pkg/errors"
)

// FromNetlist creates the analysis a deck's control card asks for.
func FromNetlist(data *netlist.NetlistData, settings Settings) (Analysis, error) {
	var a Analysis
	var base *BaseAnalysis

	switch data.Analysis {
	case netlist.AnalysisOP:
		op := NewOP()
		a, base = op, &op.BaseAnalysis
	case netlist.AnalysisTRAN:
		p := data.TranParam
		tr := NewTransient(p.TStart, p.TStop, p.TStep, p.TMax, p.UIC)
		a, base = tr, &tr.BaseAnalysis
	case netlist.AnalysisAC:
		p := data.ACParam
		ac := NewAC(p.FStart, p.FStop, p.Points, p.Sweep)
		a, base = ac, &ac.BaseAnalysis
	case netlist.AnalysisDC:
		p := data.DCParam
		sweeps := []Sweep{{Source: p.Source1, Start: p.Start1, Stop: p.Stop1, Increment: p.Increment1}}
		if p.Source2 != "" {
			sweeps = append(sweeps, Sweep{Source: p.Source2, Start: p.Start2, Stop: p.Stop2, Increment: p.Increment2})
		}
		dc := NewDCSweep(sweeps...)
		a, base = dc, &dc.BaseAnalysis
	case netlist.AnalysisNOISE:
		p := data.NoiseParam
		n := NewNoise(p.Output, p.Ref, p.Input, p.Sweep, p.Points, p.FStart, p.FStop)
		a, base = n, &n.BaseAnalysis
	default:
		return nil, errors.Errorf("unsupported analysis type %v", data.Analysis)
	}
	base.Settings = settings
	return a, nil
}
