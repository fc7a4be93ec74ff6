package main

import (
	"image/color"
	"math"
	"strings"

	"github.com/edp1096/semispice/pkg/netlist"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotResults draws every result vector against the analysis axis. AC
// magnitudes and noise densities use a logarithmic frequency axis.
func plotResults(title string, kind netlist.AnalysisType, results map[string][]float64, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.Add(plotter.NewGrid())

	var axis string
	var names []string
	logX := false
	switch kind {
	case netlist.AnalysisTRAN:
		axis = "TIME"
		p.X.Label.Text = "time (s)"
		names = getKeys(results, "", "TIME")
	case netlist.AnalysisDC:
		axis = "SWEEP1"
		p.X.Label.Text = "sweep"
		names = getKeys(results, "", "SWEEP1", "SWEEP2")
	case netlist.AnalysisAC:
		axis, logX = "FREQ", true
		p.X.Label.Text = "frequency (Hz)"
		p.Y.Label.Text = "magnitude (dB)"
		for _, name := range getKeys(results, "V(") {
			if strings.HasSuffix(name, "_MAG") {
				names = append(names, name)
			}
		}
	case netlist.AnalysisNOISE:
		axis, logX = "FREQ", true
		p.X.Label.Text = "frequency (Hz)"
		p.Y.Label.Text = "density (/sqrt(Hz))"
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
		names = []string{"ONOISE", "INOISE"}
	default:
		return nil
	}
	if logX {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	xs := results[axis]
	for i, name := range names {
		ys := results[name]
		pts := make(plotter.XYs, 0, len(xs))
		for k := range xs {
			y := ys[k]
			if kind == netlist.AnalysisAC {
				y = 20 * math.Log10(math.Max(y, 1e-30))
			}
			if math.IsInf(y, 0) || math.IsNaN(y) || (kind == netlist.AnalysisNOISE && y <= 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: xs[k], Y: y})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i / 7)
		p.Add(line)
		p.Legend.Add(strings.TrimSuffix(name, "_MAG"), line)
	}
	p.Legend.Top = true
	p.BackgroundColor = color.White

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
