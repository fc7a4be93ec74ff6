// Package config loads simulator options from an HCL file and merges the
// overrides a netlist carries in .options and .temp cards.
package config

import (
	"context"
	"strconv"
	"strings"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/netlist"
	"github.com/edp1096/semispice/pkg/subckt"
	"github.com/edp1096/semispice/pkg/util"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// ErrInvalidOption is returned for an option value out of range.
var ErrInvalidOption = errors.New("config: invalid option")

// Options are the simulation-wide settings. Temperatures are in Celsius.
type Options struct {
	Temp   float64 `hcl:"temp,optional"`
	Tnom   float64 `hcl:"tnom,optional"`
	Gmin   float64 `hcl:"gmin,optional"`
	RelTol float64 `hcl:"reltol,optional"`
	AbsTol float64 `hcl:"abstol,optional"`
	VnTol  float64 `hcl:"vntol,optional"`
	Itl1   int     `hcl:"itl1,optional"`
	Itl4   int     `hcl:"itl4,optional"`
	Method string  `hcl:"method,optional"`
	MaxOrd int     `hcl:"maxord,optional"`

	GminSteps int `hcl:"gminsteps,optional"`
	SrcSteps  int `hcl:"srcsteps,optional"`

	// LocalSubckt solves X instances on their own reduced system.
	LocalSubckt bool `hcl:"local_subckt,optional"`
	LocalIter   int  `hcl:"local_iter,optional"`
	Parallel    bool `hcl:"parallel,optional"`
}

func Default() Options {
	return Options{
		Temp:      27,
		Tnom:      27,
		Gmin:      1e-12,
		RelTol:    1e-3,
		AbsTol:    1e-12,
		VnTol:     1e-6,
		Itl1:      100,
		Itl4:      10,
		Method:    "trap",
		MaxOrd:    2,
		GminSteps: 10,
		SrcSteps:  10,
		LocalIter: 1,
	}
}

// evalContext exposes a few constants and numeric functions to option
// expressions, e.g. temp = room + 50.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"room":   cty.NumberFloatVal(consts.REFTEMP - consts.KELVIN),
			"kelvin": cty.NumberFloatVal(consts.KELVIN),
		},
		Functions: map[string]function.Function{
			"min": stdlib.MinFunc,
			"max": stdlib.MaxFunc,
			"abs": stdlib.AbsoluteFunc,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(ctx context.Context, path string) (Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading options", "path", path)

	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return opts, errors.Wrapf(diags, "parse %s", path)
	}
	return decode(file, opts)
}

// Parse is Load for an in-memory file.
func Parse(src []byte, filename string) (Options, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return Default(), errors.Wrapf(diags, "parse %s", filename)
	}
	return decode(file, Default())
}

func decode(file *hcl.File, opts Options) (Options, error) {
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &opts); diags.HasErrors() {
		return opts, errors.Wrap(diags, "decode options")
	}
	return opts, opts.Validate()
}

// ApplyNetlist overrides options with the values of .options and .temp
// cards. Unknown keys are ignored since SPICE decks carry many options this
// simulator has no use for.
func (o *Options) ApplyNetlist(values map[string]string) error {
	for key, raw := range values {
		var err error
		switch strings.ToLower(key) {
		case "temp":
			o.Temp, err = netlist.ParseValue(raw)
		case "tnom":
			o.Tnom, err = netlist.ParseValue(raw)
		case "gmin":
			o.Gmin, err = netlist.ParseValue(raw)
		case "reltol":
			o.RelTol, err = netlist.ParseValue(raw)
		case "abstol":
			o.AbsTol, err = netlist.ParseValue(raw)
		case "vntol":
			o.VnTol, err = netlist.ParseValue(raw)
		case "itl1":
			o.Itl1, err = strconv.Atoi(raw)
		case "itl4":
			o.Itl4, err = strconv.Atoi(raw)
		case "maxord":
			o.MaxOrd, err = strconv.Atoi(raw)
		case "gminsteps":
			o.GminSteps, err = strconv.Atoi(raw)
		case "srcsteps":
			o.SrcSteps, err = strconv.Atoi(raw)
		case "method":
			o.Method = strings.ToLower(raw)
		default:
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "option %s", key)
		}
	}
	return o.Validate()
}

func (o Options) Validate() error {
	switch {
	case o.RelTol <= 0 || o.RelTol >= 1:
		return errors.Wrapf(ErrInvalidOption, "reltol %g", o.RelTol)
	case o.AbsTol <= 0:
		return errors.Wrapf(ErrInvalidOption, "abstol %g", o.AbsTol)
	case o.VnTol <= 0:
		return errors.Wrapf(ErrInvalidOption, "vntol %g", o.VnTol)
	case o.Gmin < 0:
		return errors.Wrapf(ErrInvalidOption, "gmin %g", o.Gmin)
	case o.Itl1 < 1 || o.Itl4 < 1:
		return errors.Wrapf(ErrInvalidOption, "iteration limits %d/%d", o.Itl1, o.Itl4)
	case o.Temp+consts.KELVIN <= 0 || o.Tnom+consts.KELVIN <= 0:
		return errors.Wrapf(ErrInvalidOption, "temperature below absolute zero")
	case o.LocalIter < 0:
		return errors.Wrapf(ErrInvalidOption, "local_iter %d", o.LocalIter)
	}
	_, err := o.IntegrationMethod()
	return err
}

func (o Options) IntegrationMethod() (util.IntegrationMethod, error) {
	switch strings.ToLower(o.Method) {
	case "", "trap", "trapezoidal":
		return util.TrapezoidalMethod, nil
	case "gear", "bdf":
		return util.GearMethod, nil
	}
	return 0, errors.Wrapf(ErrInvalidOption, "method %q", o.Method)
}

func (o Options) SubcktMode() subckt.Mode {
	if o.LocalSubckt {
		return subckt.Local
	}
	return subckt.Flat
}

// ApplyStatus copies temperatures and tolerances into status.
func (o Options) ApplyStatus(status *device.CircuitStatus) {
	status.Temp = o.Temp + consts.KELVIN
	status.NomTemp = o.Tnom + consts.KELVIN
	status.Gmin = o.Gmin
	status.RelTol = o.RelTol
	status.AbsTol = o.AbsTol
	status.VnTol = o.VnTol
}
