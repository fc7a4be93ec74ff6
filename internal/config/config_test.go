package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/semispice/internal/consts"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/subckt"
	"github.com/edp1096/semispice/pkg/util"
)

func TestParseExpressions(t *testing.T) {
	opts, err := Parse([]byte(`
temp         = room + 23
reltol       = 1e-4
method       = "gear"
maxord       = 4
local_subckt = true
local_iter   = max(3, 2)
`), "sim.hcl")
	require.NoError(t, err)

	assert.InDelta(t, 50, opts.Temp, 1e-9)
	assert.Equal(t, 27.0, opts.Tnom)
	assert.Equal(t, 1e-4, opts.RelTol)
	assert.Equal(t, 4, opts.MaxOrd)
	assert.Equal(t, 3, opts.LocalIter)
	assert.Equal(t, subckt.Local, opts.SubcktMode())

	method, err := opts.IntegrationMethod()
	require.NoError(t, err)
	assert.Equal(t, util.GearMethod, method)
}

func TestParseRejects(t *testing.T) {
	for name, src := range map[string]string{
		"syntax":        "temp = = 1",
		"unknown key":   "colour = 1",
		"bad method":    `method = "euler"`,
		"reltol range":  "reltol = 2",
		"frozen":        "temp = -300",
		"undefined var": "temp = outside",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "options.hcl")
			assert.Error(t, err)
		})
	}
	_, err := Parse([]byte("itl1 = 0"), "itl.hcl")
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestLoad(t *testing.T) {
	opts, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), opts)

	path := filepath.Join(t.TempDir(), "sim.hcl")
	require.NoError(t, os.WriteFile(path, []byte("gmin = 1e-9\nparallel = true\n"), 0o644))
	opts, err = Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1e-9, opts.Gmin)
	assert.True(t, opts.Parallel)
	assert.Equal(t, subckt.Flat, opts.SubcktMode())

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestApplyNetlist(t *testing.T) {
	opts := Default()
	require.NoError(t, opts.ApplyNetlist(map[string]string{
		"temp":     "85",
		"ITL1":     "300",
		"abstol":   "1p",
		"method":   "GEAR",
		"noopiter": "1",
	}))
	assert.Equal(t, 85.0, opts.Temp)
	assert.Equal(t, 300, opts.Itl1)
	assert.Equal(t, 1e-12, opts.AbsTol)
	assert.Equal(t, "gear", opts.Method)

	opts = Default()
	assert.Error(t, opts.ApplyNetlist(map[string]string{"itl4": "many"}))
	opts = Default()
	assert.ErrorIs(t, opts.ApplyNetlist(map[string]string{"vntol": "0"}), ErrInvalidOption)
}

func TestApplyStatus(t *testing.T) {
	opts := Default()
	opts.Temp = 100
	status := device.NewCircuitStatus()
	opts.ApplyStatus(status)

	assert.Equal(t, 100+consts.KELVIN, status.Temp)
	assert.Equal(t, 27+consts.KELVIN, status.NomTemp)
	assert.Equal(t, opts.RelTol, status.RelTol)
	assert.Equal(t, opts.Gmin, status.Gmin)
}
