package circuit

import (
	"github.com/edp1096/semispice/pkg/netlist"
	"github.com/edp1096/semispice/pkg/subckt"
)

// NewFromNetlist creates a circuit holding the top level elements of data.
// X instances default to mode and local ones run up to localIterations
// inner Newton passes.
func NewFromNetlist(data *netlist.NetlistData, mode subckt.Mode, localIterations int) (*Circuit, error) {
	b := netlist.NewBuilder(data, mode)
	if localIterations > 0 {
		b.MaxLocalIterations = localIterations
	}
	devs, err := b.Devices()
	if err != nil {
		return nil, err
	}
	c := New(data.Title)
	c.Add(devs...)
	return c, nil
}
