// Package subckt instantiates subcircuit definitions either flattened into
// the parent equations or behind a local solver that hands the parent an
// equivalent boundary stamp.
package subckt

import (
	"strings"

	"github.com/edp1096/semispice/pkg/device"
	"github.com/pkg/errors"
)

// ErrNoEquivalentSubcircuit is returned when the internal block of a local
// subcircuit cannot be factored, so no boundary equivalent exists.
var ErrNoEquivalentSubcircuit = errors.New("subckt: no equivalent subcircuit")

// ErrPinCount indicates an instance whose connection list does not match
// the definition.
var ErrPinCount = errors.New("subckt: pin count mismatch")

// Definition is a parsed .subckt body. Build returns a fresh set of child
// devices whose names start with prefix, so every instance owns its own.
type Definition struct {
	Name  string
	Pins  []string
	Build func(prefix string) ([]device.Device, error)
}

// Mode selects how an instance joins its parent.
type Mode int

const (
	// Flat maps internal nodes straight into the parent system.
	Flat Mode = iota
	// Local solves the internal nodes in a private system.
	Local
)

func (m Mode) String() string {
	if m == Local {
		return "local"
	}
	return "flat"
}

// ParseMode accepts "flat" and "local", case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "flat":
		return Flat, nil
	case "local":
		return Local, nil
	}
	return Flat, errors.Errorf("unknown subcircuit mode %q", s)
}

func isGround(name string) bool {
	return name == "0" || strings.EqualFold(name, "gnd")
}
