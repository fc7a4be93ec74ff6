package device

import (
	"fmt"
	"sort"
	"strings"
)

// Param is a numeric parameter that remembers whether it was given
// explicitly. Several defaults depend on that.
type Param struct {
	Value float64
	Given bool
}

// P returns a parameter holding its default.
func P(def float64) Param {
	return Param{Value: def}
}

func (p *Param) Set(v float64) {
	p.Value = v
	p.Given = true
}

// Or returns the value if given and def otherwise.
func (p Param) Or(def float64) float64 {
	if p.Given {
		return p.Value
	}
	return def
}

// ParamTable maps lower-case SPICE names, aliases included, onto fields.
type ParamTable map[string]*Param

func (t ParamTable) Set(name string, v float64) error {
	p, ok := t[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownParameter, name)
	}
	p.Set(v)
	return nil
}

// SetAll applies values in sorted name order so aliases resolve
// deterministically.
func (t ParamTable) SetAll(values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := t.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}
