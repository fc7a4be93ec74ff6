package matrix

// Element is a stamp location resolved once at bind time. Contributions are
// always added, never assigned, because several devices share rows.
// The zero Element stands for a ground row or column and drops whatever is
// added to it.
type Element struct {
	re *float64
	im *float64
}

// Add adds a real contribution.
func (e Element) Add(value float64) {
	if e.re != nil {
		*e.re += value
	}
}

// AddComplex adds a complex contribution. The imaginary part is dropped on
// real solvers.
func (e Element) AddComplex(value complex128) {
	if e.re == nil {
		return
	}
	*e.re += real(value)
	if e.im != nil {
		*e.im += imag(value)
	}
}

func (e Element) Value() float64 {
	if e.re == nil {
		return 0
	}
	return *e.re
}

func (e Element) ComplexValue() complex128 {
	if e.re == nil {
		return 0
	}
	if e.im == nil {
		return complex(*e.re, 0)
	}
	return complex(*e.re, *e.im)
}

// IsGround reports whether the element discards contributions.
func (e Element) IsGround() bool {
	return e.re == nil
}

// NewElement wraps storage owned by a solver implementation.
func NewElement(re, im *float64) Element {
	return Element{re: re, im: im}
}

// Solver is the stamping view of an MNA system. Indices are 1-based, 0 is
// ground.
type Solver interface {
	Size() int
	GetElement(row, col int) Element
	GetRHS(row int) Element
	Solution() []float64
}

// Location is a (row, column) pair of the MNA matrix.
type Location struct {
	Row, Col int
}

// ElementSet is a fixed list of matrix and RHS handles loaded together in
// the order they were declared.
type ElementSet struct {
	elements []Element
	rhs      []Element
}

func NewElementSet(s Solver, locations []Location, rhs ...int) *ElementSet {
	es := &ElementSet{
		elements: make([]Element, len(locations)),
		rhs:      make([]Element, len(rhs)),
	}
	for i, loc := range locations {
		es.elements[i] = s.GetElement(loc.Row, loc.Col)
	}
	for i, row := range rhs {
		es.rhs[i] = s.GetRHS(row)
	}
	return es
}

// Add adds one value per matrix location.
func (es *ElementSet) Add(values ...float64) {
	for i, v := range values {
		es.elements[i].Add(v)
	}
}

func (es *ElementSet) AddComplex(values ...complex128) {
	for i, v := range values {
		es.elements[i].AddComplex(v)
	}
}

// AddRHS adds one value per RHS row.
func (es *ElementSet) AddRHS(values ...float64) {
	for i, v := range values {
		es.rhs[i].Add(v)
	}
}

func (es *ElementSet) AddComplexRHS(values ...complex128) {
	for i, v := range values {
		es.rhs[i].AddComplex(v)
	}
}

func (es *ElementSet) Len() int { return len(es.elements) }
