package matrix

import (
	"fmt"
	"io"

	"github.com/edp1096/sparse"
	"github.com/pkg/errors"
)

// ErrSingular is returned when the sparse factorization fails.
var ErrSingular = errors.New("matrix: singular matrix")

type CircuitMatrix struct {
	size      int
	matrix    *sparse.Matrix
	rhs       []float64
	rhsImag   []float64
	solution  []float64
	solImag   []float64
	diag      []Element
	isComplex bool
	config    *sparse.Configuration
}

func NewMatrix(size int, isComplex bool) (*CircuitMatrix, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 isComplex,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %dx%d sparse matrix", size, size)
	}

	// rhs and solution are 1-based; complex vectors are interleaved re/im
	vectorSize := size + 1
	if isComplex {
		vectorSize *= 2
	}

	m := &CircuitMatrix{
		size:      size,
		matrix:    mat,
		rhs:       make([]float64, vectorSize),
		rhsImag:   make([]float64, 1),
		solution:  make([]float64, vectorSize),
		isComplex: isComplex,
		config:    config,
	}

	// Every row gets a diagonal so that gmin can be loaded and the
	// ordering never meets a structurally empty pivot column.
	m.diag = make([]Element, size+1)
	for i := 1; i <= size; i++ {
		m.diag[i] = m.GetElement(i, i)
	}
	return m, nil
}

func (m *CircuitMatrix) Size() int { return m.size }

func (m *CircuitMatrix) IsComplex() bool { return m.isComplex }

func (m *CircuitMatrix) GetElement(row, col int) Element {
	if row == 0 || col == 0 {
		return Element{}
	}
	if row < 0 || col < 0 || row > m.size || col > m.size {
		panic(fmt.Sprintf("matrix: element (%d, %d) outside %dx%d system", row, col, m.size, m.size))
	}
	e := m.matrix.GetElement(int64(row), int64(col))
	if m.isComplex {
		return Element{re: &e.Real, im: &e.Imag}
	}
	return Element{re: &e.Real}
}

func (m *CircuitMatrix) GetRHS(row int) Element {
	if row == 0 {
		return Element{}
	}
	if row < 0 || row > m.size {
		panic(fmt.Sprintf("matrix: rhs row %d outside system of size %d", row, m.size))
	}
	if m.isComplex {
		return Element{re: &m.rhs[2*row], im: &m.rhs[2*row+1]}
	}
	return Element{re: &m.rhs[row]}
}

// LoadGmin adds gmin to the diagonal of the given rows (the node
// equations, branch rows are left alone).
func (m *CircuitMatrix) LoadGmin(gmin float64, rows []int) {
	if gmin == 0 {
		return
	}
	for _, i := range rows {
		if i > 0 && i <= m.size {
			m.diag[i].Add(gmin)
		}
	}
}

func (m *CircuitMatrix) Clear() {
	m.matrix.Clear()
	m.ClearRHS()
}

// ClearRHS zeroes the rhs and keeps matrix values and factorization.
func (m *CircuitMatrix) ClearRHS() {
	for i := range m.rhs {
		m.rhs[i] = 0
	}
}

// Factor factors the matrix in place. Stamped values are lost until the
// next Clear and load pass.
func (m *CircuitMatrix) Factor() error {
	if err := m.matrix.Factor(); err != nil {
		return errors.Wrap(ErrSingular, err.Error())
	}
	return nil
}

// SolveFor solves the already factored system for an arbitrary real rhs.
func (m *CircuitMatrix) SolveFor(rhs []float64) ([]float64, error) {
	sol, err := m.matrix.Solve(rhs)
	if err != nil {
		return nil, errors.Wrap(err, "matrix solve failed")
	}
	return sol, nil
}

// SolveComplexFor solves the factored complex system for an interleaved
// rhs and returns the interleaved solution.
func (m *CircuitMatrix) SolveComplexFor(rhs []float64) ([]float64, error) {
	sol, _, err := m.matrix.SolveComplex(rhs, m.rhsImag)
	if err != nil {
		return nil, errors.Wrap(err, "matrix solve failed")
	}
	return sol, nil
}

// Solve factors the matrix and solves it for the stamped rhs.
func (m *CircuitMatrix) Solve() error {
	if err := m.Factor(); err != nil {
		return err
	}
	return m.SolveFactored()
}

// SolveFactored solves for the stamped rhs reusing the last factorization.
func (m *CircuitMatrix) SolveFactored() error {
	var err error
	if m.isComplex {
		m.solution, m.solImag, err = m.matrix.SolveComplex(m.rhs, m.rhsImag)
	} else {
		m.solution, err = m.matrix.Solve(m.rhs)
	}
	if err != nil {
		return errors.Wrap(err, "matrix solve failed")
	}
	m.solution[0] = 0
	return nil
}

// RHS exposes the rhs vector, mostly for the noise driver which injects
// unit currents into it.
func (m *CircuitMatrix) RHS() []float64 {
	return m.rhs
}

func (m *CircuitMatrix) Solution() []float64 {
	return m.solution
}

// ComplexSolution returns the phasor of equation i after a complex solve.
func (m *CircuitMatrix) ComplexSolution(i int) complex128 {
	if !m.isComplex || i <= 0 || i > m.size {
		return 0
	}
	return complex(m.solution[2*i], m.solution[2*i+1])
}

// PrintSystem writes the stamped equations before factorization.
func (m *CircuitMatrix) PrintSystem(w io.Writer) {
	fmt.Fprintf(w, "\nCircuit Equations (%dx%d):\n", m.size, m.size)
	for i := 1; i <= m.size; i++ {
		fmt.Fprintf(w, "Equation %d:", i)
		for j := 1; j <= m.size; j++ {
			v := m.GetElement(i, j).ComplexValue()
			switch {
			case v == 0:
			case imag(v) == 0:
				fmt.Fprintf(w, "  %+g*x%d", real(v), j)
			default:
				fmt.Fprintf(w, "  (%g%+gj)*x%d", real(v), imag(v), j)
			}
		}
		rhs := m.GetRHS(i).ComplexValue()
		if m.isComplex {
			fmt.Fprintf(w, " = %g%+gj\n", real(rhs), imag(rhs))
		} else {
			fmt.Fprintf(w, " = %g\n", real(rhs))
		}
	}
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}
