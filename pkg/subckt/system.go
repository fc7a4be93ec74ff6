package subckt

import (
	"github.com/edp1096/semispice/pkg/matrix"
	"gonum.org/v1/gonum/mat"
)

// system is the private MNA system of a local subcircuit. Local index
// 1..nb are the boundary pins, nb+1..nb+ni the internal nodes. Blocks
// touching the boundary are dense, the internal block is sparse.
type system struct {
	nb, ni    int
	isComplex bool

	internal *matrix.CircuitMatrix // nil without internal nodes

	// row-major blocks, imaginary parts only on complex systems
	abb, abbIm []float64 // nb x nb
	abi, abiIm []float64 // nb x ni
	aib, aibIm []float64 // ni x nb
	bb, bbIm   []float64 // boundary rhs

	// local voltages, shared between the real and complex system
	solution []float64

	// reduction of the real system
	z, y []float64 // A_ii^-1 A_ib and A_ii^-1 b_i
	s, r []float64 // Schur complement and reduced rhs

	// reduction of the complex system
	zc, yc []complex128
	sc, rc []complex128
}

func newSystem(nb, ni int, isComplex bool) (*system, error) {
	s := &system{
		nb:        nb,
		ni:        ni,
		isComplex: isComplex,
		abb:       make([]float64, nb*nb),
		abi:       make([]float64, nb*ni),
		aib:       make([]float64, ni*nb),
		bb:        make([]float64, nb),
		solution:  make([]float64, nb+ni+1),
	}
	if isComplex {
		s.abbIm = make([]float64, nb*nb)
		s.abiIm = make([]float64, nb*ni)
		s.aibIm = make([]float64, ni*nb)
		s.bbIm = make([]float64, nb)
		s.zc = make([]complex128, ni*nb)
		s.yc = make([]complex128, ni)
		s.sc = make([]complex128, nb*nb)
		s.rc = make([]complex128, nb)
	} else {
		s.z = make([]float64, ni*nb)
		s.y = make([]float64, ni)
		s.s = make([]float64, nb*nb)
		s.r = make([]float64, nb)
	}
	if ni > 0 {
		internal, err := matrix.NewMatrix(ni, isComplex)
		if err != nil {
			return nil, err
		}
		s.internal = internal
	}
	return s, nil
}

func (s *system) Size() int { return s.nb + s.ni }

func (s *system) elem(re, im []float64, k int) matrix.Element {
	if s.isComplex {
		return matrix.NewElement(&re[k], &im[k])
	}
	return matrix.NewElement(&re[k], nil)
}

func (s *system) GetElement(row, col int) matrix.Element {
	nb := s.nb
	switch {
	case row == 0 || col == 0:
		return matrix.Element{}
	case row > nb && col > nb:
		return s.internal.GetElement(row-nb, col-nb)
	case row <= nb && col <= nb:
		return s.elem(s.abb, s.abbIm, (row-1)*nb+col-1)
	case row <= nb:
		return s.elem(s.abi, s.abiIm, (row-1)*s.ni+col-nb-1)
	default:
		return s.elem(s.aib, s.aibIm, (row-nb-1)*nb+col-1)
	}
}

func (s *system) GetRHS(row int) matrix.Element {
	switch {
	case row == 0:
		return matrix.Element{}
	case row <= s.nb:
		return s.elem(s.bb, s.bbIm, row-1)
	default:
		return s.internal.GetRHS(row - s.nb)
	}
}

func (s *system) Solution() []float64 { return s.solution }

func (s *system) clear() {
	for _, v := range [][]float64{s.abb, s.abbIm, s.abi, s.abiIm, s.aib, s.aibIm} {
		clear(v)
	}
	if s.internal != nil {
		s.internal.Clear()
	}
	s.clearRHS()
}

func (s *system) clearRHS() {
	clear(s.bb)
	clear(s.bbIm)
	if s.internal != nil {
		s.internal.ClearRHS()
	}
}

// setBoundary copies the boundary voltages out of the parent solution.
func (s *system) setBoundary(parent []float64, boundary []int) {
	for k, idx := range boundary {
		v := 0.0
		if idx > 0 && idx < len(parent) {
			v = parent[idx]
		}
		s.solution[k+1] = v
	}
}

// reduce factors the internal block and forms
// S = A_bb - A_bi A_ii^-1 A_ib and r = b_b - A_bi A_ii^-1 b_i.
func (s *system) reduce() error {
	nb, ni := s.nb, s.ni
	if ni == 0 {
		copy(s.s, s.abb)
		copy(s.r, s.bb)
		return nil
	}
	if err := s.internal.Factor(); err != nil {
		return err
	}

	rhs := make([]float64, ni+1)
	for j := 0; j < nb; j++ {
		for i := 0; i < ni; i++ {
			rhs[i+1] = s.aib[i*nb+j]
		}
		sol, err := s.internal.SolveFor(rhs)
		if err != nil {
			return err
		}
		for i := 0; i < ni; i++ {
			s.z[i*nb+j] = sol[i+1]
		}
	}
	if err := s.solveInternalRHS(); err != nil {
		return err
	}
	if nb == 0 {
		return nil
	}

	abi := mat.NewDense(nb, ni, s.abi)
	var prod mat.Dense
	prod.Mul(abi, mat.NewDense(ni, nb, s.z))
	mat.NewDense(nb, nb, s.s).Sub(mat.NewDense(nb, nb, s.abb), &prod)

	var ry mat.VecDense
	ry.MulVec(abi, mat.NewVecDense(ni, s.y))
	mat.NewVecDense(nb, s.r).SubVec(mat.NewVecDense(nb, s.bb), &ry)
	return nil
}

func (s *system) solveInternalRHS() error {
	rhs := append([]float64(nil), s.internal.RHS()...)
	sol, err := s.internal.SolveFor(rhs)
	if err != nil {
		return err
	}
	copy(s.y, sol[1:s.ni+1])
	return nil
}

// backSolve recovers the internal voltages x_i = y - Z v_b for the boundary
// voltages already in the solution.
func (s *system) backSolve() {
	nb, ni := s.nb, s.ni
	if ni == 0 {
		return
	}
	xi := mat.NewVecDense(ni, s.solution[nb+1:nb+ni+1])
	xi.CopyVec(mat.NewVecDense(ni, s.y))
	if nb == 0 {
		return
	}
	var zv mat.VecDense
	zv.MulVec(mat.NewDense(ni, nb, s.z), mat.NewVecDense(nb, s.solution[1:nb+1]))
	xi.SubVec(xi, &zv)
}

// reduceComplex is reduce for the small-signal system.
func (s *system) reduceComplex() error {
	nb, ni := s.nb, s.ni
	if ni == 0 {
		for k := range s.sc {
			s.sc[k] = complex(s.abb[k], s.abbIm[k])
		}
		for k := range s.rc {
			s.rc[k] = complex(s.bb[k], s.bbIm[k])
		}
		return nil
	}
	if err := s.internal.Factor(); err != nil {
		return err
	}

	rhs := make([]float64, 2*(ni+1))
	for j := 0; j < nb; j++ {
		for i := 0; i < ni; i++ {
			k := i*nb + j
			rhs[2*(i+1)] = s.aib[k]
			rhs[2*(i+1)+1] = s.aibIm[k]
		}
		sol, err := s.internal.SolveComplexFor(rhs)
		if err != nil {
			return err
		}
		for i := 0; i < ni; i++ {
			s.zc[i*nb+j] = complex(sol[2*(i+1)], sol[2*(i+1)+1])
		}
	}

	for i := 0; i < nb; i++ {
		for j := 0; j < nb; j++ {
			k := i*nb + j
			acc := complex(s.abb[k], s.abbIm[k])
			for l := 0; l < ni; l++ {
				acc -= complex(s.abi[i*ni+l], s.abiIm[i*ni+l]) * s.zc[l*nb+j]
			}
			s.sc[k] = acc
		}
	}
	return s.reduceComplexRHS()
}

// reduceComplexRHS forms the reduced rhs with the present factorization.
// The noise analysis calls it once per injected generator.
func (s *system) reduceComplexRHS() error {
	nb, ni := s.nb, s.ni
	for i := 0; i < nb; i++ {
		s.rc[i] = complex(s.bb[i], s.bbIm[i])
	}
	if ni == 0 {
		return nil
	}
	rhs := append([]float64(nil), s.internal.RHS()...)
	sol, err := s.internal.SolveComplexFor(rhs)
	if err != nil {
		return err
	}
	for i := 0; i < ni; i++ {
		s.yc[i] = complex(sol[2*(i+1)], sol[2*(i+1)+1])
	}
	for i := 0; i < nb; i++ {
		for l := 0; l < ni; l++ {
			s.rc[i] -= complex(s.abi[i*ni+l], s.abiIm[i*ni+l]) * s.yc[l]
		}
	}
	return nil
}

func (s *system) destroy() {
	if s.internal != nil {
		s.internal.Destroy()
		s.internal = nil
	}
}
