// Package linalg provides the small dense-matrix primitives the tracker's
// Kalman filter needs: creation, multiply, transpose, add, subtract, scalar
// multiply, determinant and inverse for matrices no larger than 4x4. It is a
// thin, error-checked wrapper around gonum's mat.Dense.
package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NumericError reports a failed matrix operation, most commonly inversion
// of a singular (or near-singular) matrix. Callers must treat a
// NumericError as a signal to drop the candidate hypothesis that produced
// it rather than retry.
type NumericError struct {
	Op     string
	Reason string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("linalg: %s: %s", e.Op, e.Reason)
}

// Matrix is a dense real matrix of at most 4 rows/columns, as used by the
// constant-velocity Kalman filter (4x4 state covariance, 2x2 measurement
// covariance, 4x2/2x4 gain and observation matrices).
type Matrix struct {
	rows, cols int
	d          *mat.Dense
}

// New creates a rows x cols matrix. data, if non-nil, must have
// rows*cols entries in row-major order; otherwise the matrix is zeroed.
func New(rows, cols int, data []float64) *Matrix {
	return &Matrix{rows: rows, cols: cols, d: mat.NewDense(rows, cols, data)}
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Matrix {
	m := New(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Diag returns a square matrix with diag on the main diagonal and zero
// elsewhere.
func Diag(diag []float64) *Matrix {
	n := len(diag)
	m := New(n, n, nil)
	for i, v := range diag {
		m.Set(i, i, v)
	}
	return m
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

func (m *Matrix) At(i, j int) float64    { return m.d.At(i, j) }
func (m *Matrix) Set(i, j int, v float64) { m.d.Set(i, j, v) }

// Clone returns an independent copy of m.
func (m *Matrix) Clone() *Matrix {
	out := New(m.rows, m.cols, nil)
	out.d.Copy(m.d)
	return out
}

// Mul returns m * other.
func (m *Matrix) Mul(other *Matrix) *Matrix {
	out := New(m.rows, other.cols, nil)
	out.d.Mul(m.d, other.d)
	return out
}

// Trans returns the transpose of m.
func (m *Matrix) Trans() *Matrix {
	out := New(m.cols, m.rows, nil)
	out.d.CloneFrom(m.d.T())
	return out
}

// Add returns m + other.
func (m *Matrix) Add(other *Matrix) *Matrix {
	out := New(m.rows, m.cols, nil)
	out.d.Add(m.d, other.d)
	return out
}

// Sub returns m - other.
func (m *Matrix) Sub(other *Matrix) *Matrix {
	out := New(m.rows, m.cols, nil)
	out.d.Sub(m.d, other.d)
	return out
}

// Scale returns m * s for a scalar s.
func (m *Matrix) Scale(s float64) *Matrix {
	out := New(m.rows, m.cols, nil)
	out.d.Scale(s, m.d)
	return out
}

// Det returns the determinant of a square 2x2 or 4x4 matrix.
func (m *Matrix) Det() (float64, error) {
	if m.rows != m.cols {
		return 0, &NumericError{Op: "det", Reason: "matrix is not square"}
	}
	switch m.rows {
	case 2:
		return m.At(0, 0)*m.At(1, 1) - m.At(0, 1)*m.At(1, 0), nil
	default:
		return mat.Det(m.d), nil
	}
}

// Inv returns the inverse of a square 2x2 or 4x4 matrix. It returns a
// NumericError if the matrix is singular (or too close to singular for a
// numerically stable inverse), per spec.md's rule that callers must treat
// that as a non-validating hypothesis rather than a fatal condition.
func (m *Matrix) Inv() (*Matrix, error) {
	if m.rows != m.cols {
		return nil, &NumericError{Op: "inv", Reason: "matrix is not square"}
	}
	det, err := m.Det()
	if err != nil {
		return nil, err
	}
	if det == 0 {
		return nil, &NumericError{Op: "inv", Reason: "matrix is singular"}
	}

	if m.rows == 2 {
		out := New(2, 2, nil)
		out.Set(0, 0, m.At(1, 1)/det)
		out.Set(0, 1, -m.At(0, 1)/det)
		out.Set(1, 0, -m.At(1, 0)/det)
		out.Set(1, 1, m.At(0, 0)/det)
		return out, nil
	}

	var lu mat.LU
	lu.Factorize(m.d)
	if lu.Cond() > 1e14 {
		return nil, &NumericError{Op: "inv", Reason: "matrix is ill-conditioned"}
	}
	out := New(m.rows, m.cols, nil)
	if err := out.d.Inverse(m.d); err != nil {
		return nil, &NumericError{Op: "inv", Reason: err.Error()}
	}
	return out, nil
}

// RawRowMajor returns the matrix's entries in row-major order, mainly for
// tests and for serializing covariance into output records.
func (m *Matrix) RawRowMajor() []float64 {
	out := make([]float64, m.rows*m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out[i*m.cols+j] = m.At(i, j)
		}
	}
	return out
}

// IsSymmetric reports whether m is numerically symmetric within tol.
func (m *Matrix) IsSymmetric(tol float64) bool {
	if m.rows != m.cols {
		return false
	}
	for i := 0; i < m.rows; i++ {
		for j := i + 1; j < m.cols; j++ {
			if diff := m.At(i, j) - m.At(j, i); diff > tol || diff < -tol {
				return false
			}
		}
	}
	return true
}

// IsPositiveDefinite reports whether the symmetric matrix m has strictly
// positive eigenvalues, checked via Cholesky factorization.
func (m *Matrix) IsPositiveDefinite() bool {
	if m.rows != m.cols {
		return false
	}
	sym := mat.NewSymDense(m.rows, nil)
	for i := 0; i < m.rows; i++ {
		for j := i; j < m.cols; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	var chol mat.Cholesky
	return chol.Factorize(sym)
}
