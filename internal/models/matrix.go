package models

import "math"

// pivotEpsilon is the smallest pivot magnitude accepted during elimination;
// anything below it means the matrix is singular for our purposes.
const pivotEpsilon = 1e-10

// Invert returns the inverse of a square matrix using Gauss-Jordan
// elimination with partial pivoting (largest-magnitude pivot per column).
// Returns ErrSingularMatrix when no usable pivot exists.
func Invert(m [][]float64) ([][]float64, error) {
	n := len(m)
	if n == 0 {
		return nil, ErrSingularMatrix
	}

	// Augment [m | I].
	aug := make([][]float64, n)
	for i := 0; i < n; i++ {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		// Partial pivoting: pick the row with the largest magnitude in
		// this column.
		pivotRow := col
		pivotVal := math.Abs(aug[col][col])
		for row := col + 1; row < n; row++ {
			if v := math.Abs(aug[row][col]); v > pivotVal {
				pivotVal = v
				pivotRow = row
			}
		}
		if pivotVal < pivotEpsilon {
			return nil, ErrSingularMatrix
		}
		aug[col], aug[pivotRow] = aug[pivotRow], aug[col]

		// Normalize the pivot row.
		pivot := aug[col][col]
		for j := 0; j < 2*n; j++ {
			aug[col][j] /= pivot
		}

		// Eliminate the column from every other row.
		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*n; j++ {
				aug[row][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, n)
	for i := 0; i < n; i++ {
		inv[i] = make([]float64, n)
		copy(inv[i], aug[i][n:])
	}
	return inv, nil
}

// matMul multiplies a (r×k) by b (k×c).
func matMul(a, b [][]float64) [][]float64 {
	rows, inner, cols := len(a), len(b), len(b[0])
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			var sum float64
			for k := 0; k < inner; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// transpose returns the transpose of m.
func transpose(m [][]float64) [][]float64 {
	rows, cols := len(m), len(m[0])
	out := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = make([]float64, rows)
		for i := 0; i < rows; i++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// matVec multiplies m (r×c) by v (c).
func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i := range m {
		var sum float64
		for j := range v {
			sum += m[i][j] * v[j]
		}
		out[i] = sum
	}
	return out
}
