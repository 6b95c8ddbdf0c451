// Package scale standardizes matrices by column or by row and reverses the
// operation.
//
// Standardizing a matrix and unscaling the result with the same Params gives
// back the original values up to floating point rounding.
package scale

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrDimensionMismatch signals that Params do not fit the matrix they are applied to.
var ErrDimensionMismatch = errors.New("scale: parameters do not match matrix dimensions")

// Params holds the centering and scaling statistics of every column (or row).
type Params struct {
	Mean []float64 // 平均
	SD   []float64 // 標本標準偏差 (n-1)
}

// Len returns the number of columns (or rows) described by p.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Mean)
}

// Cols standardizes each column of m with its own mean and sample standard deviation.
func Cols(m mat.Matrix) (*mat.Dense, *Params) {
	r, c := m.Dims()
	p := &Params{Mean: make([]float64, c), SD: make([]float64, c)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		p.Mean[j], p.SD[j] = stat.MeanStdDev(col, nil)
	}
	out, _ := ColsWith(m, p)
	return out, p
}

// ColsWith standardizes the columns of m with statistics computed elsewhere.
func ColsWith(m mat.Matrix, p *Params) (*mat.Dense, error) {
	_, c := m.Dims()
	if p.Len() != c {
		return nil, fmt.Errorf("%w: %d columns, %d parameters", ErrDimensionMismatch, c, p.Len())
	}
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - p.Mean[j]) / p.SD[j]
	}, out)
	return out, nil
}

// UnscaleCols reverses Cols.
func UnscaleCols(m mat.Matrix, p *Params) (*mat.Dense, error) {
	_, c := m.Dims()
	if p.Len() != c {
		return nil, fmt.Errorf("%w: %d columns, %d parameters", ErrDimensionMismatch, c, p.Len())
	}
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, j int, v float64) float64 {
		return v*p.SD[j] + p.Mean[j]
	}, out)
	return out, nil
}

// Rows standardizes each row of m with its own mean and sample standard deviation.
func Rows(m mat.Matrix) (*mat.Dense, *Params) {
	r, c := m.Dims()
	p := &Params{Mean: make([]float64, r), SD: make([]float64, r)}
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		p.Mean[i], p.SD[i] = stat.MeanStdDev(row, nil)
	}
	out := mat.DenseCopyOf(m)
	out.Apply(func(i, _ int, v float64) float64 {
		return (v - p.Mean[i]) / p.SD[i]
	}, out)
	return out, p
}

// UnscaleRows reverses Rows.
func UnscaleRows(m mat.Matrix, p *Params) (*mat.Dense, error) {
	r, _ := m.Dims()
	if p.Len() != r {
		return nil, fmt.Errorf("%w: %d rows, %d parameters", ErrDimensionMismatch, r, p.Len())
	}
	out := mat.DenseCopyOf(m)
	out.Apply(func(i, _ int, v float64) float64 {
		return v*p.SD[i] + p.Mean[i]
	}, out)
	return out, nil
}
