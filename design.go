package mbr

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BlockDiagonal prepends an intercept column of ones to every block and places
// the blocks on the diagonal of one matrix. All blocks must have the same
// number of rows r; the result has len(blocks)*r rows, ordered block by block
// with each block's row order preserved, and sum(cols)+len(blocks) columns.
// Without blocks, or with blocks of no rows, the result is an empty matrix.
func BlockDiagonal(blocks []mat.Matrix) *mat.Dense {
	rows, cols := 0, 0
	for _, b := range blocks {
		r, c := b.Dims()
		rows += r
		cols += c + 1
	}
	if rows == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(rows, cols, nil)

	rowOff, colOff := 0, 0
	for _, b := range blocks {
		r, c := b.Dims()
		for i := 0; i < r; i++ {
			d.Set(rowOff+i, colOff, 1) // 定数項
			for j := 0; j < c; j++ {
				d.Set(rowOff+i, colOff+1+j, b.At(i, j))
			}
		}
		rowOff += r
		colOff += c + 1
	}
	return d
}

// designMatrix checks that every block has numRows rows and builds the block
// diagonal design matrix.
func designMatrix(blocks []*mat.Dense, numRows int) (*mat.Dense, error) {
	ms := make([]mat.Matrix, len(blocks))
	for k, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("%w: predictor block %d is nil", ErrShapeMismatch, k)
		}
		r, c := b.Dims()
		if r != numRows {
			return nil, fmt.Errorf("%w: predictor block %d has %d rows, want %d", ErrShapeMismatch, k, r, numRows)
		}
		if c == 0 {
			return nil, fmt.Errorf("%w: predictor block %d has no columns", ErrShapeMismatch, k)
		}
		ms[k] = b
	}
	return BlockDiagonal(ms), nil
}

// subsetRows returns the rows idx of m, in the given order.
func subsetRows(m mat.Matrix, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, src := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(src, j))
		}
	}
	return out
}

func subsetBlocks(blocks []*mat.Dense, idx []int) []*mat.Dense {
	out := make([]*mat.Dense, len(blocks))
	for k, b := range blocks {
		out[k] = subsetRows(b, idx)
	}
	return out
}

func numCoeffs(blocks []*mat.Dense) int {
	p := 0
	for _, b := range blocks {
		_, c := b.Dims()
		p += c + 1
	}
	return p
}

// predict returns X·beta for the block diagonal design of blocks, target-major.
func predict(blocks []*mat.Dense, beta []float64) Stacked {
	numRows, _ := blocks[0].Dims()
	out := Stacked{Data: make([]float64, 0, numRows*len(blocks)), NumTargets: len(blocks)}
	off := 0
	for _, b := range blocks {
		_, c := b.Dims()
		var v mat.VecDense
		v.MulVec(b, mat.NewVecDense(c, beta[off+1:off+1+c]))
		for i := 0; i < numRows; i++ {
			out.Data = append(out.Data, beta[off]+v.AtVec(i))
		}
		off += c + 1
	}
	return out
}
