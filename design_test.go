package mbr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBlockDiagonal_SingleBlock(t *testing.T) {
	b := mat.NewDense(4, 1, []float64{0.1, 0.2, 0.3, 0.4})
	d := BlockDiagonal([]mat.Matrix{b})
	r, c := d.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		require.Equal(t, 1.0, d.At(i, 0))
		require.Equal(t, b.At(i, 0), d.At(i, 1))
	}
}

func TestBlockDiagonal_Empty(t *testing.T) {
	require.True(t, BlockDiagonal(nil).IsEmpty())
	require.True(t, BlockDiagonal([]mat.Matrix{}).IsEmpty())
}

func TestBlockDiagonal_Layout(t *testing.T) {
	b0 := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	b1 := mat.NewDense(3, 1, []float64{7, 8, 9})
	b2 := mat.NewDense(3, 3, []float64{1, 1, 1, 2, 2, 2, 3, 3, 3})
	d := BlockDiagonal([]mat.Matrix{b0, b1, b2})

	r, c := d.Dims()
	require.Equal(t, 9, r)
	require.Equal(t, 2+1+3+3, c)

	want := mat.NewDense(9, 9, []float64{
		1, 1, 2, 0, 0, 0, 0, 0, 0,
		1, 3, 4, 0, 0, 0, 0, 0, 0,
		1, 5, 6, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 1, 7, 0, 0, 0, 0,
		0, 0, 0, 1, 8, 0, 0, 0, 0,
		0, 0, 0, 1, 9, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 1, 1, 1, 1,
		0, 0, 0, 0, 0, 1, 2, 2, 2,
		0, 0, 0, 0, 0, 1, 3, 3, 3,
	})
	require.True(t, mat.Equal(want, d))
}

func TestDesignMatrix_RowMismatch(t *testing.T) {
	_, err := designMatrix([]*mat.Dense{mat.NewDense(3, 1, nil), mat.NewDense(4, 1, nil)}, 3)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPredict_MatchesBlockDiagonalProduct(t *testing.T) {
	blocks := []*mat.Dense{
		mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
		mat.NewDense(3, 1, []float64{-1, 0, 1}),
	}
	beta := []float64{0.5, 1, -1, 2, 3}
	got := predict(blocks, beta)

	var want mat.VecDense
	want.MulVec(BlockDiagonal([]mat.Matrix{blocks[0], blocks[1]}), mat.NewVecDense(len(beta), beta))
	require.Equal(t, 2, got.NumTargets)
	require.InDeltaSlice(t, want.RawVector().Data, got.Data, 1e-12)
}

func TestStacked_Layout(t *testing.T) {
	wide := mat.NewDense(3, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
	})
	s := stackWide(wide)
	require.Equal(t, []float64{1, 2, 3, 10, 20, 30}, s.Data)
	require.Equal(t, 3, s.NumYears())
	require.Equal(t, []float64{10, 20, 30}, s.Target(1))
	require.True(t, mat.Equal(wide, s.Wide()))
	require.Equal(t, []float64{1, 3, 10, 30}, s.Rows([]int{0, 2}).Data)
}

func TestComplementOf(t *testing.T) {
	require.Equal(t, []int{0, 2, 4}, complementOf([]int{3, 1}, 5))
	require.Equal(t, []int{}, complementOf([]int{0, 1}, 2))
}
