package mbr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestReconstruct_LambdaZeroIsPerTargetOLS(t *testing.T) {
	inst, pcs := synthetic(t, 3, 80, 45, 1700, 1.5)
	records, err := Reconstruct(inst, pcs, 1700, Config{Lambda: 0})
	require.NoError(t, err)

	want := olsPerTarget(t, inst, pcs, 1700)
	got := flowsByTarget(records, inst.Targets)
	for k, target := range inst.Targets {
		require.InDeltaSlice(t, want[k], got[target], 1e-9, target)
	}
}

func TestReconstruct_MassBalanceGapShrinksWithLambda(t *testing.T) {
	inst, pcs := synthetic(t, 2, 60, 40, 1900, 2)
	lambdas := []float64{0, 0.1, 1, 10, 100, 1000, 1e4}

	gaps := make([]float64, len(lambdas))
	for i, lambda := range lambdas {
		records, err := Reconstruct(inst, pcs, 1900, Config{Lambda: lambda})
		require.NoError(t, err)
		q := flowsByTarget(records, inst.Targets)

		// compare over the calibration years, the last 40 of 60
		for y := 20; y < 60; y++ {
			d := q["Ann"][y] - q["S1"][y] - q["S2"][y]
			gaps[i] += d * d
		}
	}
	for i := 1; i < len(gaps); i++ {
		require.LessOrEqual(t, gaps[i], gaps[i-1]+1e-9, "lambda %g", lambdas[i])
	}
	require.Less(t, gaps[len(gaps)-1], 1e-3*gaps[0])
}

// TestReconstruct_HandComputed checks a two-target, one-predictor problem
// against the penalized normal equations written out by hand.
func TestReconstruct_HandComputed(t *testing.T) {
	x0 := []float64{0.5, -1.2, 0.3, 1.8, -0.7, 0.9, -1.5, 0.2, 1.1, -0.4}
	x1 := []float64{1.0, -0.8, 0.6, 1.5, -1.1, 0.4, -1.9, 0.7, 0.8, -0.2}
	y0 := []float64{12, 9, 11, 15, 8.5, 12.5, 7, 11.5, 13, 10}
	y1 := []float64{25, 18, 23, 31, 17, 24, 14, 24, 26, 19}
	const lambda = 1.0

	var records []Observation
	for i := range y0 {
		records = append(records,
			Observation{Target: "summer", Year: 1990 + i, Flow: y0[i]},
			Observation{Target: "annual", Year: 1990 + i, Flow: y1[i]})
	}
	inst, err := NewInstrumental([]string{"summer", "annual"}, records)
	require.NoError(t, err)
	pcs := []*mat.Dense{mat.NewDense(10, 1, x0), mat.NewDense(10, 1, x1)}

	got, err := Reconstruct(inst, pcs, 1990, Config{Lambda: lambda})
	require.NoError(t, err)
	require.Len(t, got, 20)

	// β = (a0, b0, a1, b1); penalty row a_t = (1, x0_t, -1, -x1_t)
	var lhs [4][5]float64
	for i := range x0 {
		xr0 := [4]float64{1, x0[i], 0, 0}
		xr1 := [4]float64{0, 0, 1, x1[i]}
		ar := [4]float64{1, x0[i], -1, -x1[i]}
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				lhs[r][c] += xr0[r]*xr0[c] + xr1[r]*xr1[c] + lambda*ar[r]*ar[c]
			}
			lhs[r][4] += xr0[r]*y0[i] + xr1[r]*y1[i]
		}
	}
	beta := gaussJordan(lhs)

	for i := range x0 {
		require.Equal(t, "summer", got[i].Season)
		require.Equal(t, 1990+i, got[i].Year)
		require.Equal(t, lambda, got[i].Lambda)
		require.InDelta(t, beta[0]+beta[1]*x0[i], got[i].Flow, 1e-6)

		require.Equal(t, "annual", got[10+i].Season)
		require.Equal(t, 1990+i, got[10+i].Year)
		require.InDelta(t, beta[2]+beta[3]*x1[i], got[10+i].Flow, 1e-6)
	}
}

func gaussJordan(m [4][5]float64) [4]float64 {
	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			f := m[r][col] / m[col][col]
			for c := col; c < 5; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}
	var out [4]float64
	for i := range out {
		out[i] = m[i][4] / m[i][i]
	}
	return out
}

func TestReconstruct_FullPeriodLayout(t *testing.T) {
	inst, pcs := synthetic(t, 2, 50, 20, 1600, 0)
	records, err := Reconstruct(inst, pcs, 1600, Config{Lambda: 3, LogTransform: []int{0, 1, 2}})
	require.NoError(t, err)
	require.Len(t, records, 150)
	for k, target := range inst.Targets {
		for i := 0; i < 50; i++ {
			r := records[k*50+i]
			require.Equal(t, target, r.Season)
			require.Equal(t, 1600+i, r.Year)
			require.Equal(t, 3.0, r.Lambda)
			require.Greater(t, r.Flow, 0.0)
		}
	}
}

func TestReconstruct_StartYearAfterProxyStart(t *testing.T) {
	inst, pcs := synthetic(t, 1, 40, 25, 1900, 0)
	// drop the first five proxy years and start later
	trimmed := make([]*mat.Dense, len(pcs))
	for k, b := range pcs {
		trimmed[k] = mat.DenseCopyOf(b.Slice(5, 40, 0, b.RawMatrix().Cols))
	}
	records, err := Reconstruct(inst, trimmed, 1905, Config{Lambda: 1})
	require.NoError(t, err)
	require.Len(t, records, 2*35)
	require.Equal(t, 1905, records[0].Year)
}

func TestReconstruct_ShapeErrors(t *testing.T) {
	inst, pcs := synthetic(t, 1, 30, 20, 1900, 0)

	_, err := Reconstruct(inst, pcs[:1], 1900, Config{})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Reconstruct(inst, pcs, 1901, Config{})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Reconstruct(inst, pcs, 1915, Config{})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Reconstruct(inst, []*mat.Dense{pcs[0], nil}, 1900, Config{})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Reconstruct(inst, pcs, 1900, Config{Lambda: -1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Reconstruct(inst, pcs, 1900, Config{Lambda: math.NaN()})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewInstrumental(t *testing.T) {
	targets := []string{"DJF", "MAM", "Ann"}
	var records []Observation
	for y := 2001; y <= 2003; y++ {
		for k, tg := range targets {
			records = append(records, Observation{Target: tg, Year: y, Flow: float64(y*10 + k)})
		}
	}
	inst, err := NewInstrumental(targets, records)
	require.NoError(t, err)
	require.Equal(t, []int{2001, 2002, 2003}, inst.Years)
	require.Equal(t, 20021.0, inst.Flow.At(1, 1))
	require.Equal(t, 3, inst.NumTargets())
	require.Len(t, inst.Observations(), 9)
	require.Equal(t, Observation{Target: "MAM", Year: 2001, Flow: 20011}, inst.Observations()[3])

	_, err = NewInstrumental(targets, records[:8])
	require.ErrorIs(t, err, ErrInvalidInstrumental)

	dup := append([]Observation(nil), records...)
	dup[0] = dup[1]
	_, err = NewInstrumental(targets, dup)
	require.ErrorIs(t, err, ErrInvalidInstrumental)

	bad := append([]Observation(nil), records...)
	bad[0].Target = "JJA"
	_, err = NewInstrumental(targets, bad)
	require.ErrorIs(t, err, ErrInvalidInstrumental)

	_, err = NewInstrumental([]string{"Ann"}, records)
	require.ErrorIs(t, err, ErrInvalidInstrumental)
}
