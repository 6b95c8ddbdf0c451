package mbr

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// synthetic builds a deterministic dataset with numSeasons seasons plus the
// annual target. The proxy period starts at startYear and runs numProxyYears;
// the last numInstYears of it are instrumental. Annual flow equals the sum of
// the seasonal flows plus imbalance and a small wobble in every year.
func synthetic(t *testing.T, numSeasons, numProxyYears, numInstYears, startYear int, imbalance float64) (*Instrumental, []*mat.Dense) {
	t.Helper()
	n := numSeasons + 1
	pcs := make([]*mat.Dense, n)
	for k := 0; k < n; k++ {
		cols := 1 + k%2
		b := mat.NewDense(numProxyYears, cols, nil)
		for i := 0; i < numProxyYears; i++ {
			ti := float64(i)
			if k < numSeasons {
				b.Set(i, 0, math.Sin(0.7*ti+float64(k)))
			} else {
				// the annual proxy tracks the combined seasonal signal
				var sig float64
				for s := 0; s < numSeasons; s++ {
					sig += math.Sin(0.7*ti + float64(s))
				}
				b.Set(i, 0, sig/float64(numSeasons))
			}
			if cols > 1 {
				b.Set(i, 1, math.Cos(1.3*ti+0.5*float64(k)))
			}
		}
		pcs[k] = b
	}

	targets := make([]string, n)
	for s := 0; s < numSeasons; s++ {
		targets[s] = "S" + strconv.Itoa(s+1)
	}
	targets[n-1] = "Ann"

	first := numProxyYears - numInstYears
	var records []Observation
	for i := first; i < numProxyYears; i++ {
		ti := float64(i)
		var sum float64
		for s := 0; s < numSeasons; s++ {
			q := 10 + 3*float64(s) + 2*pcs[s].At(i, 0) + 0.4*math.Sin(2.1*ti+1.7*float64(s))
			if c := pcs[s].RawRowView(i); len(c) > 1 {
				q += 0.5 * c[1]
			}
			sum += q
			records = append(records, Observation{Target: targets[s], Year: startYear + i, Flow: q})
		}
		records = append(records, Observation{Target: "Ann", Year: startYear + i, Flow: sum + imbalance + 0.3*math.Cos(1.1*ti)})
	}
	inst, err := NewInstrumental(targets, records)
	require.NoError(t, err)
	return inst, pcs
}

func flowsByTarget(records []FlowRecord, targets []string) map[string][]float64 {
	out := make(map[string][]float64, len(targets))
	for _, r := range records {
		out[r.Season] = append(out[r.Season], r.Flow)
	}
	return out
}

// olsPerTarget fits every target on its own instrumental rows with gonum's
// least squares solver and predicts the full period.
func olsPerTarget(t *testing.T, inst *Instrumental, pcs []*mat.Dense, startYear int) [][]float64 {
	t.Helper()
	out := make([][]float64, len(pcs))
	for k, b := range pcs {
		full := withIntercept(b)
		rows := make([]int, len(inst.Years))
		for i, y := range inst.Years {
			rows[i] = y - startYear
		}
		xk := subsetRows(full, rows)
		yk := mat.NewDense(len(rows), 1, mat.Col(nil, k, inst.Flow))
		var coef mat.Dense
		require.NoError(t, coef.Solve(xk, yk))
		var pred mat.Dense
		pred.Mul(full, &coef)
		out[k] = mat.Col(nil, 0, &pred)
	}
	return out
}

func withIntercept(b *mat.Dense) *mat.Dense {
	r, c := b.Dims()
	out := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			out.Set(i, j+1, b.At(i, j))
		}
	}
	return out
}
