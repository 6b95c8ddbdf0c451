// Package metrics scores reconstructed flow against observations for
// cross-validation.
//
// Every score compares a simulated series with an observed series of equal
// length, split into calibration positions and the held-out (validation)
// positions of one fold.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidArgument signals that the series or the held-out positions are unusable.
var ErrInvalidArgument = errors.New("metrics: invalid argument")

// DefaultBiweightC is the tuning constant used when averaging scores across folds.
const DefaultBiweightC = 9

// Scores : 1 フォールド・1 対象の検証スコア
type Scores struct {
	R2    float64 // 校正期間の決定係数
	RE    float64 // reduction of error
	CE    float64 // coefficient of efficiency
	NRMSE float64 // 検証期間の平均で正規化した RMSE
	KGE   float64 // Kling-Gupta efficiency
}

// Names returns the score names in the order used by Values.
func Names() []string {
	return []string{"R2", "RE", "CE", "nRMSE", "KGE"}
}

// Values returns the scores in the order given by Names.
func (s Scores) Values() []float64 {
	return []float64{s.R2, s.RE, s.CE, s.NRMSE, s.KGE}
}

// ScoresFromValues is the inverse of Values.
func ScoresFromValues(v []float64) Scores {
	return Scores{R2: v[0], RE: v[1], CE: v[2], NRMSE: v[3], KGE: v[4]}
}

// Compute scores sim against obs. heldOut lists the validation positions;
// every other position belongs to the calibration period.
func Compute(sim, obs []float64, heldOut []int) (Scores, error) {
	n := len(obs)
	if len(sim) != n {
		return Scores{}, fmt.Errorf("%w: %d simulated vs %d observed values", ErrInvalidArgument, len(sim), n)
	}
	isHeldOut := make([]bool, n)
	for _, idx := range heldOut {
		if idx < 0 || idx >= n {
			return Scores{}, fmt.Errorf("%w: held-out index %d out of range [0:%d]", ErrInvalidArgument, idx, n)
		}
		isHeldOut[idx] = true
	}

	var simC, obsC, simV, obsV []float64
	for i := range obs {
		if isHeldOut[i] {
			simV = append(simV, sim[i])
			obsV = append(obsV, obs[i])
		} else {
			simC = append(simC, sim[i])
			obsC = append(obsC, obs[i])
		}
	}
	if len(obsV) == 0 || len(obsC) == 0 {
		return Scores{}, fmt.Errorf("%w: need both calibration and validation values", ErrInvalidArgument)
	}

	resid := make([]float64, len(obsV))
	floats.SubTo(resid, obsV, simV)
	sse := floats.Dot(resid, resid)

	calibMean := stat.Mean(obsC, nil)
	validMean := stat.Mean(obsV, nil)

	r := stat.Correlation(simC, obsC, nil)

	return Scores{
		R2:    r * r,
		RE:    1 - sse/sumSquaredDeviation(obsV, calibMean),
		CE:    1 - sse/sumSquaredDeviation(obsV, validMean),
		NRMSE: math.Sqrt(sse/float64(len(obsV))) / validMean,
		KGE:   KGE(simV, obsV),
	}, nil
}

// KGE returns the Kling-Gupta efficiency of sim against obs.
func KGE(sim, obs []float64) float64 {
	r := stat.Correlation(sim, obs, nil)
	simMean, simSD := stat.MeanStdDev(sim, nil)
	obsMean, obsSD := stat.MeanStdDev(obs, nil)
	alpha := simSD / obsSD
	beta := simMean / obsMean
	return 1 - math.Sqrt((r-1)*(r-1)+(alpha-1)*(alpha-1)+(beta-1)*(beta-1))
}

func sumSquaredDeviation(xs []float64, ref float64) float64 {
	var s float64
	for _, x := range xs {
		s += (x - ref) * (x - ref)
	}
	return s
}

// BiweightMean returns Tukey's biweight robust mean of xs. Values further than
// c median absolute deviations from the median get zero weight. NaNs are ignored;
// an input without finite values yields NaN.
func BiweightMean(xs []float64, c float64) float64 {
	vals := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}

	med := median(vals)
	dev := make([]float64, len(vals))
	for i, x := range vals {
		dev[i] = math.Abs(x - med)
	}
	mad := median(dev)

	var num, den float64
	for _, x := range vals {
		u := (x - med) / (c*mad + 1e-6)
		if math.Abs(u) > 1 {
			continue
		}
		w := (1 - u*u) * (1 - u*u)
		num += w * x
		den += w
	}
	return num / den
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
