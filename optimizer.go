package mbr

import (
	"errors"

	"github.com/ntthung/mbr/logger"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Minimizer finds a local minimum of f starting from x0.
//
// Implementations must be deterministic: the same f and x0 give the same result.
type Minimizer interface {
	Minimize(f func(x []float64) float64, x0 []float64) ([]float64, error)
}

// LBFGS is a limited-memory quasi-Newton minimizer with central finite
// difference gradients. Zero fields fall back to the defaults below.
type LBFGS struct {
	Store             int     // 記憶する勾配の数
	GradientThreshold float64 // 勾配ノルムの収束判定値
	MajorIterations   int     // 最大反復回数
}

const (
	defaultLBFGSStore         = 15
	defaultGradientThreshold  = 1e-8
	defaultMajorIterations    = 1000
	defaultFunctionTolerance  = 1e-10
	defaultConvergenceWindow  = 50
	defaultNelderMeadEvalsPer = 2000
)

// Minimize implements Minimizer.
func (m LBFGS) Minimize(f func(x []float64) float64, x0 []float64) ([]float64, error) {
	store, threshold, iters := m.Store, m.GradientThreshold, m.MajorIterations
	if store <= 0 {
		store = defaultLBFGSStore
	}
	if threshold <= 0 {
		threshold = defaultGradientThreshold
	}
	if iters <= 0 {
		iters = defaultMajorIterations
	}

	gradSettings := &fd.Settings{Formula: fd.Central}
	problem := optimize.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, gradSettings)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: threshold,
		MajorIterations:   iters,
		Converger: &optimize.FunctionConverge{
			Absolute:   defaultFunctionTolerance,
			Iterations: defaultConvergenceWindow,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{Store: store})
	return bestLocation(result, err, x0)
}

// NelderMead is the gradient-free simplex minimizer.
type NelderMead struct {
	FuncEvaluations int // 目的関数の最大評価回数（0 なら係数の数 × 2000）
}

// Minimize implements Minimizer.
func (m NelderMead) Minimize(f func(x []float64) float64, x0 []float64) ([]float64, error) {
	evals := m.FuncEvaluations
	if evals <= 0 {
		evals = defaultNelderMeadEvalsPer * len(x0)
	}
	settings := &optimize.Settings{
		FuncEvaluations: evals,
		Converger: &optimize.FunctionConverge{
			Absolute:   defaultFunctionTolerance,
			Iterations: defaultConvergenceWindow,
		},
	}
	result, err := optimize.Minimize(optimize.Problem{Func: f}, x0, settings, &optimize.NelderMead{})
	return bestLocation(result, err, x0)
}

// bestLocation returns the optimizer's final location. A run that ends with an
// error but still produced a location is not treated as a failure.
func bestLocation(result *optimize.Result, err error, x0 []float64) ([]float64, error) {
	if result == nil || len(result.X) != len(x0) {
		if err == nil {
			err = errors.New("optimizer returned no location")
		}
		logger.Err.Println(err)
		return nil, err
	}
	if err != nil {
		logger.Warn.Printf("Optimizer stopped with status %v: %v", result.Status, err)
	} else {
		logger.Debug.Printf("Optimizer finished with status %v after %d iterations, f = %g", result.Status, result.MajorIterations, result.F)
	}
	return result.X, nil
}
