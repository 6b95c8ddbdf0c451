package mbr

import (
	"fmt"
	"math"
	"strings"

	"github.com/ntthung/mbr/logger"
	"gonum.org/v1/gonum/mat"
)

// Config holds the settings of one mass-balance-adjusted fit.
type Config struct {
	Lambda           float64   // 質量収支ペナルティの重み (>= 0)
	LogTransform     []int     // 対数変換する対象のインデックス (0 始まり)
	ForceStandardize bool      // 対数変換がなくても標準化する
	Minimizer        Minimizer // 数値最適化の手法 (nil なら LBFGS)
	Concurrency      int       // 交差検証で同時に計算するフォールド数 (<= 1 なら逐次)
	PenaltyOffset    bool      // 標準化時の質量収支の定数項を正規方程式に含める
}

func (c Config) validate() error {
	if math.IsNaN(c.Lambda) || math.IsInf(c.Lambda, 0) || c.Lambda < 0 {
		return fmt.Errorf("%w: lambda must be finite and non-negative, got %v", ErrInvalidArgument, c.Lambda)
	}
	return nil
}

func (c Config) minimizer() Minimizer {
	if c.Minimizer == nil {
		return LBFGS{}
	}
	return c.Minimizer
}

// Fit is a calibrated mass-balance regression.
type Fit struct {
	Targets []string      // 対象の名称
	Beta    []float64     // 対象ごとの [切片, 係数...] を連結した係数ベクトル
	Scale   *ScaleParams  // 校正データから求めた標準化パラメータ (標準化しない場合 nil)
	Spec    TransformSpec // 変換の設定
	Lambda  float64       // ペナルティの重み

	numPredictors []int // 対象ごとの説明変数の数
}

// Coefficients returns the intercept and slopes of target k in modeling space.
func (f *Fit) Coefficients(k int) (float64, []float64) {
	off := 0
	for j := 0; j < k; j++ {
		off += f.numPredictors[j] + 1
	}
	return f.Beta[off], append([]float64(nil), f.Beta[off+1:off+1+f.numPredictors[k]]...)
}

func formatFloatForFormula(v float64) string {
	if v < 0 {
		return fmt.Sprintf(" - %.4f", -v)
	}
	return fmt.Sprintf(" + %.4f", v)
}

// Formula returns the regression equation of target k in modeling space.
func (f *Fit) Formula(k int) string {
	intercept, slopes := f.Coefficients(k)
	label := f.Targets[k]
	switch {
	case f.Spec.Kind.Scales() && f.Spec.Log[k]:
		label = "z(log " + label + ")"
	case f.Spec.Kind.Scales():
		label = "z(" + label + ")"
	case f.Spec.Log[k]:
		label = "log " + label
	}
	strs := make([]string, len(slopes)*2)
	for i, c := range slopes {
		strs[i*2] = formatFloatForFormula(c)
		strs[i*2+1] = fmt.Sprintf("*PC%d", i+1)
	}
	return label + " =" + strings.Join(strs, "") + formatFloatForFormula(intercept)
}

// Predict evaluates the fit on predictor blocks and returns modeling-space values.
func (f *Fit) Predict(blocks []*mat.Dense) (Stacked, error) {
	if len(blocks) != len(f.numPredictors) {
		return Stacked{}, fmt.Errorf("%w: %d predictor blocks for %d targets", ErrShapeMismatch, len(blocks), len(f.numPredictors))
	}
	numRows, _ := blocks[0].Dims()
	for k, b := range blocks {
		r, c := b.Dims()
		if r != numRows || c != f.numPredictors[k] {
			return Stacked{}, fmt.Errorf("%w: predictor block %d is %d×%d", ErrShapeMismatch, k, r, c)
		}
	}
	return predict(blocks, f.Beta), nil
}

// fit calibrates the regression on the given predictor rows and year-major
// targets. It is the one calibration routine shared by reconstruction and by
// every cross-validation fold; standardization statistics come from wide only.
func fit(blocks []*mat.Dense, wide *mat.Dense, spec TransformSpec, cfg Config, targets []string) (*Fit, error) {
	y, sp, err := spec.Apply(wide)
	if err != nil {
		return nil, err
	}
	numRows, _ := wide.Dims()
	x, err := designMatrix(blocks, numRows)
	if err != nil {
		return nil, err
	}
	hint := func() *ConditionErrorHint { return newConditionErrorHint(targets, blocks, cfg.Lambda) }

	var beta []float64
	if spec.Kind.Logs() {
		logger.Debug.Printf("Numerical fit: %d coefficients, %d years, transform %v, lambda %g", numCoeffs(blocks), numRows, spec.Kind, cfg.Lambda)
		beta, err = fitNumerical(x, blocks, y, objective{lambda: cfg.Lambda, spec: spec, scale: sp}, cfg.minimizer(), hint)
	} else {
		logger.Debug.Printf("Analytical fit: %d coefficients, %d years, transform %v, lambda %g", numCoeffs(blocks), numRows, spec.Kind, cfg.Lambda)
		beta, err = fitAnalytical(x, blocks, y, spec, sp, cfg.Lambda, cfg.PenaltyOffset, hint)
	}
	if err != nil {
		return nil, err
	}

	numPredictors := make([]int, len(blocks))
	for k, b := range blocks {
		_, numPredictors[k] = b.Dims()
	}
	return &Fit{
		Targets:       targets,
		Beta:          beta,
		Scale:         sp,
		Spec:          spec,
		Lambda:        cfg.Lambda,
		numPredictors: numPredictors,
	}, nil
}

// fitAnalytical solves (XᵀX + λAᵀA)β = XᵀY, where Aβ is the mass-balance
// residual in the annual target's modeling scale up to a constant c. c is
// nonzero only when standardized calibration means are not mass-balanced;
// withOffset solves (XᵀX + λAᵀA)β = XᵀY − λcAᵀ1 instead, the exact minimizer
// of the objective in that case.
func fitAnalytical(x *mat.Dense, blocks []*mat.Dense, y Stacked, spec TransformSpec, sp *ScaleParams, lambda float64, withOffset bool, hint func() *ConditionErrorHint) ([]float64, error) {
	_, p := x.Dims()
	lhs := mat.NewDense(p, p, nil)
	lhs.Mul(x.T(), x)
	rhs := mat.NewVecDense(p, nil)
	rhs.MulVec(x.T(), mat.NewVecDense(len(y.Data), y.Data))

	if lambda > 0 {
		a, offset := penaltyMatrix(blocks, spec, sp)
		ata := mat.NewDense(p, p, nil)
		ata.Mul(a.T(), a)
		lhs.Add(lhs, scaled(lambda, ata))
		if withOffset && offset != 0 {
			numYears, _ := a.Dims()
			ones := make([]float64, numYears)
			for i := range ones {
				ones[i] = 1
			}
			at1 := mat.NewVecDense(p, nil)
			at1.MulVec(a.T(), mat.NewVecDense(numYears, ones))
			rhs.AddScaledVec(rhs, -lambda*offset, at1)
		}
	}

	beta := mat.NewVecDense(p, nil)
	if err := beta.SolveVec(lhs, rhs); err != nil {
		e := fmt.Errorf("cannot solve the penalized normal equations: %w", err)
		logger.Err.Println(e)
		return nil, asConditionError(e, hint())
	}
	return beta.RawVector().Data, nil
}

func scaled(f float64, m *mat.Dense) *mat.Dense {
	m.Scale(f, m)
	return m
}

// penaltyMatrix returns A (years × coefficients) and the constant c such that
// Aβ + c is the implied-annual minus annual residual of a linear fit. Seasonal
// blocks are weighted by sd_s/sd_annual when targets are standardized.
func penaltyMatrix(blocks []*mat.Dense, spec TransformSpec, sp *ScaleParams) (*mat.Dense, float64) {
	annual := len(blocks) - 1
	numYears, _ := blocks[0].Dims()
	a := mat.NewDense(numYears, numCoeffs(blocks), nil)

	var offset float64
	if spec.Kind.Scales() {
		for s := 0; s < annual; s++ {
			offset += sp.Mean[s]
		}
		offset = (offset - sp.Mean[annual]) / sp.SD[annual]
	}

	off := 0
	for k, b := range blocks {
		w := -1.0
		if k < annual {
			w = 1
			if spec.Kind.Scales() {
				w = sp.SD[k] / sp.SD[annual]
			}
		}
		_, c := b.Dims()
		for i := 0; i < numYears; i++ {
			a.Set(i, off, w)
			for j := 0; j < c; j++ {
				a.Set(i, off+1+j, w*b.At(i, j))
			}
		}
		off += c + 1
	}
	return a, offset
}

// fitNumerical minimizes the objective starting from the unpenalized least
// squares solution. With lambda = 0 that start is already the minimum.
func fitNumerical(x *mat.Dense, blocks []*mat.Dense, y Stacked, obj objective, m Minimizer, hint func() *ConditionErrorHint) ([]float64, error) {
	beta0, err := leastSquares(x, y.Data)
	if err != nil {
		return nil, asConditionError(err, hint())
	}
	if obj.lambda == 0 {
		return beta0, nil
	}
	f := func(beta []float64) float64 {
		return obj.value(predict(blocks, beta), y)
	}
	return m.Minimize(f, beta0)
}

// leastSquares solves min ||Xβ − y|| with a QR decomposition and back
// substitution on R, so XᵀX is never formed or inverted.
func leastSquares(x *mat.Dense, y []float64) ([]float64, error) {
	numRows, numCols := x.Dims()
	if numRows < numCols {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", ErrShapeMismatch, numRows, numCols)
	}
	qr, qrQ, qrR, qTY := new(mat.QR), new(mat.Dense), new(mat.Dense), new(mat.Dense)
	qr.Factorize(x)
	qr.QTo(qrQ) // 直交行列 Q
	qr.RTo(qrR) // 上三角行列 R
	qTY.Mul(qrQ.T(), mat.NewDense(numRows, 1, y))

	// R is upper triangular, so the coefficients follow by back substitution
	coeffs := make([]float64, numCols)
	for i := numCols - 1; i >= 0; i-- {
		d := qrR.At(i, i)
		if d == 0 {
			e := fmt.Errorf("cannot back-substitute: %w", mat.Condition(math.Inf(1)))
			logger.Err.Println(e)
			return nil, e
		}
		coeffs[i] = qTY.At(i, 0)
		for j := i + 1; j < numCols; j++ {
			coeffs[i] -= coeffs[j] * qrR.At(i, j)
		}
		coeffs[i] /= d
	}
	return coeffs, nil
}
