package mbr

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidArgument signals that any of given arguments to call the function was invalid.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrShapeMismatch signals that predictor blocks and years disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidInstrumental signals that the instrumental records do not form a complete year × target table.
	ErrInvalidInstrumental = errors.New("invalid instrumental data")
	// ErrInvalidFold signals that a hold-out set cannot be used for cross-validation.
	ErrInvalidFold = errors.New("invalid fold")
	// ErrNonPositiveFlow signals that a log-transformed target has a flow value <= 0.
	ErrNonPositiveFlow = errors.New("non-positive flow under log transform")
	// ErrDegenerateTarget signals that a target to be standardized has zero spread.
	ErrDegenerateTarget = errors.New("target has zero standard deviation")

	// ErrNearSingular matches a system whose condition number is too large.
	ErrNearSingular = &ConditionError{exact: false}
	// ErrExactlySingular matches a system that has no unique solution.
	ErrExactlySingular = &ConditionError{exact: true}

	matConditionErrorInf = mat.Condition(math.Inf(1)) // matrix exactly singular
)

// ConditionError reports a linear system that could not be solved reliably.
// It matches ErrExactlySingular or ErrNearSingular under errors.Is and
// unwraps to the underlying gonum error.
type ConditionError struct {
	cause error
	exact bool
	Hint  *ConditionErrorHint
}

func (e *ConditionError) Error() string {
	kind := "near-singular"
	if e.exact {
		kind = "exactly singular"
	}
	msg := kind + " system"
	if e.Hint != nil {
		msg += " " + e.Hint.String()
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Is matches another *ConditionError of the same singularity.
func (e *ConditionError) Is(target error) bool {
	t, ok := target.(*ConditionError)
	return ok && t.exact == e.exact
}

func (e *ConditionError) Unwrap() error {
	return e.cause
}

// asConditionError wraps err when it carries a gonum condition number or
// reports an exactly singular LU factorization, and returns it unchanged
// otherwise. Folds may run concurrently, so the target of errors.As is local.
func asConditionError(err error, hint *ConditionErrorHint) error {
	var cond mat.Condition
	switch {
	case errors.As(err, &cond):
		return &ConditionError{cause: err, exact: errors.Is(err, matConditionErrorInf), Hint: hint}
	case errors.Is(err, mat.ErrSingular):
		return &ConditionError{cause: err, exact: true, Hint: hint}
	}
	return err
}

// ConditionErrorHint describes the system that failed to solve.
type ConditionErrorHint struct {
	Lambda  float64      // ペナルティの重み
	Targets []TargetHint // 対象ごとのブロック
}

// TargetHint locates one target's coefficients in the stacked coefficient vector.
type TargetHint struct {
	Label         string // 名称
	FirstCoeff    int    // 係数ベクトル内の開始位置
	NumPredictors int    // 切片を除く説明変数の数
}

func newConditionErrorHint(targets []string, blocks []*mat.Dense, lambda float64) *ConditionErrorHint {
	hints := make([]TargetHint, len(blocks))
	offset := 0
	for k, b := range blocks {
		_, c := b.Dims()
		label := fmt.Sprintf("target%d", k)
		if k < len(targets) {
			label = targets[k]
		}
		hints[k] = TargetHint{Label: label, FirstCoeff: offset, NumPredictors: c}
		offset += c + 1
	}
	return &ConditionErrorHint{Lambda: lambda, Targets: hints}
}

// String lists the target blocks, e.g. "(lambda 2; DJF[0:3] Ann[3:5])".
func (h *ConditionErrorHint) String() string {
	parts := make([]string, len(h.Targets))
	for i, t := range h.Targets {
		parts[i] = fmt.Sprintf("%s[%d:%d]", t.Label, t.FirstCoeff, t.FirstCoeff+t.NumPredictors+1)
	}
	return fmt.Sprintf("(lambda %g; %s)", h.Lambda, strings.Join(parts, " "))
}
