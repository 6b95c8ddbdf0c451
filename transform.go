package mbr

import (
	"fmt"
	"math"

	"github.com/ntthung/mbr/scale"
	"gonum.org/v1/gonum/mat"
)

// ScaleParams holds the per-target mean and standard deviation of the
// calibration targets. A nil *ScaleParams means no standardization.
type ScaleParams = scale.Params

// TransformKind says which transformations map flow into modeling space.
type TransformKind int

const (
	// Identity fits the flows as they are.
	Identity TransformKind = iota
	// LogOnly logs every target and does not standardize.
	LogOnly
	// LogAndScale logs some targets and standardizes all of them.
	LogAndScale
	// ScaleOnly standardizes every target without logging.
	ScaleOnly
)

var transformKindNames = map[TransformKind]string{
	Identity:    "identity",
	LogOnly:     "log",
	LogAndScale: "log+scale",
	ScaleOnly:   "scale",
}

func (k TransformKind) String() string {
	if name, ok := transformKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Logs reports whether some target is log-transformed.
func (k TransformKind) Logs() bool {
	return k == LogOnly || k == LogAndScale
}

// Scales reports whether targets are standardized.
func (k TransformKind) Scales() bool {
	return k == LogAndScale || k == ScaleOnly
}

// TransformSpec fixes how each target is moved into modeling space.
type TransformSpec struct {
	Kind TransformKind // 変換の種類
	Log  []bool        // 対象ごとの対数変換の有無
}

// NewTransformSpec derives the transformation for n targets. logIdx lists the
// 0-based targets to log-transform. Targets are standardized when force is
// set or when some but not all targets are logged, since the penalty would
// otherwise mix log and linear scales.
func NewTransformSpec(n int, logIdx []int, force bool) (TransformSpec, error) {
	if n < 2 {
		return TransformSpec{}, fmt.Errorf("%w: need at least 2 targets, got %d", ErrInvalidArgument, n)
	}
	logs := make([]bool, n)
	for _, k := range logIdx {
		if k < 0 || k >= n {
			return TransformSpec{}, fmt.Errorf("%w: log-transform index %d out of range [0:%d]", ErrInvalidArgument, k, n)
		}
		if logs[k] {
			return TransformSpec{}, fmt.Errorf("%w: log-transform index %d given twice", ErrInvalidArgument, k)
		}
		logs[k] = true
	}

	spec := TransformSpec{Log: logs}
	switch {
	case len(logIdx) == 0 && force:
		spec.Kind = ScaleOnly
	case len(logIdx) == 0:
		spec.Kind = Identity
	case len(logIdx) == n && !force:
		spec.Kind = LogOnly
	default:
		spec.Kind = LogAndScale
	}
	return spec, nil
}

// NumTargets returns N.
func (s TransformSpec) NumTargets() int {
	return len(s.Log)
}

// LogAnnual reports whether the annual target is log-transformed.
func (s TransformSpec) LogAnnual() bool {
	return s.Kind.Logs() && s.Log[len(s.Log)-1]
}

// LogIndices returns the 0-based log-transformed targets.
func (s TransformSpec) LogIndices() []int {
	var idx []int
	for k, l := range s.Log {
		if l {
			idx = append(idx, k)
		}
	}
	return idx
}

// Apply maps the year-major flows into modeling space. Standardization
// statistics, when s asks for them, come from wide and nothing else.
func (s TransformSpec) Apply(wide *mat.Dense) (Stacked, *ScaleParams, error) {
	logged, err := s.logged(wide)
	if err != nil {
		return Stacked{}, nil, err
	}
	if !s.Kind.Scales() {
		return stackWide(logged), nil, nil
	}
	z, p := scale.Cols(logged)
	for k, sd := range p.SD {
		if sd == 0 || math.IsNaN(sd) {
			return Stacked{}, nil, fmt.Errorf("%w: target %d", ErrDegenerateTarget, k)
		}
	}
	return stackWide(z), p, nil
}

// ApplyWith maps flows into modeling space with statistics derived elsewhere.
func (s TransformSpec) ApplyWith(wide *mat.Dense, p *ScaleParams) (Stacked, error) {
	logged, err := s.logged(wide)
	if err != nil {
		return Stacked{}, err
	}
	if !s.Kind.Scales() {
		return stackWide(logged), nil
	}
	z, err := scale.ColsWith(logged, p)
	if err != nil {
		return Stacked{}, err
	}
	return stackWide(z), nil
}

// Invert maps year-major modeling-space values back to flow units.
func (s TransformSpec) Invert(wide *mat.Dense, p *ScaleParams) (*mat.Dense, error) {
	out := wide
	if s.Kind.Scales() {
		var err error
		if out, err = scale.UnscaleCols(wide, p); err != nil {
			return nil, err
		}
	} else {
		out = mat.DenseCopyOf(wide)
	}
	if s.Kind.Logs() {
		out.Apply(func(_, j int, v float64) float64 {
			if s.Log[j] {
				return math.Exp(v)
			}
			return v
		}, out)
	}
	return out, nil
}

func (s TransformSpec) logged(wide *mat.Dense) (*mat.Dense, error) {
	r, c := wide.Dims()
	if c != len(s.Log) {
		return nil, fmt.Errorf("%w: %d target columns, transform for %d", ErrShapeMismatch, c, len(s.Log))
	}
	out := mat.DenseCopyOf(wide)
	if !s.Kind.Logs() {
		return out, nil
	}
	for j, l := range s.Log {
		if !l {
			continue
		}
		for i := 0; i < r; i++ {
			v := out.At(i, j)
			if v <= 0 {
				return nil, fmt.Errorf("%w: target %d, row %d, value %v", ErrNonPositiveFlow, j, i, v)
			}
			out.Set(i, j, math.Log(v))
		}
	}
	return out, nil
}
