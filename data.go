package mbr

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Observation is one observed flow value of one target in one year.
type Observation struct {
	Target string  // 対象（季節または年）の名称
	Year   int     // 年
	Flow   float64 // 観測流量
}

// Instrumental is the observed record used for calibration.
//
// Flow is year-major: row i holds Years[i], column k holds Targets[k]. The last
// target is the annual flow, the others are the seasons partitioning the year.
type Instrumental struct {
	Targets []string   // 対象の名称（正規順、最後が年流量）
	Years   []int      // 連続した観測年（昇順）
	Flow    *mat.Dense // 観測流量 (年 × 対象)
}

// NewInstrumental builds the year × target table from long records. targets
// fixes the canonical order. Every (year, target) cell between the first and
// last observed year must be present exactly once.
func NewInstrumental(targets []string, records []Observation) (*Instrumental, error) {
	if len(targets) < 2 {
		return nil, fmt.Errorf("%w: need at least one season and the annual target, got %d targets", ErrInvalidInstrumental, len(targets))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrInvalidInstrumental)
	}
	targetIdx := make(map[string]int, len(targets))
	for k, t := range targets {
		if _, dup := targetIdx[t]; dup {
			return nil, fmt.Errorf("%w: duplicate target %q", ErrInvalidInstrumental, t)
		}
		targetIdx[t] = k
	}

	first, last := records[0].Year, records[0].Year
	for _, r := range records {
		if r.Year < first {
			first = r.Year
		}
		if r.Year > last {
			last = r.Year
		}
	}
	numYears := last - first + 1
	n := len(targets)
	if len(records) != numYears*n {
		return nil, fmt.Errorf("%w: %d records for %d years × %d targets", ErrInvalidInstrumental, len(records), numYears, n)
	}

	flow := mat.NewDense(numYears, n, nil)
	filled := make([]bool, numYears*n)
	for _, r := range records {
		k, ok := targetIdx[r.Target]
		if !ok {
			return nil, fmt.Errorf("%w: unknown target %q in year %d", ErrInvalidInstrumental, r.Target, r.Year)
		}
		i := r.Year - first
		if filled[i*n+k] {
			return nil, fmt.Errorf("%w: duplicate record for %q in year %d", ErrInvalidInstrumental, r.Target, r.Year)
		}
		filled[i*n+k] = true
		flow.Set(i, k, r.Flow)
	}

	years := make([]int, numYears)
	for i := range years {
		years[i] = first + i
	}
	return &Instrumental{
		Targets: append([]string(nil), targets...),
		Years:   years,
		Flow:    flow,
	}, nil
}

// NumTargets returns N, the number of seasons plus one.
func (in *Instrumental) NumTargets() int {
	return len(in.Targets)
}

// FirstYear returns the first observed year.
func (in *Instrumental) FirstYear() int {
	return in.Years[0]
}

// LastYear returns the last observed year.
func (in *Instrumental) LastYear() int {
	return in.Years[len(in.Years)-1]
}

// Observations returns the table as long records, target-major.
func (in *Instrumental) Observations() []Observation {
	obs := make([]Observation, 0, len(in.Years)*len(in.Targets))
	for k, t := range in.Targets {
		for i, y := range in.Years {
			obs = append(obs, Observation{Target: t, Year: y, Flow: in.Flow.At(i, k)})
		}
	}
	return obs
}

func (in *Instrumental) validate() error {
	if in == nil || in.Flow == nil {
		return fmt.Errorf("%w: nil instrumental data", ErrInvalidArgument)
	}
	r, c := in.Flow.Dims()
	if c != len(in.Targets) || r != len(in.Years) || len(in.Targets) < 2 {
		return fmt.Errorf("%w: flow is %d×%d for %d years and %d targets", ErrInvalidInstrumental, r, c, len(in.Years), len(in.Targets))
	}
	for i := 1; i < len(in.Years); i++ {
		if in.Years[i] != in.Years[i-1]+1 {
			return fmt.Errorf("%w: years are not contiguous at %d", ErrInvalidInstrumental, in.Years[i])
		}
	}
	return nil
}

// Stacked is a target-major vector: all years of target 0, then all years of
// target 1, and so on. It is the layout of the regression targets, of X·beta
// and of the objective function inputs. Wide and stackWide are the only
// conversions to and from the year-major table.
type Stacked struct {
	Data       []float64
	NumTargets int
}

// NumYears returns the number of years per target.
func (s Stacked) NumYears() int {
	if s.NumTargets == 0 {
		return 0
	}
	return len(s.Data) / s.NumTargets
}

// Target returns the block of target k. The slice aliases s.Data.
func (s Stacked) Target(k int) []float64 {
	n := s.NumYears()
	return s.Data[k*n : (k+1)*n]
}

// Wide returns the year-major years × targets matrix.
func (s Stacked) Wide() *mat.Dense {
	n := s.NumYears()
	// target-major data read row-major is the transpose of the wide table
	return mat.DenseCopyOf(mat.NewDense(s.NumTargets, n, s.Data).T())
}

// Rows returns the stacked vector restricted to the given year positions.
func (s Stacked) Rows(idx []int) Stacked {
	out := Stacked{Data: make([]float64, 0, len(idx)*s.NumTargets), NumTargets: s.NumTargets}
	for k := 0; k < s.NumTargets; k++ {
		block := s.Target(k)
		for _, i := range idx {
			out.Data = append(out.Data, block[i])
		}
	}
	return out
}

func stackWide(wide mat.Matrix) Stacked {
	r, c := wide.Dims()
	data := make([]float64, 0, r*c)
	for k := 0; k < c; k++ {
		data = append(data, mat.Col(nil, k, wide)...)
	}
	return Stacked{Data: data, NumTargets: c}
}

// complementOf returns the positions in [0, n) that are not in idx, ascending.
func complementOf(idx []int, n int) []int {
	drop := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		drop[i] = struct{}{}
	}
	out := make([]int, 0, n-len(drop))
	for i := 0; i < n; i++ {
		if _, ok := drop[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func sortedCopy(idx []int) []int {
	s := append([]int(nil), idx...)
	sort.Ints(s)
	return s
}
