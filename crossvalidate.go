package mbr

import (
	"fmt"
	"strings"

	"github.com/ntthung/mbr/logger"
	"github.com/ntthung/mbr/metrics"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ReturnType selects the shape of a cross-validation result.
type ReturnType int

const (
	// ReturnFVal returns the held-out objective value of every fold.
	ReturnFVal ReturnType = iota
	// ReturnMetrics returns the scores of every target in every fold.
	ReturnMetrics
	// ReturnMetricMeans returns one row per target with scores averaged robustly over folds.
	ReturnMetricMeans
	// ReturnQ returns the flow predicted by every fold over the instrumental period.
	ReturnQ
)

var returnTypeNames = map[ReturnType]string{
	ReturnFVal:        "fval",
	ReturnMetrics:     "metrics",
	ReturnMetricMeans: "metric means",
	ReturnQ:           "Q",
}

func (rt ReturnType) String() string {
	if name, ok := returnTypeNames[rt]; ok {
		return name
	}
	return "unknown"
}

// ParseReturnType maps "fval", "metrics", "metric means" and "Q" to a ReturnType.
// Matching ignores case; "metric-means" and "metric_means" are accepted too.
func ParseReturnType(s string) (ReturnType, error) {
	norm := strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	for rt, name := range returnTypeNames {
		if strings.ToLower(name) == norm {
			return rt, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown return type %q", ErrInvalidArgument, s)
}

// MetricRecord holds the scores of one target in one fold, or their robust
// mean over all folds when Rep is zero.
type MetricRecord struct {
	Season string         // 対象の名称
	Rep    int            // フォールド番号 (1 始まり、平均では 0)
	Scores metrics.Scores // 検証スコア
	FVal   float64        // 検証期間の目的関数値
}

// CVFlowRecord is the flow of one target in one year predicted by one fold.
type CVFlowRecord struct {
	Season string  // 対象の名称
	Year   int     // 年
	Flow   float64 // 予測流量
	Rep    int     // フォールド番号 (1 始まり)
}

// CVResult holds the output selected by Type; the other fields are nil.
type CVResult struct {
	Type    ReturnType
	FVals   []float64      // ReturnFVal: フォールド順
	Metrics []MetricRecord // ReturnMetrics, ReturnMetricMeans
	Flows   []CVFlowRecord // ReturnQ
}

type foldResult struct {
	fit     *Fit
	fval    float64
	metrics []MetricRecord
	flows   []CVFlowRecord
}

// CrossValidate refits the regression once per fold. Each fold holds out the
// instrumental years at the given positions (indices into inst.Years),
// calibrates on the others, and is evaluated on the held-out years. Scale
// statistics are recomputed from each fold's calibration years alone.
//
// With cfg.Concurrency > 1 up to that many folds run at once; the result does
// not depend on it. The first failing fold aborts the run.
func CrossValidate(inst *Instrumental, pcs []*mat.Dense, folds [][]int, startYear int, cfg Config, rt ReturnType) (*CVResult, error) {
	p, err := newProblem(inst, pcs, startYear, cfg)
	if err != nil {
		return nil, err
	}
	if _, ok := returnTypeNames[rt]; !ok {
		return nil, fmt.Errorf("%w: return type %d", ErrInvalidArgument, rt)
	}
	if err := validateFolds(folds, len(inst.Years)); err != nil {
		return nil, err
	}

	results := make([]foldResult, len(folds))
	run := func(i int) error {
		r, err := p.fold(folds[i], i+1, rt)
		if err != nil {
			return fmt.Errorf("fold %d: %w", i+1, err)
		}
		results[i] = *r
		return nil
	}
	if cfg.Concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(cfg.Concurrency)
		for i := range folds {
			i := i
			g.Go(func() error { return run(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range folds {
			if err := run(i); err != nil {
				return nil, err
			}
		}
	}

	logger.Info.Printf("Cross-validated %d folds (lambda = %g, transform %v, return %v)", len(folds), cfg.Lambda, p.spec.Kind, rt)
	return aggregate(results, inst.Targets, rt), nil
}

func validateFolds(folds [][]int, numYears int) error {
	if len(folds) == 0 {
		return fmt.Errorf("%w: no folds", ErrInvalidFold)
	}
	for i, z := range folds {
		if len(z) == 0 {
			return fmt.Errorf("%w: fold %d is empty", ErrInvalidFold, i+1)
		}
		seen := make(map[int]struct{}, len(z))
		for _, idx := range z {
			if idx < 0 || idx >= numYears {
				return fmt.Errorf("%w: fold %d index %d out of range [0:%d]", ErrInvalidFold, i+1, idx, numYears)
			}
			if _, dup := seen[idx]; dup {
				return fmt.Errorf("%w: fold %d repeats index %d", ErrInvalidFold, i+1, idx)
			}
			seen[idx] = struct{}{}
		}
		if len(z) >= numYears {
			return fmt.Errorf("%w: fold %d leaves no calibration years", ErrInvalidFold, i+1)
		}
	}
	return nil
}

// fold calibrates on every instrumental year outside heldOut and evaluates
// the objective on heldOut. rep is the 1-based fold number.
func (p *problem) fold(heldOut []int, rep int, rt ReturnType) (*foldResult, error) {
	inst := p.inst
	z := sortedCopy(heldOut)
	calib := complementOf(z, len(inst.Years))

	f, err := fit(subsetBlocks(p.instPCs, calib), subsetRows(inst.Flow, calib), p.spec, p.cfg, inst.Targets)
	if err != nil {
		return nil, err
	}

	hat := predict(p.instPCs, f.Beta)
	obs, err := p.spec.ApplyWith(inst.Flow, f.Scale)
	if err != nil {
		return nil, err
	}
	obj := objective{lambda: p.cfg.Lambda, spec: p.spec, scale: f.Scale}
	res := &foldResult{fit: f, fval: obj.value(hat.Rows(z), obs.Rows(z))}
	logger.Debug.Printf("Fold %d: %d calibration years, %d held out, fval = %g", rep, len(calib), len(z), res.fval)

	switch rt {
	case ReturnQ:
		records, err := backTransform(hat, inst.Years, inst.Targets, p.spec, f.Scale)
		if err != nil {
			return nil, err
		}
		res.flows = make([]CVFlowRecord, len(records))
		for i, r := range records {
			res.flows[i] = CVFlowRecord{Season: r.Season, Year: r.Year, Flow: r.Flow, Rep: rep}
		}
	case ReturnMetrics, ReturnMetricMeans:
		q, err := toFlowUnits(hat, p.spec, f.Scale)
		if err != nil {
			return nil, err
		}
		res.metrics = make([]MetricRecord, len(inst.Targets))
		for k, t := range inst.Targets {
			s, err := metrics.Compute(mat.Col(nil, k, q), mat.Col(nil, k, inst.Flow), z)
			if err != nil {
				return nil, fmt.Errorf("scoring %q: %w", t, err)
			}
			res.metrics[k] = MetricRecord{Season: t, Rep: rep, Scores: s, FVal: res.fval}
		}
	}
	return res, nil
}

func aggregate(results []foldResult, targets []string, rt ReturnType) *CVResult {
	out := &CVResult{Type: rt}
	switch rt {
	case ReturnFVal:
		out.FVals = make([]float64, len(results))
		for i, r := range results {
			out.FVals[i] = r.fval
		}
	case ReturnQ:
		for _, r := range results {
			out.Flows = append(out.Flows, r.flows...)
		}
	case ReturnMetrics:
		for _, r := range results {
			out.Metrics = append(out.Metrics, r.metrics...)
		}
	case ReturnMetricMeans:
		out.Metrics = make([]MetricRecord, len(targets))
		numScores := len(metrics.Names())
		for k, t := range targets {
			columns := make([][]float64, numScores)
			fvals := make([]float64, len(results))
			for i, r := range results {
				for j, v := range r.metrics[k].Scores.Values() {
					columns[j] = append(columns[j], v)
				}
				fvals[i] = r.fval
			}
			means := make([]float64, numScores)
			for j, col := range columns {
				means[j] = metrics.BiweightMean(col, metrics.DefaultBiweightC)
			}
			out.Metrics[k] = MetricRecord{
				Season: t,
				Scores: metrics.ScoresFromValues(means),
				FVal:   metrics.BiweightMean(fvals, metrics.DefaultBiweightC),
			}
		}
	}
	return out
}
