// Package mbr reconstructs seasonal and annual streamflow from proxy
// principal components with a mass-balance-adjusted linear regression.
//
// Every target (the seasons partitioning a water year, then the annual flow)
// gets its own regression on its own principal components, but the targets
// are fitted jointly: the objective adds lambda times the squared gap between
// the annual reconstruction and the sum of the seasonal reconstructions. With
// no log transform the fit is solved in closed form; with any log transform
// the penalty is nonlinear and a numerical Minimizer is used.
package mbr

import (
	"fmt"

	"github.com/ntthung/mbr/logger"
	"gonum.org/v1/gonum/mat"
)

// problem is the validated input shared by Reconstruct and CrossValidate.
type problem struct {
	inst     *Instrumental
	pcs      []*mat.Dense // 全期間の説明変数ブロック
	instPCs  []*mat.Dense // 観測期間の説明変数ブロック
	years    []int        // 全期間の年
	instRows []int        // 全期間における観測年の行
	spec     TransformSpec
	cfg      Config
}

func newProblem(inst *Instrumental, pcs []*mat.Dense, startYear int, cfg Config) (*problem, error) {
	if err := inst.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := inst.NumTargets()
	if len(pcs) != n {
		return nil, fmt.Errorf("%w: %d predictor blocks for %d targets", ErrShapeMismatch, len(pcs), n)
	}
	if inst.FirstYear() < startYear {
		return nil, fmt.Errorf("%w: instrumental data start in %d, before the start year %d", ErrShapeMismatch, inst.FirstYear(), startYear)
	}

	years := make([]int, inst.LastYear()-startYear+1)
	for i := range years {
		years[i] = startYear + i
	}
	for k, b := range pcs {
		if b == nil {
			return nil, fmt.Errorf("%w: predictor block %d is nil", ErrShapeMismatch, k)
		}
		if r, _ := b.Dims(); r != len(years) {
			return nil, fmt.Errorf("%w: predictor block %d has %d rows for %d years (%d-%d)", ErrShapeMismatch, k, r, len(years), startYear, inst.LastYear())
		}
	}

	instRows := make([]int, len(inst.Years))
	for i, y := range inst.Years {
		instRows[i] = y - startYear
	}

	spec, err := NewTransformSpec(n, cfg.LogTransform, cfg.ForceStandardize)
	if err != nil {
		return nil, err
	}
	return &problem{
		inst:     inst,
		pcs:      pcs,
		instPCs:  subsetBlocks(pcs, instRows),
		years:    years,
		instRows: instRows,
		spec:     spec,
		cfg:      cfg,
	}, nil
}

// Calibrate fits the regression on the whole instrumental period.
//
// pcs holds one predictor matrix per target, in the order of inst.Targets,
// with one row per year from startYear to the last instrumental year.
func Calibrate(inst *Instrumental, pcs []*mat.Dense, startYear int, cfg Config) (*Fit, error) {
	p, err := newProblem(inst, pcs, startYear, cfg)
	if err != nil {
		return nil, err
	}
	return fit(p.instPCs, inst.Flow, p.spec, cfg, inst.Targets)
}

// Reconstruct calibrates on the instrumental period and reconstructs every
// target for every year from startYear to the last instrumental year. Records
// are ordered target by target, years ascending within each target.
func Reconstruct(inst *Instrumental, pcs []*mat.Dense, startYear int, cfg Config) ([]FlowRecord, error) {
	p, err := newProblem(inst, pcs, startYear, cfg)
	if err != nil {
		return nil, err
	}
	f, err := fit(p.instPCs, inst.Flow, p.spec, cfg, inst.Targets)
	if err != nil {
		return nil, err
	}

	records, err := backTransform(predict(p.pcs, f.Beta), p.years, inst.Targets, p.spec, f.Scale)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Lambda = cfg.Lambda
	}

	logger.Info.Printf("Reconstructed %d targets over %d-%d (lambda = %g, transform %v)", inst.NumTargets(), startYear, inst.LastYear(), cfg.Lambda, p.spec.Kind)
	return records, nil
}
