package mbr

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FlowRecord is one reconstructed flow value.
type FlowRecord struct {
	Season string  // 対象の名称
	Year   int     // 年
	Flow   float64 // 復元流量
	Lambda float64 // ペナルティの重み
}

// toFlowUnits returns the year-major flows of a modeling-space prediction.
func toFlowUnits(hat Stacked, spec TransformSpec, sp *ScaleParams) (*mat.Dense, error) {
	return spec.Invert(hat.Wide(), sp)
}

// backTransform converts a target-major prediction over years to flow records,
// target by target with years cycling inside each target.
func backTransform(hat Stacked, years []int, targets []string, spec TransformSpec, sp *ScaleParams) ([]FlowRecord, error) {
	if hat.NumTargets != len(targets) || hat.NumYears() != len(years) {
		return nil, fmt.Errorf("%w: prediction of %d values for %d years × %d targets", ErrShapeMismatch, len(hat.Data), len(years), len(targets))
	}
	q, err := toFlowUnits(hat, spec, sp)
	if err != nil {
		return nil, err
	}
	records := make([]FlowRecord, 0, len(years)*len(targets))
	for k, t := range targets {
		for i, y := range years {
			records = append(records, FlowRecord{Season: t, Year: y, Flow: q.At(i, k)})
		}
	}
	return records, nil
}
