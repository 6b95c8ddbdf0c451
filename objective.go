package mbr

import (
	"math"

	"github.com/ntthung/mbr/scale"
	"gonum.org/v1/gonum/mat"
)

// nonFinitePenalty replaces a mass-balance penalty that cannot be evaluated,
// e.g. when exponentiating a coefficient guess overflows. The optimizer needs
// a finite objective at every point it probes.
// TODO: scale the sentinel with the calibration RSS; a fixed 1e12 may dwarf or undershoot the objective on very large or very small flow units.
const nonFinitePenalty = 1e12

// objective is the penalized least squares criterion in modeling space:
// the residual sum of squares of all targets plus lambda times the squared
// mismatch between the annual fit and the sum of the seasonal fits.
type objective struct {
	lambda float64
	spec   TransformSpec
	scale  *ScaleParams
}

func (o objective) value(hat, obs Stacked) float64 {
	var rss float64
	for i, h := range hat.Data {
		d := h - obs.Data[i]
		rss += d * d
	}
	if o.lambda == 0 {
		return rss
	}
	return rss + o.lambda*o.penalty(hat)
}

// penalty compares the annual row of hat with the annual flow implied by the
// seasonal rows. Seasons are taken to flow units (unscale, then exponentiate
// logged ones), summed, and the sum is taken back into the annual target's
// modeling space.
func (o objective) penalty(hat Stacked) float64 {
	numYears := hat.NumYears()
	annual := hat.NumTargets - 1
	scales := o.spec.Kind.Scales()

	// seasonal rows of hat form a seasons × years matrix
	seasons := mat.NewDense(annual, numYears, hat.Data[:annual*numYears])
	if scales {
		var err error
		seasonal := &scale.Params{Mean: o.scale.Mean[:annual], SD: o.scale.SD[:annual]}
		if seasons, err = scale.UnscaleRows(seasons, seasonal); err != nil {
			// o.scale comes from the same targets as hat
			panic(err)
		}
	}

	implied := make([]float64, numYears)
	for s := 0; s < annual; s++ {
		for t := 0; t < numYears; t++ {
			v := seasons.At(s, t)
			if o.spec.Log[s] {
				v = math.Exp(v)
			}
			if !isFinite(v) {
				return nonFinitePenalty
			}
			implied[t] += v
		}
	}

	annualHat := hat.Target(annual)
	logAnnual := o.spec.Log[annual]
	if logAnnual {
		for _, v := range annualHat {
			if !isFinite(math.Exp(v)) {
				return nonFinitePenalty
			}
		}
	}

	var p float64
	for t, f := range implied {
		if logAnnual {
			f = math.Log(f)
		}
		if scales {
			f = (f - o.scale.Mean[annual]) / o.scale.SD[annual]
		}
		d := f - annualHat[t]
		p += d * d
	}
	if !isFinite(p) {
		return nonFinitePenalty
	}
	return p
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
