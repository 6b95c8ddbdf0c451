package mbr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBackTransform_Order(t *testing.T) {
	spec, err := NewTransformSpec(2, nil, false)
	require.NoError(t, err)
	hat := Stacked{Data: []float64{1, 2, 3, 10, 20, 30}, NumTargets: 2}

	got, err := backTransform(hat, []int{1801, 1802, 1803}, []string{"wet", "ann"}, spec, nil)
	require.NoError(t, err)
	require.Equal(t, []FlowRecord{
		{Season: "wet", Year: 1801, Flow: 1},
		{Season: "wet", Year: 1802, Flow: 2},
		{Season: "wet", Year: 1803, Flow: 3},
		{Season: "ann", Year: 1801, Flow: 10},
		{Season: "ann", Year: 1802, Flow: 20},
		{Season: "ann", Year: 1803, Flow: 30},
	}, got)
}

func TestBackTransform_InvertsApply(t *testing.T) {
	wide := mat.NewDense(4, 3, []float64{
		5, 8, 14,
		3, 9, 11,
		7, 6, 12,
		4, 10, 15,
	})
	for _, tc := range []struct {
		name  string
		log   []int
		force bool
	}{
		{"identity", nil, false},
		{"scale", nil, true},
		{"log", []int{0, 1, 2}, false},
		{"log and scale", []int{1}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := NewTransformSpec(3, tc.log, tc.force)
			require.NoError(t, err)
			y, sp, err := spec.Apply(wide)
			require.NoError(t, err)

			got, err := backTransform(y, []int{1, 2, 3, 4}, []string{"a", "b", "c"}, spec, sp)
			require.NoError(t, err)
			for _, r := range got {
				k := map[string]int{"a": 0, "b": 1, "c": 2}[r.Season]
				require.InDelta(t, wide.At(r.Year-1, k), r.Flow, 1e-9)
			}
		})
	}
}

func TestBackTransform_LogIsPositive(t *testing.T) {
	spec, err := NewTransformSpec(2, []int{0, 1}, false)
	require.NoError(t, err)
	hat := Stacked{Data: []float64{-30, 0, 1, 2}, NumTargets: 2}
	got, err := backTransform(hat, []int{1, 2}, []string{"s", "a"}, spec, nil)
	require.NoError(t, err)
	require.Equal(t, math.Exp(-30), got[0].Flow)
	require.Equal(t, 1.0, got[1].Flow)
	for _, r := range got {
		require.Greater(t, r.Flow, 0.0)
	}
}

func TestBackTransform_ShapeMismatch(t *testing.T) {
	spec, err := NewTransformSpec(2, nil, false)
	require.NoError(t, err)
	hat := Stacked{Data: []float64{1, 2, 3, 4}, NumTargets: 2}
	_, err = backTransform(hat, []int{1, 2, 3}, []string{"s", "a"}, spec, nil)
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = backTransform(hat, []int{1, 2}, []string{"s", "x", "a"}, spec, nil)
	require.ErrorIs(t, err, ErrShapeMismatch)
}
