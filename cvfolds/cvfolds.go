// Package cvfolds generates hold-out index sets for cross-validation.
package cvfolds

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ntthung/mbr/logger"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// ErrInvalidArgument signals that the fold options cannot produce any fold.
var ErrInvalidArgument = errors.New("cvfolds: invalid argument")

// Options : フォールド生成の設定
type Options struct {
	Runs       int     // フォールド数
	Frac       float64 // 検証に回す年の割合
	Contiguous bool    // 検証年を連続した区間にするかどうか
	Seed       uint64  // 乱数シード
}

// DefaultOptions returns 30 contiguous folds each holding out 10% of the years.
func DefaultOptions() Options {
	return Options{Runs: 30, Frac: 0.1, Contiguous: true, Seed: 24}
}

// Make returns Runs hold-out sets of positions into years. Each set holds
// floor(len(years)*Frac) positions (at least one) in ascending order. The same
// Options always give the same folds.
//
// Contiguous folds are runs of consecutive positions with distinct starts; when
// fewer distinct starts exist than Runs, every start is used once.
func Make(years []int, opts Options) ([][]int, error) {
	n := len(years)
	if opts.Runs < 1 {
		return nil, fmt.Errorf("%w: runs must be positive, got %d", ErrInvalidArgument, opts.Runs)
	}
	if !(opts.Frac > 0 && opts.Frac < 1) {
		return nil, fmt.Errorf("%w: frac must be in (0, 1), got %v", ErrInvalidArgument, opts.Frac)
	}
	k := int(math.Floor(float64(n) * opts.Frac))
	if k < 1 {
		k = 1
	}
	if k >= n {
		return nil, fmt.Errorf("%w: %d years cannot hold out %d and keep a calibration set", ErrInvalidArgument, n, k)
	}

	src := rand.NewSource(opts.Seed)

	if opts.Contiguous {
		numStarts := n - k + 1
		var starts []int
		if opts.Runs >= numStarts {
			if opts.Runs > numStarts {
				logger.Warn.Printf("Only %d contiguous folds of length %d exist; using all of them instead of %d", numStarts, k, opts.Runs)
			}
			starts = make([]int, numStarts)
			for i := range starts {
				starts[i] = i
			}
		} else {
			starts = make([]int, opts.Runs)
			sampleuv.WithoutReplacement(starts, numStarts, src)
			sort.Ints(starts)
		}
		folds := make([][]int, len(starts))
		for i, s := range starts {
			fold := make([]int, k)
			for j := range fold {
				fold[j] = s + j
			}
			folds[i] = fold
		}
		return folds, nil
	}

	folds := make([][]int, opts.Runs)
	for i := range folds {
		fold := make([]int, k)
		sampleuv.WithoutReplacement(fold, n, src)
		sort.Ints(fold)
		folds[i] = fold
	}
	return folds, nil
}
