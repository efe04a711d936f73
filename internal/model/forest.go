package model

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams configures a bagged regression forest.
type ForestParams struct {
	Estimators  int
	MaxDepth    int
	MinLeaf     int
	MaxFeatures int // 0 means width/3
	Seed        int64
}

// Forest is an average of bootstrap-trained regression trees.
type Forest struct {
	trees []*tree
	width int
}

// FitForest trains p.Estimators trees in parallel. Per-tree seeds are drawn
// in order from a generator seeded with p.Seed, so equal inputs and seeds
// yield identical forests regardless of scheduling.
func FitForest(ctx context.Context, x [][]float64, y []float64, p ForestParams) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("forest: %d rows for %d labels", len(x), len(y))
	}
	if p.Estimators < 1 {
		return nil, fmt.Errorf("forest: estimators must be positive, got %d", p.Estimators)
	}
	width := len(x[0])
	mtry := p.MaxFeatures
	if mtry <= 0 {
		mtry = width / 3
	}
	if mtry < 1 {
		mtry = 1
	}
	if mtry > width {
		mtry = width
	}
	tp := treeParams{maxDepth: p.MaxDepth, minLeaf: p.MinLeaf, maxFeatures: mtry}
	if tp.minLeaf < 1 {
		tp.minLeaf = 1
	}

	master := rand.New(rand.NewSource(p.Seed))
	seeds := make([]int64, p.Estimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	f := &Forest{trees: make([]*tree, p.Estimators), width: width}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, seed := range seeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed))
			sample := make([]int, len(x))
			for j := range sample {
				sample[j] = rng.Intn(len(x))
			}
			f.trees[i] = growTree(x, y, sample, tp, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// Predict averages the trees' estimates. It panics when len(row) differs
// from the training width.
func (f *Forest) Predict(row []float64) float64 {
	if len(row) != f.width {
		panic(fmt.Sprintf("model: feature row has %d values, forest expects %d", len(row), f.width))
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(row)
	}
	return sum / float64(len(f.trees))
}

// Size returns the number of trees.
func (f *Forest) Size() int { return len(f.trees) }
