package model

import (
	"math/rand"
	"sort"
)

// treeParams bounds the growth of a single regression tree.
type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int
}

type node struct {
	feature   int // -1 for leaves
	threshold float64
	left      int
	right     int
	value     float64
}

// tree is a CART regression tree stored as a flat node slice; node 0 is the root.
type tree struct {
	nodes []node
}

// growTree fits a tree on the rows of x selected by idx (duplicates allowed,
// as produced by bootstrap sampling).
func growTree(x [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand) *tree {
	t := &tree{}
	b := builder{x: x, y: y, p: p, rng: rng, width: len(x[0]), t: t}
	b.grow(idx, 0)
	return t
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.feature < 0 {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type builder struct {
	x     [][]float64
	y     []float64
	p     treeParams
	rng   *rand.Rand
	width int
	t     *tree
}

func (b *builder) grow(idx []int, depth int) int {
	id := len(b.t.nodes)
	b.t.nodes = append(b.t.nodes, node{feature: -1, value: b.mean(idx)})

	if depth >= b.p.maxDepth || len(idx) < 2*b.p.minLeaf {
		return id
	}

	feat, thr, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.t.nodes[id] = node{feature: feat, threshold: thr, left: l, right: r, value: b.t.nodes[id].value}
	return id
}

func (b *builder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

// bestSplit searches a random feature subset for the threshold that
// minimises the summed squared error of the two children.
func (b *builder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}
	parentScore := total * total / float64(n)
	bestScore := parentScore + 1e-12

	candidates := b.rng.Perm(b.width)[:b.p.maxFeatures]
	sorted := make([]int, n)

	for _, f := range candidates {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.y[sorted[k]]
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			leftN := k + 1
			rightN := n - leftN
			if leftN < b.p.minLeaf || rightN < b.p.minLeaf {
				continue
			}
			rightSum := total - leftSum
			// maximising this is equivalent to minimising child SSE
			score := leftSum*leftSum/float64(leftN) + rightSum*rightSum/float64(rightN)
			if score > bestScore {
				bestScore = score
				feature = f
				threshold = lo + (hi-lo)/2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}
