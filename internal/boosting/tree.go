// Package boosting implements a gradient-boosted ensemble of shallow
// regression trees: variance-reduction tree induction, residual-fitting
// boosting, directional prediction with per-tree votes and per-feature
// path attributions, and held-out evaluation metrics.
package boosting

import "sort"

// Tree growth stop conditions.
const (
	DefaultMinSamplesSplit = 5
	DefaultMinSamplesLeaf  = 2
	minImpurity            = 0.001
)

// TreeNode is one node of a regression tree. Internal nodes carry a feature
// index and split threshold; leaves carry the mean of the targets routed to
// them. Trees are immutable after construction.
type TreeNode struct {
	FeatureIndex int       `json:"feature_index"`
	Threshold    float64   `json:"threshold"`
	Left         *TreeNode `json:"left,omitempty"`
	Right        *TreeNode `json:"right,omitempty"`
	Value        float64   `json:"value"`
	Samples      int       `json:"samples"`
	Impurity     float64   `json:"impurity"`
}

// IsLeaf reports whether the node has no children.
func (n *TreeNode) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// DecisionTree is one boosting round's regression tree.
type DecisionTree struct {
	Root *TreeNode `json:"root"`
}

// Predict walks the tree root-to-leaf for the given feature vector.
func (t *DecisionTree) Predict(vector []float64) float64 {
	node := t.Root
	for !node.IsLeaf() {
		if vector[node.FeatureIndex] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// DecisionPath returns the feature indices of the internal nodes traversed
// for the vector, plus the leaf reached.
func (t *DecisionTree) DecisionPath(vector []float64) ([]int, *TreeNode) {
	var path []int
	node := t.Root
	for !node.IsLeaf() {
		path = append(path, node.FeatureIndex)
		if vector[node.FeatureIndex] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return path, node
}

// SplitCounts accumulates, into counts, how often each feature index is
// used as a split node in the tree.
func (t *DecisionTree) SplitCounts(counts map[int]int) {
	var walk func(n *TreeNode)
	walk = func(n *TreeNode) {
		if n == nil || n.IsLeaf() {
			return
		}
		counts[n.FeatureIndex]++
		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)
}

type treeBuilder struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
}

// build grows a regression tree on (features, targets) by recursive
// variance-reduction splitting.
func (b *treeBuilder) build(features [][]float64, targets []float64) *DecisionTree {
	indices := make([]int, len(targets))
	for i := range indices {
		indices[i] = i
	}
	return &DecisionTree{Root: b.buildNode(features, targets, indices, 0)}
}

func (b *treeBuilder) buildNode(features [][]float64, targets []float64, indices []int, depth int) *TreeNode {
	node := &TreeNode{
		FeatureIndex: -1,
		Value:        meanAt(targets, indices),
		Samples:      len(indices),
	}
	node.Impurity = varianceAt(targets, indices, node.Value)

	if depth >= b.maxDepth || len(indices) < b.minSamplesSplit || node.Impurity < minImpurity {
		return node
	}

	featureIdx, threshold, ok := b.bestSplit(features, targets, indices, node.Impurity)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range indices {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node.FeatureIndex = featureIdx
	node.Threshold = threshold
	node.Left = b.buildNode(features, targets, left, depth+1)
	node.Right = b.buildNode(features, targets, right, depth+1)
	return node
}

// bestSplit evaluates every feature against every midpoint between its
// consecutive unique values and returns the split minimizing the
// sample-weighted child variance.
func (b *treeBuilder) bestSplit(features [][]float64, targets []float64, indices []int, parentImpurity float64) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestScore := parentImpurity
	found := false

	nFeatures := len(features[indices[0]])
	values := make([]float64, 0, len(indices))

	for f := 0; f < nFeatures; f++ {
		values = values[:0]
		for _, i := range indices {
			values = append(values, features[i][f])
		}
		sort.Float64s(values)

		for v := 1; v < len(values); v++ {
			if values[v] == values[v-1] {
				continue
			}
			threshold := (values[v] + values[v-1]) / 2

			leftN, rightN := 0, 0
			leftSum, rightSum := 0.0, 0.0
			leftSum2, rightSum2 := 0.0, 0.0
			for _, i := range indices {
				t := targets[i]
				if features[i][f] <= threshold {
					leftN++
					leftSum += t
					leftSum2 += t * t
				} else {
					rightN++
					rightSum += t
					rightSum2 += t * t
				}
			}
			if leftN < b.minSamplesLeaf || rightN < b.minSamplesLeaf {
				continue
			}

			leftVar := varianceFromSums(leftSum, leftSum2, leftN)
			rightVar := varianceFromSums(rightSum, rightSum2, rightN)
			total := float64(leftN + rightN)
			weighted := leftVar*float64(leftN)/total + rightVar*float64(rightN)/total

			if weighted < bestScore {
				bestScore = weighted
				bestFeature = f
				bestThreshold = threshold
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

func meanAt(targets []float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range indices {
		sum += targets[i]
	}
	return sum / float64(len(indices))
}

func varianceAt(targets []float64, indices []int, mean float64) float64 {
	if len(indices) == 0 {
		return 0
	}
	variance := 0.0
	for _, i := range indices {
		d := targets[i] - mean
		variance += d * d
	}
	return variance / float64(len(indices))
}

func varianceFromSums(sum, sum2 float64, n int) float64 {
	if n == 0 {
		return 0
	}
	fn := float64(n)
	mean := sum / fn
	v := sum2/fn - mean*mean
	if v < 0 {
		return 0
	}
	return v
}
