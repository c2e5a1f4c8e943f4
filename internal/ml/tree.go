package ml

import "math/rand"

// TreeNode is one node of a CART tree. Fields are exported for the JSON
// model artifact; Left and Right are nil on leaves.
type TreeNode struct {
	Feature int       `json:"feature,omitempty"`
	Split   float64   `json:"split,omitempty"`
	Left    *TreeNode `json:"left,omitempty"`
	Right   *TreeNode `json:"right,omitempty"`
	Leaf    bool      `json:"leaf,omitempty"`
	Value   float64   `json:"value,omitempty"`
	Probs   []float64 `json:"probs,omitempty"`
}

// walk descends to the leaf that covers the sample. Samples below the split
// go left.
func (n *TreeNode) walk(x []float64) *TreeNode {
	node := n
	for !node.Leaf {
		if x[node.Feature] < node.Split {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// bootstrapSample draws n row indices with replacement.
func bootstrapSample(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

// featureSubset picks k distinct feature indices.
func featureSubset(rng *rand.Rand, total, k int) []int {
	if k >= total {
		all := make([]int, total)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rng.Perm(total)[:k]
}

// allSame reports whether every value in ys is (numerically) identical.
func allSame(ys []float64) bool {
	for _, y := range ys[1:] {
		if y != ys[0] {
			return false
		}
	}
	return true
}

// mean of a non-empty slice.
func mean(ys []float64) float64 {
	var sum float64
	for _, y := range ys {
		sum += y
	}
	return sum / float64(len(ys))
}
