package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// RandomForestRegressor predicts a continuous target as the mean of an
// ensemble of CART trees grown on bootstrap samples. Exported fields
// round-trip through the JSON model artifact.
type RandomForestRegressor struct {
	NumTrees    int         `json:"num_trees"`
	MaxDepth    int         `json:"max_depth"`
	Seed        int64       `json:"seed"`
	Trees       []*TreeNode `json:"trees,omitempty"`
	Importances []float64   `json:"importances,omitempty"`

	rng *rand.Rand
}

// NewRandomForestRegressor returns an untrained forest.
func NewRandomForestRegressor(numTrees, maxDepth int, seed int64) *RandomForestRegressor {
	return &RandomForestRegressor{
		NumTrees: numTrees,
		MaxDepth: maxDepth,
		Seed:     seed,
	}
}

// Fitted reports whether the forest has trees to predict with.
func (f *RandomForestRegressor) Fitted() bool {
	return len(f.Trees) > 0
}

// Fit grows the ensemble from scratch. The generator restarts from the
// seed, so refitting on identical data rebuilds an identical forest.
func (f *RandomForestRegressor) Fit(samples [][]float64, targets []float64) error {
	if len(samples) == 0 {
		return fmt.Errorf("regressor: empty training matrix")
	}
	if len(samples) != len(targets) {
		return fmt.Errorf("regressor: %d samples but %d targets", len(samples), len(targets))
	}

	f.rng = rand.New(rand.NewSource(f.Seed))
	cols := len(samples[0])
	f.Trees = make([]*TreeNode, 0, f.NumTrees)
	f.Importances = make([]float64, cols)

	for i := 0; i < f.NumTrees; i++ {
		idx := bootstrapSample(f.rng, len(samples))
		boot := make([][]float64, len(idx))
		bootY := make([]float64, len(idx))
		for j, k := range idx {
			boot[j] = samples[k]
			bootY[j] = targets[k]
		}
		f.Trees = append(f.Trees, f.buildTree(boot, bootY, 0))
	}

	var total float64
	for _, v := range f.Importances {
		total += v
	}
	if total > 0 {
		for j := range f.Importances {
			f.Importances[j] /= total
		}
	}
	return nil
}

// Predict averages the leaf values of every tree for one sample.
func (f *RandomForestRegressor) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.walk(x).Value
	}
	return sum / float64(len(f.Trees))
}

// FeatureImportances returns the normalized split-gain totals, one per
// feature column, summing to 1 for a trained forest.
func (f *RandomForestRegressor) FeatureImportances() []float64 {
	out := make([]float64, len(f.Importances))
	copy(out, f.Importances)
	return out
}

func (f *RandomForestRegressor) buildTree(samples [][]float64, targets []float64, depth int) *TreeNode {
	if len(targets) < 2 || depth >= f.MaxDepth || allSame(targets) {
		return &TreeNode{Leaf: true, Value: mean(targets)}
	}

	feature, split, gain := f.bestSplit(samples, targets)
	if feature < 0 {
		return &TreeNode{Leaf: true, Value: mean(targets)}
	}

	var leftX, rightX [][]float64
	var leftY, rightY []float64
	for i, row := range samples {
		if row[feature] < split {
			leftX = append(leftX, row)
			leftY = append(leftY, targets[i])
		} else {
			rightX = append(rightX, row)
			rightY = append(rightY, targets[i])
		}
	}
	if len(leftY) == 0 || len(rightY) == 0 {
		return &TreeNode{Leaf: true, Value: mean(targets)}
	}

	f.Importances[feature] += gain
	return &TreeNode{
		Feature: feature,
		Split:   split,
		Left:    f.buildTree(leftX, leftY, depth+1),
		Right:   f.buildTree(rightX, rightY, depth+1),
	}
}

// bestSplit scans every feature for the threshold that most reduces the
// summed squared error. Returns feature -1 when no split improves on the
// parent.
func (f *RandomForestRegressor) bestSplit(samples [][]float64, targets []float64) (int, float64, float64) {
	n := len(targets)
	var sum, sumSq float64
	for _, v := range targets {
		sum += v
		sumSq += v * v
	}
	parentSSE := sumSq - sum*sum/float64(n)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0
	order := make([]int, n)

	for feat := 0; feat < len(samples[0]); feat++ {
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return samples[order[a]][feat] < samples[order[b]][feat]
		})

		var leftSum, leftSq float64
		for i := 0; i < n-1; i++ {
			v := targets[order[i]]
			leftSum += v
			leftSq += v * v

			lo := samples[order[i]][feat]
			hi := samples[order[i+1]][feat]
			if lo == hi {
				continue
			}

			nl := float64(i + 1)
			nr := float64(n - i - 1)
			rightSum := sum - leftSum
			rightSq := sumSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = feat
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

// RandomForestClassifier estimates class probabilities by averaging the
// leaf distributions of an ensemble of CART trees. Each split considers a
// random sqrt-sized feature subset. Exported fields round-trip through the
// JSON model artifact.
type RandomForestClassifier struct {
	NumTrees int         `json:"num_trees"`
	MaxDepth int         `json:"max_depth"`
	Seed     int64       `json:"seed"`
	Classes  []float64   `json:"classes,omitempty"`
	Trees    []*TreeNode `json:"trees,omitempty"`

	rng *rand.Rand
}

// NewRandomForestClassifier returns an untrained forest.
func NewRandomForestClassifier(numTrees, maxDepth int, seed int64) *RandomForestClassifier {
	return &RandomForestClassifier{
		NumTrees: numTrees,
		MaxDepth: maxDepth,
		Seed:     seed,
	}
}

// Fitted reports whether the forest has trees to predict with.
func (f *RandomForestClassifier) Fitted() bool {
	return len(f.Trees) > 0
}

// Fit grows the ensemble from scratch, like the regressor's Fit. Class
// labels are sorted ascending, so leaf distributions index classes in
// ascending label order.
func (f *RandomForestClassifier) Fit(samples [][]float64, labels []float64) error {
	if len(samples) == 0 {
		return fmt.Errorf("classifier: empty training matrix")
	}
	if len(samples) != len(labels) {
		return fmt.Errorf("classifier: %d samples but %d labels", len(samples), len(labels))
	}

	f.Classes = distinctSorted(labels)
	classIdx := make(map[float64]int, len(f.Classes))
	for i, c := range f.Classes {
		classIdx[c] = i
	}
	indexed := make([]int, len(labels))
	for i, y := range labels {
		indexed[i] = classIdx[y]
	}

	f.rng = rand.New(rand.NewSource(f.Seed))
	cols := len(samples[0])
	subset := int(math.Sqrt(float64(cols)))
	if subset < 1 {
		subset = 1
	}
	f.Trees = make([]*TreeNode, 0, f.NumTrees)

	for i := 0; i < f.NumTrees; i++ {
		idx := bootstrapSample(f.rng, len(samples))
		boot := make([][]float64, len(idx))
		bootY := make([]int, len(idx))
		for j, k := range idx {
			boot[j] = samples[k]
			bootY[j] = indexed[k]
		}
		f.Trees = append(f.Trees, f.buildTree(boot, bootY, subset, 0))
	}
	return nil
}

// PredictProba returns one probability per class in Classes order.
func (f *RandomForestClassifier) PredictProba(x []float64) []float64 {
	if len(f.Trees) == 0 {
		return nil
	}
	out := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		leaf := t.walk(x)
		for j, p := range leaf.Probs {
			out[j] += p
		}
	}
	for j := range out {
		out[j] /= float64(len(f.Trees))
	}
	return out
}

func (f *RandomForestClassifier) buildTree(samples [][]float64, labels []int, subset, depth int) *TreeNode {
	if len(labels) < 2 || depth >= f.MaxDepth || pure(labels) {
		return &TreeNode{Leaf: true, Probs: f.distribution(labels)}
	}

	feature, split := f.bestSplit(samples, labels, subset)
	if feature < 0 {
		return &TreeNode{Leaf: true, Probs: f.distribution(labels)}
	}

	var leftX, rightX [][]float64
	var leftY, rightY []int
	for i, row := range samples {
		if row[feature] < split {
			leftX = append(leftX, row)
			leftY = append(leftY, labels[i])
		} else {
			rightX = append(rightX, row)
			rightY = append(rightY, labels[i])
		}
	}
	if len(leftY) == 0 || len(rightY) == 0 {
		return &TreeNode{Leaf: true, Probs: f.distribution(labels)}
	}

	return &TreeNode{
		Feature: feature,
		Split:   split,
		Left:    f.buildTree(leftX, leftY, subset, depth+1),
		Right:   f.buildTree(rightX, rightY, subset, depth+1),
	}
}

// bestSplit scans a random feature subset for the threshold with the
// lowest weighted Gini impurity. Returns feature -1 when no split
// improves on the parent.
func (f *RandomForestClassifier) bestSplit(samples [][]float64, labels []int, subset int) (int, float64) {
	n := len(labels)
	parentCounts := make([]float64, len(f.Classes))
	for _, c := range labels {
		parentCounts[c]++
	}
	parent := float64(n) * gini(parentCounts, float64(n))

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 0.0
	order := make([]int, n)
	leftCounts := make([]float64, len(f.Classes))

	for _, feat := range featureSubset(f.rng, len(samples[0]), subset) {
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return samples[order[a]][feat] < samples[order[b]][feat]
		})

		for j := range leftCounts {
			leftCounts[j] = 0
		}
		for i := 0; i < n-1; i++ {
			leftCounts[labels[order[i]]]++

			lo := samples[order[i]][feat]
			hi := samples[order[i+1]][feat]
			if lo == hi {
				continue
			}

			nl := float64(i + 1)
			nr := float64(n - i - 1)
			impurityL, impurityR := 1.0, 1.0
			for j := range leftCounts {
				pl := leftCounts[j] / nl
				pr := (parentCounts[j] - leftCounts[j]) / nr
				impurityL -= pl * pl
				impurityR -= pr * pr
			}
			weighted := nl*impurityL + nr*impurityR
			if gain := parent - weighted; gain > bestGain {
				bestGain = gain
				bestFeature = feat
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	return bestFeature, bestThreshold
}

// distribution returns the class frequencies of a leaf in Classes order.
func (f *RandomForestClassifier) distribution(labels []int) []float64 {
	probs := make([]float64, len(f.Classes))
	if len(labels) == 0 {
		return probs
	}
	for _, c := range labels {
		probs[c]++
	}
	for j := range probs {
		probs[j] /= float64(len(labels))
	}
	return probs
}

// gini computes 1 - sum(p^2) over class counts.
func gini(counts []float64, total float64) float64 {
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

// pure reports whether every label is the same class.
func pure(labels []int) bool {
	for _, c := range labels[1:] {
		if c != labels[0] {
			return false
		}
	}
	return true
}

// distinctSorted returns the unique values of ys in ascending order.
func distinctSorted(ys []float64) []float64 {
	seen := make(map[float64]struct{}, 2)
	var out []float64
	for _, y := range ys {
		if _, ok := seen[y]; !ok {
			seen[y] = struct{}{}
			out = append(out, y)
		}
	}
	sort.Float64s(out)
	return out
}
