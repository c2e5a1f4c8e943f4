package ml

import (
	"math"
	"math/rand"
	"testing"
)

// regressionData builds samples whose target depends only on the first
// column: y = 2*x0 with x0 in [0, 100).
func regressionData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	samples := make([][]float64, n)
	targets := make([]float64, n)
	for i := range samples {
		x0 := rng.Float64() * 100
		samples[i] = []float64{x0, rng.Float64() * 10, rng.Float64()}
		targets[i] = 2 * x0
	}
	return samples, targets
}

// classificationData builds samples labeled 1 when the first of four
// columns exceeds 50.
func classificationData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	samples := make([][]float64, n)
	labels := make([]float64, n)
	for i := range samples {
		x0 := rng.Float64() * 100
		samples[i] = []float64{x0, rng.Float64(), rng.Float64(), rng.Float64()}
		if x0 > 50 {
			labels[i] = 1
		}
	}
	return samples, labels
}

func TestRegressorLearnsSignal(t *testing.T) {
	samples, targets := regressionData(200, 1)
	f := NewRandomForestRegressor(25, 10, 42)
	if err := f.Fit(samples, targets); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if !f.Fitted() {
		t.Fatal("forest reports unfitted after Fit")
	}

	got := f.Predict([]float64{50, 5, 0.5})
	if math.Abs(got-100) > 15 {
		t.Fatalf("predict(x0=50) = %v, want near 100", got)
	}
	got = f.Predict([]float64{90, 5, 0.5})
	if math.Abs(got-180) > 20 {
		t.Fatalf("predict(x0=90) = %v, want near 180", got)
	}
}

func TestRegressorImportancesFavorSignal(t *testing.T) {
	samples, targets := regressionData(200, 2)
	f := NewRandomForestRegressor(25, 10, 42)
	if err := f.Fit(samples, targets); err != nil {
		t.Fatalf("fit: %v", err)
	}

	imp := f.FeatureImportances()
	if len(imp) != 3 {
		t.Fatalf("got %d importances, want 3", len(imp))
	}
	var sum float64
	for _, v := range imp {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("importances sum to %v, want 1", sum)
	}
	if imp[0] < 0.5 {
		t.Fatalf("signal column importance = %v, want the dominant share", imp[0])
	}
}

func TestRegressorSeededDeterminism(t *testing.T) {
	samples, targets := regressionData(150, 3)
	probes := [][]float64{{10, 1, 0.1}, {42, 3, 0.9}, {77, 8, 0.4}}

	a := NewRandomForestRegressor(20, 8, 42)
	b := NewRandomForestRegressor(20, 8, 42)
	if err := a.Fit(samples, targets); err != nil {
		t.Fatalf("fit a: %v", err)
	}
	if err := b.Fit(samples, targets); err != nil {
		t.Fatalf("fit b: %v", err)
	}
	first := make([]float64, len(probes))
	for i, p := range probes {
		first[i] = a.Predict(p)
		if got := b.Predict(p); got != first[i] {
			t.Fatalf("probe %d: forests with equal seeds diverge: %v vs %v", i, first[i], got)
		}
	}

	// Refitting restarts the generator, so the same instance rebuilds the
	// same forest.
	if err := a.Fit(samples, targets); err != nil {
		t.Fatalf("refit: %v", err)
	}
	for i, p := range probes {
		if got := a.Predict(p); got != first[i] {
			t.Fatalf("probe %d: refit diverged: %v vs %v", i, got, first[i])
		}
	}
}

func TestRegressorConstantTarget(t *testing.T) {
	samples := [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	targets := []float64{9, 9, 9, 9}
	f := NewRandomForestRegressor(10, 5, 42)
	if err := f.Fit(samples, targets); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if got := f.Predict([]float64{2, 3}); got != 9 {
		t.Fatalf("constant-target predict = %v, want 9", got)
	}
}

func TestUnfittedForestsReturnZero(t *testing.T) {
	r := NewRandomForestRegressor(10, 5, 42)
	if got := r.Predict([]float64{1}); got != 0 {
		t.Fatalf("unfitted regressor predict = %v, want 0", got)
	}
	c := NewRandomForestClassifier(10, 5, 42)
	if got := c.PredictProba([]float64{1}); got != nil {
		t.Fatalf("unfitted classifier proba = %v, want nil", got)
	}
}

func TestClassifierSeparatesClasses(t *testing.T) {
	samples, labels := classificationData(300, 4)
	f := NewRandomForestClassifier(30, 10, 42)
	if err := f.Fit(samples, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}

	if len(f.Classes) != 2 || f.Classes[0] != 0 || f.Classes[1] != 1 {
		t.Fatalf("classes = %v, want [0 1]", f.Classes)
	}

	hot := f.PredictProba([]float64{95, 0.5, 0.5, 0.5})
	if hot[1] < 0.7 {
		t.Fatalf("P(slow | x0=95) = %v, want > 0.7", hot[1])
	}
	cool := f.PredictProba([]float64{5, 0.5, 0.5, 0.5})
	if cool[1] > 0.3 {
		t.Fatalf("P(slow | x0=5) = %v, want < 0.3", cool[1])
	}
	if math.Abs(hot[0]+hot[1]-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v, want 1", hot[0]+hot[1])
	}
}

func TestClassifierSeededDeterminism(t *testing.T) {
	samples, labels := classificationData(200, 5)
	probe := []float64{60, 0.2, 0.8, 0.5}

	a := NewRandomForestClassifier(20, 8, 42)
	b := NewRandomForestClassifier(20, 8, 42)
	if err := a.Fit(samples, labels); err != nil {
		t.Fatalf("fit a: %v", err)
	}
	if err := b.Fit(samples, labels); err != nil {
		t.Fatalf("fit b: %v", err)
	}

	pa, pb := a.PredictProba(probe), b.PredictProba(probe)
	if pa[0] != pb[0] || pa[1] != pb[1] {
		t.Fatalf("forests with equal seeds diverge: %v vs %v", pa, pb)
	}
}

func TestClassifierSingleClass(t *testing.T) {
	samples := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	labels := []float64{0, 0, 0}
	f := NewRandomForestClassifier(5, 4, 42)
	if err := f.Fit(samples, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}
	proba := f.PredictProba([]float64{2, 3})
	if len(proba) != 1 || proba[0] != 1 {
		t.Fatalf("single-class proba = %v, want [1]", proba)
	}
}
