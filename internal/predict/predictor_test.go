package predict

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/db"
	"github.com/hostpulse/hostpulse/internal/ml"
)

func newTestPredictor(t *testing.T) (*Predictor, db.Store) {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:", db.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	models := ml.NewManager(ml.Options{
		Dir:            t.TempDir(),
		Trees:          15,
		MaxDepth:       6,
		Seed:           42,
		RetrainCadence: 20,
	}, zap.NewNop())
	return New(store, models, Options{}, nil, zap.NewNop()), store
}

func seedSnapshot(t *testing.T, store db.Store, ts time.Time, cpu, mem, disk float64) {
	t.Helper()
	rec := &db.SystemRecord{
		Timestamp:        ts,
		CPUPercent:       cpu,
		MemoryPercent:    mem,
		MemoryUsedGB:     mem * 16 / 100,
		MemoryTotalGB:    16,
		DiskPercent:      disk,
		DiskUsedGB:       disk * 4,
		DiskTotalGB:      400,
		NetworkBytesSent: 1000,
		NetworkBytesRecv: 2000,
		UptimeHours:      12,
		CPUCount:         8,
		CPUFreqMHz:       2400,
	}
	if err := store.AppendSample(context.Background(), rec, nil); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func TestPredictWithoutDataReturnsNothing(t *testing.T) {
	p, _ := newTestPredictor(t)
	pred, err := p.Predict(context.Background())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred != nil {
		t.Fatalf("got a prediction from an empty store: %+v", pred)
	}
	if p.Trained() {
		t.Fatal("predictor reports trained with no data")
	}
}

func TestPredictShortHistorySkipsTraining(t *testing.T) {
	p, store := newTestPredictor(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), 30, 50, 40)
	}

	pred, err := p.Predict(context.Background())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred != nil || p.Trained() {
		t.Fatal("three snapshots should not be enough to train")
	}
}

func TestTrainInsufficientDataSentinel(t *testing.T) {
	p, store := newTestPredictor(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), 30, 50, 40)
	}

	_, err := p.Train(context.Background())
	if !errors.Is(err, ml.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestPredictRampSignalsRisk(t *testing.T) {
	p, store := newTestPredictor(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 25; i++ {
		cpu := 40 + float64(i)*2.3
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), cpu, 50, 50)
	}

	pred, err := p.Predict(context.Background())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred == nil {
		t.Fatal("expected a prediction after a trainable ramp")
	}
	if !p.Trained() {
		t.Fatal("predict did not train on first call")
	}

	if pred.FutureStress == nil {
		t.Fatal("no stress forecast from the regressor")
	}
	if pred.SlowdownRisk == nil || *pred.SlowdownRisk <= 0.5 {
		t.Fatalf("slowdown risk = %v, want > 0.5 at the top of a ramp", pred.SlowdownRisk)
	}
	if pred.RiskLevel == "low" {
		t.Fatalf("risk level = %q with risk %v", pred.RiskLevel, *pred.SlowdownRisk)
	}
	if pred.CPUTrend != "increasing" {
		t.Fatalf("cpu trend = %q, want increasing", pred.CPUTrend)
	}
	if pred.TimeToSlowdownMin == nil {
		t.Fatal("no slowdown estimate despite high risk and rising stress")
	}
	if *pred.TimeToSlowdownMin < 1 || *pred.TimeToSlowdownMin > 120 {
		t.Fatalf("time to slowdown = %d minutes, out of plausible range", *pred.TimeToSlowdownMin)
	}
}

func TestPredictRampRiskGrowsWithHistory(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:", db.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Cadence 1 retrains on every call, so the second prediction sees a
	// model fit on the full ramp.
	models := ml.NewManager(ml.Options{
		Dir:            t.TempDir(),
		Trees:          15,
		MaxDepth:       6,
		Seed:           42,
		RetrainCadence: 1,
	}, zap.NewNop())
	p := New(store, models, Options{}, nil, zap.NewNop())

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	ramp := func(i int) float64 { return 40 + float64(i)*2.3 }
	for i := 0; i < 10; i++ {
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), ramp(i), 50, 50)
	}

	early, err := p.Predict(context.Background())
	if err != nil {
		t.Fatalf("early predict: %v", err)
	}
	if early == nil {
		t.Fatal("expected a prediction once the training floor is met")
	}
	// The bottom of the ramp never crosses a slowdown cutoff, so the risk
	// label is degenerate and the classifier is skipped.
	if early.SlowdownRisk != nil {
		t.Fatalf("early slowdown risk = %v, want none from a degenerate label", *early.SlowdownRisk)
	}

	for i := 10; i < 25; i++ {
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), ramp(i), 50, 50)
	}

	late, err := p.Predict(context.Background())
	if err != nil {
		t.Fatalf("late predict: %v", err)
	}
	if late == nil || late.SlowdownRisk == nil {
		t.Fatal("expected a slowdown risk once the ramp crosses the label cutoffs")
	}
	if *late.SlowdownRisk <= 0 {
		t.Fatalf("late slowdown risk = %v, want above the early zero", *late.SlowdownRisk)
	}
}

func TestPredictFlatStressFallsBackToHour(t *testing.T) {
	p, store := newTestPredictor(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 15; i++ {
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), 30, 50, 40)
	}
	for i := 15; i < 30; i++ {
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), 95, 50, 40)
	}

	pred, err := p.Predict(context.Background())
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred == nil {
		t.Fatal("expected a prediction")
	}
	if pred.SlowdownRisk == nil || *pred.SlowdownRisk <= 0.5 {
		t.Fatalf("slowdown risk = %v, want > 0.5 on a saturated host", pred.SlowdownRisk)
	}
	if pred.CPUTrend != "stable" {
		t.Fatalf("cpu trend = %q on a flat window, want stable", pred.CPUTrend)
	}
	if pred.TimeToSlowdownMin == nil || *pred.TimeToSlowdownMin != 60 {
		t.Fatalf("time to slowdown = %v, want the 60 minute fallback for flat stress", pred.TimeToSlowdownMin)
	}
}

func TestFeatureImportanceSortedAndNormalized(t *testing.T) {
	p, store := newTestPredictor(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 25; i++ {
		seedSnapshot(t, store, base.Add(time.Duration(i)*2*time.Second), 40+float64(i)*2.3, 50, 50)
	}
	if _, err := p.Train(context.Background()); err != nil {
		t.Fatalf("train: %v", err)
	}

	entries := p.FeatureImportance()
	if len(entries) != 20 {
		t.Fatalf("got %d importance entries, want 20", len(entries))
	}
	var sum float64
	for i, e := range entries {
		if e.Feature == "" {
			t.Fatalf("entry %d has no feature name", i)
		}
		if i > 0 && e.Weight > entries[i-1].Weight {
			t.Fatalf("entries not sorted: %v after %v", e.Weight, entries[i-1].Weight)
		}
		sum += e.Weight
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("importances sum to %v, want 1", sum)
	}
}

func TestFeatureImportanceBeforeTraining(t *testing.T) {
	p, _ := newTestPredictor(t)
	if got := p.FeatureImportance(); got != nil {
		t.Fatalf("expected nil importance before training, got %v", got)
	}
}
