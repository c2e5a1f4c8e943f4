// Package predict turns stored telemetry into slowdown forecasts. The
// predictor owns the training pipeline (history, features, targets) and
// the evaluation of the active models against the latest window.
package predict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/audit"
	"github.com/hostpulse/hostpulse/internal/db"
	"github.com/hostpulse/hostpulse/internal/features"
	"github.com/hostpulse/hostpulse/internal/metrics"
	"github.com/hostpulse/hostpulse/internal/ml"
)

// Options tune the prediction pipeline.
type Options struct {
	RecentWindow     int // snapshots evaluated per prediction
	HistoryDays      int // training lookback
	MinTrainRows     int // raw snapshots required to attempt training
	MinCleanRows     int // feature/target pairs required after alignment
	CriticalStress   float64
	Thresholds       features.Thresholds
	TargetThresholds features.TargetThresholds
}

func (o *Options) withDefaults() {
	if o.RecentWindow <= 0 {
		o.RecentWindow = 10
	}
	if o.HistoryDays <= 0 {
		o.HistoryDays = 7
	}
	if o.MinTrainRows <= 0 {
		o.MinTrainRows = 10
	}
	if o.MinCleanRows <= 0 {
		o.MinCleanRows = 5
	}
	if o.CriticalStress <= 0 {
		o.CriticalStress = 90
	}
	if o.Thresholds == (features.Thresholds{}) {
		o.Thresholds = features.DefaultThresholds()
	}
	if o.TargetThresholds == (features.TargetThresholds{}) {
		o.TargetThresholds = features.DefaultTargetThresholds()
	}
}

// Prediction is one forecast for the latest telemetry window. FutureStress
// and SlowdownRisk are nil when the corresponding model is not live;
// TimeToSlowdownMin is nil unless the risk is high and the host is under
// measurable stress.
type Prediction struct {
	GeneratedAt       time.Time
	FutureStress      *float64
	SlowdownRisk      *float64
	RiskLevel         string // "high", "medium" or "low"
	CPUTrend          string // "increasing", "decreasing" or "stable"
	MemoryTrend       string
	TimeToSlowdownMin *int
}

// ImportanceEntry pairs a feature name with its trained weight.
type ImportanceEntry struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Predictor evaluates stored telemetry against the active model set and
// refreshes that set on the manager's cadence.
type Predictor struct {
	store  db.SnapshotStore
	models *ml.Manager
	opts   Options
	aud    audit.Logger
	log    *zap.Logger
}

// New returns a predictor over the given store and model manager. The
// audit logger may be nil.
func New(store db.SnapshotStore, models *ml.Manager, opts Options, aud audit.Logger, log *zap.Logger) *Predictor {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Predictor{store: store, models: models, opts: opts, aud: aud, log: log}
}

// Trained reports whether a model generation is live.
func (p *Predictor) Trained() bool {
	return p.models.Trained()
}

// Train refreshes the models from stored history. The returned error wraps
// ml.ErrInsufficientData while the history is still too short; callers
// treat that as a routine skip.
func (p *Predictor) Train(ctx context.Context) (*ml.TrainOutcome, error) {
	runID := uuid.NewString()
	if p.aud != nil {
		p.aud.LogTrainingStarted(ctx, runID)
	}
	outcome, err := p.train(ctx, runID)
	switch {
	case errors.Is(err, ml.ErrInsufficientData):
		metrics.TrainingRuns.WithLabelValues("insufficient_data").Inc()
		if p.aud != nil {
			p.aud.LogTrainingSkipped(ctx, runID, err.Error())
		}
	case err != nil:
		metrics.TrainingRuns.WithLabelValues("failed").Inc()
		if p.aud != nil {
			p.aud.LogTrainingFailed(ctx, runID, err)
		}
	default:
		metrics.TrainingRuns.WithLabelValues("success").Inc()
		metrics.TrainingDuration.Observe(outcome.Duration.Seconds())
		if p.aud != nil {
			p.aud.LogTrainingCompleted(ctx, runID, outcome.Samples, outcome.Duration)
		}
	}
	return outcome, err
}

func (p *Predictor) train(ctx context.Context, runID string) (*ml.TrainOutcome, error) {
	cutoff := time.Now().AddDate(0, 0, -p.opts.HistoryDays)
	rows, err := p.store.SystemSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("training history: %w", err)
	}
	if len(rows) < p.opts.MinTrainRows {
		return nil, fmt.Errorf("%w: %d snapshots, need %d",
			ml.ErrInsufficientData, len(rows), p.opts.MinTrainRows)
	}

	feats := features.Build(rows, p.opts.Thresholds)
	targets := features.Targets(rows, p.opts.TargetThresholds)
	if len(targets) < p.opts.MinCleanRows {
		return nil, fmt.Errorf("%w: %d aligned rows, need %d",
			ml.ErrInsufficientData, len(targets), p.opts.MinCleanRows)
	}

	// The last snapshot has no successor; targets align with the rows
	// before it.
	samples := features.Matrix(feats[:len(targets)])
	stress := make([]float64, len(targets))
	risk := make([]float64, len(targets))
	for i, tgt := range targets {
		stress[i] = tgt.FutureStress
		risk[i] = tgt.SlowdownRisk
	}
	return p.models.Train(runID, samples, stress, risk)
}

// Predict evaluates the active models against the most recent window,
// retraining first when the cadence calls for it. A nil prediction with a
// nil error means there is nothing to predict yet: no snapshots stored,
// or no trained generation.
func (p *Predictor) Predict(ctx context.Context) (*Prediction, error) {
	start := time.Now()
	if p.models.ShouldRetrain() {
		if _, err := p.Train(ctx); err != nil {
			if errors.Is(err, ml.ErrInsufficientData) {
				p.log.Debug("training skipped", zap.Error(err))
			} else {
				p.log.Warn("training failed", zap.Error(err))
			}
		}
	}

	set := p.models.Active()
	if set == nil {
		metrics.PredictionsTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	rows, err := p.store.RecentSystem(ctx, p.opts.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("recent window: %w", err)
	}
	if len(rows) == 0 {
		metrics.PredictionsTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	feats := features.Build(rows, p.opts.Thresholds)
	latest := feats[len(feats)-1]

	scaled, err := set.Scaler.Transform([][]float64{latest.Vector()})
	if err != nil {
		return nil, fmt.Errorf("standardize window: %w", err)
	}
	x := scaled[0]

	pred := &Prediction{
		GeneratedAt: time.Now().UTC(),
		CPUTrend:    "stable",
		MemoryTrend: "stable",
	}

	if set.Performance != nil {
		v := set.Performance.Predict(x)
		pred.FutureStress = &v
	}

	var risk float64
	if set.Slowdown != nil {
		proba := set.Slowdown.PredictProba(x)
		if len(proba) > 1 {
			risk = proba[1]
		}
		pred.SlowdownRisk = &risk
	}
	pred.RiskLevel = riskLevel(risk)

	if len(feats) >= 3 {
		pred.CPUTrend = trendLabel(recentTrend(feats, func(r features.Row) float64 { return r.CPUPercent }))
		pred.MemoryTrend = trendLabel(recentTrend(feats, func(r features.Row) float64 { return r.MemoryPercent }))
	}

	if risk > 0.5 && latest.SystemStress > 0 {
		mins := p.timeToSlowdown(feats, latest.SystemStress)
		pred.TimeToSlowdownMin = &mins
	}

	elapsed := time.Since(start)
	metrics.PredictionsTotal.WithLabelValues("made").Inc()
	metrics.PredictionDuration.Observe(elapsed.Seconds())
	metrics.SlowdownRisk.Set(risk)
	metrics.SystemStress.Set(latest.SystemStress)
	if p.aud != nil {
		p.aud.LogPredictionMade(ctx, risk, elapsed)
	}
	return pred, nil
}

// FeatureImportance lists the trained regressor's feature weights, heaviest
// first. Nil while no regressor is live.
func (p *Predictor) FeatureImportance() []ImportanceEntry {
	set := p.models.Active()
	if set == nil || set.Performance == nil {
		return nil
	}
	weights := set.Performance.FeatureImportances()
	out := make([]ImportanceEntry, 0, len(weights))
	for i, w := range weights {
		if i >= len(features.Columns) {
			break
		}
		out = append(out, ImportanceEntry{Feature: features.Columns[i], Weight: w})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Weight > out[b].Weight })
	return out
}

// recentTrend averages the deltas between the last three window values.
func recentTrend(feats []features.Row, value func(features.Row) float64) float64 {
	n := len(feats)
	a := value(feats[n-3])
	b := value(feats[n-2])
	c := value(feats[n-1])
	return ((b - a) + (c - b)) / 2
}

func trendLabel(delta float64) string {
	switch {
	case delta > 1:
		return "increasing"
	case delta < -1:
		return "decreasing"
	default:
		return "stable"
	}
}

func riskLevel(risk float64) string {
	switch {
	case risk > 0.7:
		return "high"
	case risk > 0.4:
		return "medium"
	default:
		return "low"
	}
}

// timeToSlowdown extrapolates minutes until stress reaches the critical
// level, from the mean of the last three stress deltas. A flat or falling
// stress curve returns the 60 minute fallback.
func (p *Predictor) timeToSlowdown(feats []features.Row, stress float64) int {
	var deltas []float64
	for i := 1; i < len(feats); i++ {
		deltas = append(deltas, feats[i].SystemStress-feats[i-1].SystemStress)
	}
	if len(deltas) > 3 {
		deltas = deltas[len(deltas)-3:]
	}
	if len(deltas) == 0 {
		return 60
	}

	var rate float64
	for _, d := range deltas {
		rate += d
	}
	rate /= float64(len(deltas))
	if rate <= 0 {
		return 60
	}

	mins := int((p.opts.CriticalStress - stress) / rate * 2)
	if mins < 1 {
		mins = 1
	}
	return mins
}
