// Package monitor runs the telemetry loop: sample the host, persist the
// snapshot, and once enough history exists, attach predictions and
// suggestions and hand the result to the publisher. A retention sweep
// trims old rows on its own slower clock.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/advise"
	"github.com/hostpulse/hostpulse/internal/collector"
	"github.com/hostpulse/hostpulse/internal/db"
	"github.com/hostpulse/hostpulse/internal/metrics"
	"github.com/hostpulse/hostpulse/internal/predict"
	"github.com/hostpulse/hostpulse/internal/remedy"
)

// Publisher receives each completed tick, typically to fan out over
// WebSocket.
type Publisher interface {
	Publish(res *TickResult)
}

// TickResult is everything one loop pass produced. Prediction and
// Suggestions stay empty until the stored history reaches MinRecords.
type TickResult struct {
	System      *db.SystemRecord
	Processes   []db.ProcessRecord
	Prediction  *predict.Prediction
	Suggestions []string
	Score       int
	RecordCount int
	GeneratedAt time.Time
}

// Options tune the loop.
type Options struct {
	Interval      time.Duration // tick cadence
	ErrorBackoff  time.Duration // pause after a failed tick
	MinRecords    int           // history needed before predictions start
	TopProcesses  int
	RetentionDays int
	SweepInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 5 * time.Second
	}
	if o.MinRecords <= 0 {
		o.MinRecords = 20
	}
	if o.TopProcesses <= 0 {
		o.TopProcesses = 10
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 30
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 24 * time.Hour
	}
}

// Monitor owns the sampling loop.
type Monitor struct {
	store     db.Store
	collector collector.Collector
	predictor *predict.Predictor
	advisor   *advise.Advisor
	publisher Publisher
	opts      Options
	log       *zap.Logger

	mu   sync.RWMutex
	last *TickResult
}

// New assembles a monitor. The publisher may be nil.
func New(store db.Store, col collector.Collector, pred *predict.Predictor, adv *advise.Advisor, pub Publisher, opts Options, log *zap.Logger) *Monitor {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		store:     store,
		collector: col,
		predictor: pred,
		advisor:   adv,
		publisher: pub,
		opts:      opts,
		log:       log,
	}
}

// Latest returns the most recent tick result, nil before the first tick.
func (m *Monitor) Latest() *TickResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// SetPublisher wires the live-update sink after construction, for callers
// that build the monitor before the sink exists. Call it before Run.
func (m *Monitor) SetPublisher(pub Publisher) {
	m.mu.Lock()
	m.publisher = pub
	m.mu.Unlock()
}

// Run samples until the context is canceled. The first sample happens
// immediately; the ticker covers the rest.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor started",
		zap.Duration("interval", m.opts.Interval),
		zap.Int("min_records", m.opts.MinRecords))

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	sweep := time.NewTicker(m.opts.SweepInterval)
	defer sweep.Stop()

	if !m.runTick(ctx) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return nil
		case <-ticker.C:
			if !m.runTick(ctx) {
				return nil
			}
		case <-sweep.C:
			m.runSweep(ctx)
		}
	}
}

// runTick executes one tick with error backoff. It reports false when the
// context ended.
func (m *Monitor) runTick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if err := m.Tick(ctx); err != nil {
		m.log.Error("tick failed", zap.Error(err))
		// Back off so a broken store does not spin the loop.
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.opts.ErrorBackoff):
		}
	}
	return true
}

// Tick runs one sample pass: collect, persist, and once history is deep
// enough, predict and suggest. Run drives it on the configured cadence.
func (m *Monitor) Tick(ctx context.Context) error {
	started := time.Now()

	sys, err := m.collector.SystemSnapshot(ctx)
	if err != nil {
		// The snapshot still carries fallback values; keep the row.
		metrics.SampleErrors.WithLabelValues("collect").Inc()
		m.log.Warn("snapshot degraded", zap.Error(err))
	}
	procs, err := m.collector.TopProcesses(ctx, m.opts.TopProcesses)
	if err != nil {
		metrics.SampleErrors.WithLabelValues("collect").Inc()
		m.log.Warn("process scan failed", zap.Error(err))
		procs = nil
	}
	metrics.SampleDuration.Observe(time.Since(started).Seconds())

	if err := m.store.AppendSample(ctx, sys, procs); err != nil {
		metrics.SampleErrors.WithLabelValues("store").Inc()
		metrics.StoreWriteErrors.Inc()
		return fmt.Errorf("store sample: %w", err)
	}
	metrics.SamplesCollected.Inc()

	count, err := m.store.SystemCount(ctx)
	if err != nil {
		return fmt.Errorf("record count: %w", err)
	}

	res := &TickResult{
		System:      sys,
		Processes:   procs,
		Score:       remedy.Score(sys),
		RecordCount: int(count),
		GeneratedAt: time.Now().UTC(),
	}

	if count >= int64(m.opts.MinRecords) {
		pred, err := m.predictor.Predict(ctx)
		if err != nil {
			m.log.Warn("prediction failed", zap.Error(err))
		} else if pred != nil {
			res.Prediction = pred
			m.recordPrediction(ctx, pred)
		}
		res.Suggestions = m.advisor.Suggestions(sys, procs)
		metrics.SuggestionsGenerated.Add(float64(len(res.Suggestions)))
	}

	m.mu.Lock()
	m.last = res
	pub := m.publisher
	m.mu.Unlock()

	if pub != nil {
		pub.Publish(res)
	}
	return nil
}

// recordPrediction persists the tick's model outputs as prediction events.
func (m *Monitor) recordPrediction(ctx context.Context, pred *predict.Prediction) {
	meta := map[string]any{
		"cpu_trend":    pred.CPUTrend,
		"memory_trend": pred.MemoryTrend,
		"risk_level":   pred.RiskLevel,
	}
	if pred.TimeToSlowdownMin != nil {
		meta["time_to_slowdown_minutes"] = *pred.TimeToSlowdownMin
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		blob = []byte("{}")
	}

	if pred.FutureStress != nil {
		rec := &db.PredictionRecord{
			Timestamp: pred.GeneratedAt,
			Type:      "performance_forecast",
			Value:     *pred.FutureStress,
			Metadata:  string(blob),
		}
		if err := m.store.RecordPrediction(ctx, rec); err != nil {
			m.log.Warn("prediction not recorded", zap.Error(err))
		}
	}
	if pred.SlowdownRisk != nil {
		rec := &db.PredictionRecord{
			Timestamp:  pred.GeneratedAt,
			Type:       "slowdown_risk",
			Value:      *pred.SlowdownRisk,
			Confidence: *pred.SlowdownRisk,
			Metadata:   string(blob),
		}
		if err := m.store.RecordPrediction(ctx, rec); err != nil {
			m.log.Warn("prediction not recorded", zap.Error(err))
		}
	}
}

func (m *Monitor) runSweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -m.opts.RetentionDays)
	res, err := m.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		m.log.Error("retention sweep failed", zap.Error(err))
		return
	}
	metrics.StoreRowsPurged.WithLabelValues("system_stats").Add(float64(res.SystemRows))
	metrics.StoreRowsPurged.WithLabelValues("processes").Add(float64(res.ProcessRows))
	metrics.StoreRowsPurged.WithLabelValues("predictions").Add(float64(res.PredictionRows))
	if res.Total() > 0 {
		m.log.Info("retention sweep",
			zap.Int64("system_rows", res.SystemRows),
			zap.Int64("process_rows", res.ProcessRows),
			zap.Int64("prediction_rows", res.PredictionRows))
	}
}
