package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInsufficientData marks a training run skipped because the history is
// still too short. Callers treat it as a routine outcome, not a failure.
var ErrInsufficientData = errors.New("insufficient training data")

// Artifact file names inside the model directory.
const (
	performanceModelFile   = "performance_model.json"
	slowdownClassifierFile = "slowdown_classifier.json"
	scalerFile             = "scaler.json"
)

// Options shape the forests and the retrain cadence.
type Options struct {
	Dir            string
	Trees          int
	MaxDepth       int
	Seed           int64
	RetrainCadence int // retrain every Nth ShouldRetrain call
}

func (o *Options) withDefaults() {
	if o.Dir == "" {
		o.Dir = "models"
	}
	if o.Trees <= 0 {
		o.Trees = 50
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 10
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	if o.RetrainCadence <= 0 {
		o.RetrainCadence = 20
	}
}

// ModelSet is one immutable generation of trained models. Training builds
// a complete new set and swaps it in atomically, so readers never observe
// a half-updated generation.
type ModelSet struct {
	Performance *RandomForestRegressor
	Slowdown    *RandomForestClassifier
	Scaler      *StandardScaler

	RunID     string
	TrainedAt time.Time
	Samples   int
}

// TrainOutcome summarizes one completed training run. A model counts as
// trained only when its target had more than one distinct value; a run
// with both models skipped still succeeds and still refits the scaler.
type TrainOutcome struct {
	RunID             string
	Samples           int
	RegressorTrained  bool
	ClassifierTrained bool
	Duration          time.Duration
}

// Manager owns the model lifecycle: training runs, artifact persistence,
// the active generation, and the retrain cadence.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex // serializes Train and artifact writes
	active atomic.Pointer[ModelSet]
	calls  atomic.Int64
}

// NewManager returns a manager with no active generation. Call Load to
// restore saved artifacts.
func NewManager(opts Options, log *zap.Logger) *Manager {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{opts: opts, log: log}
}

// Active returns the current generation, or nil before the first
// successful Train or Load.
func (m *Manager) Active() *ModelSet {
	return m.active.Load()
}

// Trained reports whether a generation is live.
func (m *Manager) Trained() bool {
	return m.active.Load() != nil
}

// ShouldRetrain counts a prediction call and reports whether it should be
// preceded by a training run: always while nothing is trained, afterwards
// on every RetrainCadence-th call.
func (m *Manager) ShouldRetrain() bool {
	n := m.calls.Add(1)
	if m.active.Load() == nil {
		return true
	}
	return n%int64(m.opts.RetrainCadence) == 0
}

// Train fits a new generation from standardization through both forests
// and swaps it in. The scaler is refit on every run. A forest whose target
// is degenerate (a single distinct value) is skipped; the previous
// generation's forest, if any, is carried forward so predictions keep
// working. An empty runID gets a fresh one.
func (m *Manager) Train(runID string, samples [][]float64, stressTargets, riskLabels []float64) (*TrainOutcome, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no clean samples", ErrInsufficientData)
	}
	if len(samples) != len(stressTargets) || len(samples) != len(riskLabels) {
		return nil, fmt.Errorf("train: %d samples, %d stress targets, %d risk labels",
			len(samples), len(stressTargets), len(riskLabels))
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	outcome := &TrainOutcome{RunID: runID, Samples: len(samples)}

	scaler := NewStandardScaler()
	scaled, err := scaler.FitTransform(samples)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	prev := m.active.Load()
	next := &ModelSet{
		Scaler:    scaler,
		RunID:     outcome.RunID,
		TrainedAt: start.UTC(),
		Samples:   len(samples),
	}

	if len(distinctSorted(stressTargets)) > 1 {
		reg := NewRandomForestRegressor(m.opts.Trees, m.opts.MaxDepth, m.opts.Seed)
		if err := reg.Fit(scaled, stressTargets); err != nil {
			return nil, fmt.Errorf("train: %w", err)
		}
		next.Performance = reg
		outcome.RegressorTrained = true
	} else if prev != nil {
		next.Performance = prev.Performance
	}

	if len(distinctSorted(riskLabels)) > 1 {
		clf := NewRandomForestClassifier(m.opts.Trees, m.opts.MaxDepth, m.opts.Seed)
		if err := clf.Fit(scaled, riskLabels); err != nil {
			return nil, fmt.Errorf("train: %w", err)
		}
		next.Slowdown = clf
		outcome.ClassifierTrained = true
	} else if prev != nil {
		next.Slowdown = prev.Slowdown
	}

	// A failed artifact write costs persistence across restarts, not the
	// freshly trained generation.
	if err := m.save(next); err != nil {
		m.log.Warn("model artifacts not saved", zap.Error(err))
	}

	m.active.Store(next)
	outcome.Duration = time.Since(start)
	m.log.Info("training run complete",
		zap.String("run_id", outcome.RunID),
		zap.Int("samples", outcome.Samples),
		zap.Bool("regressor", outcome.RegressorTrained),
		zap.Bool("classifier", outcome.ClassifierTrained),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}

// Load restores the last saved artifacts and activates them. A missing
// directory or missing model files mean the manager starts untrained;
// that is not an error. Corrupt artifacts are.
func (m *Manager) Load() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := &ModelSet{Scaler: NewStandardScaler(), TrainedAt: time.Now().UTC()}

	var reg RandomForestRegressor
	okReg, err := m.readArtifact(performanceModelFile, &reg)
	if err != nil {
		return false, err
	}
	if okReg {
		set.Performance = &reg
	}

	var clf RandomForestClassifier
	okClf, err := m.readArtifact(slowdownClassifierFile, &clf)
	if err != nil {
		return false, err
	}
	if okClf {
		set.Slowdown = &clf
	}

	var scaler StandardScaler
	okScaler, err := m.readArtifact(scalerFile, &scaler)
	if err != nil {
		return false, err
	}
	if okScaler {
		set.Scaler = &scaler
	}

	if !okReg && !okClf {
		return false, nil
	}
	m.active.Store(set)
	m.log.Info("model artifacts loaded",
		zap.Bool("regressor", okReg),
		zap.Bool("classifier", okClf),
		zap.Bool("scaler", okScaler))
	return true, nil
}

func (m *Manager) save(set *ModelSet) error {
	if err := os.MkdirAll(m.opts.Dir, 0o755); err != nil {
		return err
	}
	if set.Performance != nil {
		if err := m.writeArtifact(performanceModelFile, set.Performance); err != nil {
			return err
		}
	}
	if set.Slowdown != nil {
		if err := m.writeArtifact(slowdownClassifierFile, set.Slowdown); err != nil {
			return err
		}
	}
	return m.writeArtifact(scalerFile, set.Scaler)
}

// writeArtifact replaces the artifact atomically via a temp file rename.
func (m *Manager) writeArtifact(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(m.opts.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// readArtifact reports whether the file existed; decode errors surface.
func (m *Manager) readArtifact(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(m.opts.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}
