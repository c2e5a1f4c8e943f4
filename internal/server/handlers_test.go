package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/advise"
	"github.com/hostpulse/hostpulse/internal/collector"
	"github.com/hostpulse/hostpulse/internal/db"
	"github.com/hostpulse/hostpulse/internal/export"
	"github.com/hostpulse/hostpulse/internal/ml"
	"github.com/hostpulse/hostpulse/internal/monitor"
	"github.com/hostpulse/hostpulse/internal/predict"
	"github.com/hostpulse/hostpulse/internal/remedy"
	"github.com/hostpulse/hostpulse/pkg/types"
)

// rampCollector feeds a rising CPU series so predictions activate after
// a few ticks.
type rampCollector struct {
	mu    sync.Mutex
	calls int
}

func (f *rampCollector) SystemSnapshot(ctx context.Context) (*db.SystemRecord, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	cpu := 40 + float64(n)*3
	if cpu > 98 {
		cpu = 98
	}
	return &db.SystemRecord{
		Timestamp:     time.Now().UTC().Add(time.Duration(n) * time.Second),
		CPUPercent:    cpu,
		MemoryPercent: 58,
		MemoryUsedGB:  9.3,
		MemoryTotalGB: 16,
		DiskPercent:   64,
		DiskUsedGB:    320,
		DiskTotalGB:   500,
		UptimeHours:   12,
		CPUCount:      8,
		CPUFreqMHz:    2800,
	}, nil
}

func (f *rampCollector) TopProcesses(ctx context.Context, limit int) ([]db.ProcessRecord, error) {
	return []db.ProcessRecord{
		{PID: 4411, Name: "chrome", CPUPercent: 24, MemoryPercent: 8, MemoryMB: 1310},
	}, nil
}

func (f *rampCollector) LoadAverages(ctx context.Context) collector.LoadInfo {
	return collector.LoadInfo{}
}

func (f *rampCollector) Temperatures(ctx context.Context) collector.TempInfo {
	return collector.TempInfo{}
}

type testEnv struct {
	srv *Server
	mon *monitor.Monitor
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := db.NewSQLiteStore(":memory:", db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	models := ml.NewManager(ml.Options{
		Dir:            t.TempDir(),
		Trees:          12,
		MaxDepth:       6,
		Seed:           42,
		RetrainCadence: 3,
	}, zap.NewNop())
	pred := predict.New(store, models, predict.Options{
		MinTrainRows: 5,
		MinCleanRows: 2,
	}, nil, zap.NewNop())

	mon := monitor.New(store, &rampCollector{}, pred,
		advise.New(advise.Options{Platform: "linux"}), nil,
		monitor.Options{Interval: time.Hour, MinRecords: 5}, zap.NewNop())

	srv, err := New(Deps{
		Store:      store,
		Monitor:    mon,
		Remediator: remedy.New(remedy.Options{}, nil), // disabled
		Exporter:   export.New(store),
	}, Options{
		ExportDir:        t.TempDir(),
		ActionsPerMinute: 100,
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.hub.closeAll(); srv.limiter.Stop() })

	mux := http.NewServeMux()
	srv.registerHandlers(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, mon: mon, ts: ts}
}

func (e *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) post(t *testing.T, path string, body []byte, out any) int {
	t.Helper()
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.mon.Tick(context.Background()))
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]any
	code := env.get(t, "/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleReadyBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]any
	code := env.get(t, "/ready", &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body["status"])
}

func TestHandleReadyWhenRunning(t *testing.T) {
	env := newTestEnv(t)
	env.srv.mu.Lock()
	env.srv.running = true
	env.srv.mu.Unlock()

	var body map[string]any
	code := env.get(t, "/ready", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])
}

func TestHandleStatsBeforeFirstTick(t *testing.T) {
	env := newTestEnv(t)

	var e types.ErrorResponse
	code := env.get(t, "/api/v1/stats", &e)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotEmpty(t, e.Error)
}

func TestHandleStatsAfterTick(t *testing.T) {
	env := newTestEnv(t)
	env.tick(t, 1)

	var resp types.StatsResponse
	code := env.get(t, "/api/v1/stats", &resp)
	require.Equal(t, http.StatusOK, code)

	require.NotNil(t, resp.System)
	assert.InDelta(t, 43, resp.System.CPUPercent, 0.01)
	assert.Equal(t, 1, resp.RecordCount)
	assert.Len(t, resp.Processes, 1)
	assert.Equal(t, "chrome", resp.Processes[0].Name)
	assert.Greater(t, resp.HealthScore, 0)
	assert.LessOrEqual(t, resp.HealthScore, 100)
}

func TestHandleStatsRejectsPost(t *testing.T) {
	env := newTestEnv(t)
	code := env.post(t, "/api/v1/stats", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestHandleHistory(t *testing.T) {
	env := newTestEnv(t)
	env.tick(t, 4)

	var resp types.HistoryResponse
	code := env.get(t, "/api/v1/history?limit=2", &resp)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, resp.Count)
	// Newest window, ascending order.
	assert.True(t, resp.Items[0].Timestamp.Before(resp.Items[1].Timestamp))
	assert.InDelta(t, 52, resp.Items[1].CPUPercent, 0.01)
}

func TestHandleHistoryInvalidLimit(t *testing.T) {
	env := newTestEnv(t)
	code := env.get(t, "/api/v1/history?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.get(t, "/api/v1/history?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandlePredictionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var resp types.PredictionResponse
	code := env.get(t, "/api/v1/prediction", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Available)
	assert.NotEmpty(t, resp.Reason)

	env.tick(t, 12)

	resp = types.PredictionResponse{}
	code = env.get(t, "/api/v1/prediction", &resp)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Available)
	require.NotNil(t, resp.Prediction)
	assert.NotNil(t, resp.Prediction.FutureStress)
	assert.Contains(t, []string{"low", "medium", "high"}, resp.Prediction.RiskLevel)
	assert.Equal(t, "increasing", resp.Prediction.CPUTrend)
}

func TestHandleSuggestions(t *testing.T) {
	env := newTestEnv(t)

	var resp types.SuggestionsResponse
	code := env.get(t, "/api/v1/suggestions", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Suggestions)

	env.tick(t, 6)

	resp = types.SuggestionsResponse{}
	code = env.get(t, "/api/v1/suggestions", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Greater(t, resp.Count, 0)
	assert.Equal(t, len(resp.Suggestions), resp.Count)
}

func TestHandleDBStats(t *testing.T) {
	env := newTestEnv(t)
	env.tick(t, 3)

	var stats db.StoreStats
	code := env.get(t, "/api/v1/db/stats", &stats)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(3), stats.SystemRows)
	assert.Equal(t, int64(3), stats.ProcessRows)
}

func TestHandleExport(t *testing.T) {
	env := newTestEnv(t)
	env.tick(t, 3)

	var resp types.ExportResponse
	code := env.post(t, "/api/v1/export", nil, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, resp.SystemRows)
	assert.Equal(t, 3, resp.ProcessRows)

	for _, f := range []string{resp.SystemFile, resp.ProcessFile, resp.PredictionFile} {
		if _, err := os.Stat(f); err != nil {
			t.Fatalf("exported file missing: %v", err)
		}
	}
}

func TestHandleExportRejectsGet(t *testing.T) {
	env := newTestEnv(t)
	code := env.get(t, "/api/v1/export", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestHandleKillValidation(t *testing.T) {
	env := newTestEnv(t)

	code := env.post(t, "/api/v1/actions/kill", []byte("not json"), nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.post(t, "/api/v1/actions/kill", []byte(`{"pid":0}`), nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandleKillRefusedWhileDisabled(t *testing.T) {
	env := newTestEnv(t)

	var resp types.KillProcessResponse
	code := env.post(t, "/api/v1/actions/kill", []byte(`{"pid":99999}`), &resp)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "refused", resp.Status)
}

func TestHandleOptimizeRefusedWhileDisabled(t *testing.T) {
	env := newTestEnv(t)

	var resp types.ErrorResponse
	code := env.post(t, "/api/v1/actions/optimize", nil, &resp)
	assert.Equal(t, http.StatusForbidden, code)
	assert.NotEmpty(t, resp.Error)
}

func TestActionRateLimiting(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:", db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	models := ml.NewManager(ml.Options{Dir: t.TempDir()}, zap.NewNop())
	pred := predict.New(store, models, predict.Options{}, nil, zap.NewNop())
	mon := monitor.New(store, &rampCollector{}, pred,
		advise.New(advise.Options{Platform: "linux"}), nil,
		monitor.Options{Interval: time.Hour}, zap.NewNop())

	srv, err := New(Deps{
		Store:      store,
		Monitor:    mon,
		Remediator: remedy.New(remedy.Options{}, nil),
	}, Options{ActionsPerMinute: 2})
	require.NoError(t, err)
	t.Cleanup(func() { srv.limiter.Stop() })

	mux := http.NewServeMux()
	srv.registerHandlers(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/api/v1/actions/optimize", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	// Disabled remediation answers 403 until the bucket runs dry.
	assert.Equal(t, []int{http.StatusForbidden, http.StatusForbidden, http.StatusTooManyRequests}, codes)
}
