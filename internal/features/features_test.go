package features

import (
	"math"
	"testing"
	"time"

	"github.com/hostpulse/hostpulse/internal/db"
)

func makeRec(ts time.Time, cpu, mem, disk float64) *db.SystemRecord {
	return &db.SystemRecord{
		Timestamp:        ts,
		CPUPercent:       cpu,
		MemoryPercent:    mem,
		MemoryUsedGB:     8.9,
		MemoryTotalGB:    16.0,
		DiskPercent:      disk,
		DiskUsedGB:       245.0,
		DiskTotalGB:      400.0,
		NetworkBytesSent: 123456789,
		NetworkBytesRecv: 987654321,
		UptimeHours:      42.5,
		CPUCount:         8,
		CPUFreqMHz:       2400.0,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildVectorMatchesColumns(t *testing.T) {
	rows := Build([]*db.SystemRecord{makeRec(time.Now(), 25, 50, 60)}, DefaultThresholds())
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	vec := rows[0].Vector()
	if len(vec) != len(Columns) {
		t.Fatalf("vector has %d values, columns list %d", len(vec), len(Columns))
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("column %s is %v", Columns[i], v)
		}
	}
}

func TestBuildTimeAndStressDerivations(t *testing.T) {
	// 2025-01-06 was a Monday.
	monday := time.Date(2025, 1, 6, 14, 30, 0, 0, time.UTC)
	sunday := time.Date(2025, 1, 5, 3, 0, 0, 0, time.UTC)

	rows := Build([]*db.SystemRecord{
		makeRec(sunday, 50, 60, 70),
		makeRec(monday, 50, 60, 70),
	}, DefaultThresholds())

	if got := rows[0].DayOfWeek; got != 6 {
		t.Fatalf("sunday day_of_week = %v, want 6", got)
	}
	if got := rows[1].DayOfWeek; got != 0 {
		t.Fatalf("monday day_of_week = %v, want 0", got)
	}
	if got := rows[1].Hour; got != 14 {
		t.Fatalf("hour = %v, want 14", got)
	}
	want := 50*0.4 + 60*0.4 + 70*0.2
	if !almostEqual(rows[1].SystemStress, want) {
		t.Fatalf("system_stress = %v, want %v", rows[1].SystemStress, want)
	}
}

func TestBuildRollingAverages(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	var recs []*db.SystemRecord
	for i, cpu := range []float64{10, 20, 30, 40, 50, 60} {
		recs = append(recs, makeRec(base.Add(time.Duration(i)*time.Minute), cpu, 50, 50))
	}
	rows := Build(recs, DefaultThresholds())

	wantAvg := []float64{10, 15, 20, 25, 30, 40}
	for i, want := range wantAvg {
		if !almostEqual(rows[i].CPURollingAvg, want) {
			t.Fatalf("row %d cpu_rolling_avg = %v, want %v", i, rows[i].CPURollingAvg, want)
		}
	}

	if rows[0].CPUTrend != 0 {
		t.Fatalf("first row cpu_trend = %v, want 0", rows[0].CPUTrend)
	}
	for i := 1; i < len(rows); i++ {
		if !almostEqual(rows[i].CPUTrend, 10) {
			t.Fatalf("row %d cpu_trend = %v, want 10", i, rows[i].CPUTrend)
		}
	}
}

func TestBuildShortHistoryHasNoTrend(t *testing.T) {
	base := time.Now()
	rows := Build([]*db.SystemRecord{
		makeRec(base, 10, 50, 50),
		makeRec(base.Add(time.Minute), 90, 50, 50),
	}, DefaultThresholds())

	for i, r := range rows {
		if r.CPUTrend != 0 || r.MemoryTrend != 0 {
			t.Fatalf("row %d has trend (%v, %v) on a 2-row history", i, r.CPUTrend, r.MemoryTrend)
		}
	}
}

func TestBuildSingleRowRollingFallsBackToRaw(t *testing.T) {
	rows := Build([]*db.SystemRecord{makeRec(time.Now(), 33, 44, 55)}, DefaultThresholds())
	r := rows[0]
	if r.CPURollingAvg != 33 || r.MemoryRollingAvg != 44 || r.DiskRollingAvg != 55 {
		t.Fatalf("single-row rolling averages = (%v, %v, %v), want raw values",
			r.CPURollingAvg, r.MemoryRollingAvg, r.DiskRollingAvg)
	}
}

func TestBuildLoadFlags(t *testing.T) {
	rows := Build([]*db.SystemRecord{
		makeRec(time.Now(), 85, 90, 95),
		makeRec(time.Now().Add(time.Minute), 80, 85, 90),
	}, DefaultThresholds())

	hot := rows[0]
	if hot.HighCPULoad != 1 || hot.HighMemoryLoad != 1 || hot.HighDiskLoad != 1 {
		t.Fatalf("flags above thresholds = (%v, %v, %v), want all 1",
			hot.HighCPULoad, hot.HighMemoryLoad, hot.HighDiskLoad)
	}
	// Thresholds are strict: exactly-at values do not trip the flags.
	at := rows[1]
	if at.HighCPULoad != 0 || at.HighMemoryLoad != 0 || at.HighDiskLoad != 0 {
		t.Fatalf("flags at thresholds = (%v, %v, %v), want all 0",
			at.HighCPULoad, at.HighMemoryLoad, at.HighDiskLoad)
	}
}

func TestTargetsShiftByOne(t *testing.T) {
	base := time.Now()
	var recs []*db.SystemRecord
	for i, cpu := range []float64{10, 20, 30, 40, 50} {
		recs = append(recs, makeRec(base.Add(time.Duration(i)*time.Minute), cpu, 40, 50))
	}

	targets := Targets(recs, DefaultTargetThresholds())
	if len(targets) != len(recs)-1 {
		t.Fatalf("got %d targets for %d rows, want %d", len(targets), len(recs), len(recs)-1)
	}
	for i, tgt := range targets {
		if tgt.FutureCPU != recs[i+1].CPUPercent {
			t.Fatalf("target %d future_cpu = %v, want %v", i, tgt.FutureCPU, recs[i+1].CPUPercent)
		}
	}
}

func TestTargetsSlowdownLabel(t *testing.T) {
	base := time.Now()
	recs := []*db.SystemRecord{
		makeRec(base, 30, 40, 50),
		makeRec(base.Add(time.Minute), 30, 95, 50),   // memory crossing
		makeRec(base.Add(2*time.Minute), 30, 40, 50), // calm
		makeRec(base.Add(3*time.Minute), 84, 89, 99), // stress crossing only
		makeRec(base.Add(4*time.Minute), 30, 40, 50),
	}

	targets := Targets(recs, DefaultTargetThresholds())
	want := []float64{1, 0, 1, 0}
	for i, tgt := range targets {
		if tgt.SlowdownRisk != want[i] {
			t.Fatalf("target %d slowdown_risk = %v, want %v", i, tgt.SlowdownRisk, want[i])
		}
	}
}

func TestTargetsTooShort(t *testing.T) {
	if got := Targets(nil, DefaultTargetThresholds()); got != nil {
		t.Fatalf("expected nil targets for empty input, got %v", got)
	}
	one := []*db.SystemRecord{makeRec(time.Now(), 10, 20, 30)}
	if got := Targets(one, DefaultTargetThresholds()); got != nil {
		t.Fatalf("expected nil targets for single row, got %v", got)
	}
}
