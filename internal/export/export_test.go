package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/hostpulse/hostpulse/internal/db"
)

func newSeededStore(t *testing.T) db.Store {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:", db.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		sys := &db.SystemRecord{
			Timestamp:        base.Add(time.Duration(i) * 2 * time.Second),
			CPUPercent:       10 + float64(i),
			MemoryPercent:    55.5,
			MemoryUsedGB:     8.9,
			MemoryTotalGB:    16,
			DiskPercent:      61.2,
			DiskUsedGB:       245,
			DiskTotalGB:      400,
			NetworkBytesSent: 1000,
			NetworkBytesRecv: 2000,
			UptimeHours:      42.5,
			CPUCount:         8,
			CPUFreqMHz:       2400,
		}
		procs := []db.ProcessRecord{
			{PID: 100 + int32(i), Name: `helper, "quoted"`, CPUPercent: 1.5, MemoryPercent: 2.5, MemoryMB: 128},
		}
		if err := store.AppendSample(ctx, sys, procs); err != nil {
			t.Fatalf("seed sample: %v", err)
		}
	}

	pred := &db.PredictionRecord{
		Timestamp:  base.Add(10 * time.Second),
		Type:       "slowdown_risk",
		Value:      0.42,
		Confidence: 0.8,
		Metadata:   `{"cpu_trend":"stable"}`,
	}
	if err := store.RecordPrediction(ctx, pred); err != nil {
		t.Fatalf("seed prediction: %v", err)
	}
	return store
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestExportWritesThreeFiles(t *testing.T) {
	store := newSeededStore(t)
	e := New(store)

	base := filepath.Join(t.TempDir(), "report.csv")
	res, err := e.Export(context.Background(), base)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if res.SystemRows != 3 || res.ProcessRows != 3 || res.PredictionRows != 1 {
		t.Fatalf("row counts = (%d, %d, %d), want (3, 3, 1)",
			res.SystemRows, res.ProcessRows, res.PredictionRows)
	}

	sys := readCSV(t, res.SystemFile)
	if !reflect.DeepEqual(sys[0], systemHeader) {
		t.Fatalf("system header = %v", sys[0])
	}
	if len(sys) != 4 {
		t.Fatalf("system file has %d rows, want header + 3", len(sys))
	}
	if sys[1][0] != "1" {
		t.Fatalf("first system id = %q, want 1", sys[1][0])
	}

	// Timestamps export as epoch seconds, oldest first.
	prev := -1.0
	for _, row := range sys[1:] {
		ts, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			t.Fatalf("timestamp %q does not parse: %v", row[1], err)
		}
		if ts <= prev {
			t.Fatalf("timestamps not ascending: %v after %v", ts, prev)
		}
		prev = ts
	}
	if sys[1][1] != "1.7e+09" {
		t.Fatalf("first timestamp = %q, want 1.7e+09", sys[1][1])
	}

	procs := readCSV(t, res.ProcessFile)
	if !reflect.DeepEqual(procs[0], processHeader) {
		t.Fatalf("process header = %v", procs[0])
	}
	if procs[1][3] != `helper, "quoted"` {
		t.Fatalf("process name round-trip = %q", procs[1][3])
	}

	preds := readCSV(t, res.PredictionFile)
	if !reflect.DeepEqual(preds[0], predictionHeader) {
		t.Fatalf("prediction header = %v", preds[0])
	}
	if preds[1][2] != "slowdown_risk" || preds[1][5] != `{"cpu_trend":"stable"}` {
		t.Fatalf("prediction row = %v", preds[1])
	}
}

func TestExportFileNaming(t *testing.T) {
	store := newSeededStore(t)
	e := New(store)
	dir := t.TempDir()

	res, err := e.Export(context.Background(), filepath.Join(dir, "logs.csv"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := map[string]string{
		"system":     filepath.Join(dir, "logs_system.csv"),
		"process":    filepath.Join(dir, "logs_processes.csv"),
		"prediction": filepath.Join(dir, "logs_predictions.csv"),
	}
	if res.SystemFile != want["system"] || res.ProcessFile != want["process"] || res.PredictionFile != want["prediction"] {
		t.Fatalf("file names = %+v", res)
	}
	for _, path := range want {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing export file %s: %v", path, err)
		}
	}
}

func TestExportEmptyStoreWritesHeaders(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:", db.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	e := New(store)
	res, err := e.Export(context.Background(), filepath.Join(t.TempDir(), "empty.csv"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.SystemRows != 0 || res.ProcessRows != 0 || res.PredictionRows != 0 {
		t.Fatalf("row counts = %+v, want zeros", res)
	}
	rows := readCSV(t, res.SystemFile)
	if len(rows) != 1 || !reflect.DeepEqual(rows[0], systemHeader) {
		t.Fatalf("empty export rows = %v, want header only", rows)
	}
}
