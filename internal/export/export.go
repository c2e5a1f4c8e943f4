// Package export writes stored telemetry to CSV, one file per table,
// with the table's own column names as the header and timestamps as
// seconds since the Unix epoch.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hostpulse/hostpulse/internal/db"
)

var (
	systemHeader = []string{
		"id", "timestamp", "cpu_percent", "memory_percent", "memory_used_gb",
		"memory_total_gb", "disk_percent", "disk_used_gb", "disk_total_gb",
		"network_bytes_sent", "network_bytes_recv", "uptime_hours",
		"cpu_count", "cpu_freq",
	}
	processHeader = []string{
		"id", "timestamp", "pid", "name", "cpu_percent", "memory_percent", "memory_mb",
	}
	predictionHeader = []string{
		"id", "timestamp", "prediction_type", "value", "confidence", "metadata",
	}
)

// Result names the files written and counts their data rows.
type Result struct {
	SystemFile     string `json:"system_file"`
	ProcessFile    string `json:"process_file"`
	PredictionFile string `json:"prediction_file"`
	SystemRows     int    `json:"system_rows"`
	ProcessRows    int    `json:"process_rows"`
	PredictionRows int    `json:"prediction_rows"`
}

// Exporter dumps the full history of every table.
type Exporter struct {
	store db.Store
}

// New returns an exporter over the store.
func New(store db.Store) *Exporter {
	return &Exporter{store: store}
}

// Export writes three CSV files next to the given base path: a ".csv"
// suffix is replaced, so "reports/today.csv" becomes
// "reports/today_system.csv" and friends. Rows are ordered oldest first.
func (e *Exporter) Export(ctx context.Context, path string) (*Result, error) {
	base := strings.TrimSuffix(path, ".csv")
	if dir := filepath.Dir(base); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("export dir: %w", err)
		}
	}

	res := &Result{
		SystemFile:     base + "_system.csv",
		ProcessFile:    base + "_processes.csv",
		PredictionFile: base + "_predictions.csv",
	}

	systems, err := e.store.SystemSince(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("system history: %w", err)
	}
	rows := make([][]string, 0, len(systems))
	for _, s := range systems {
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			formatEpoch(s.Timestamp),
			formatFloat(s.CPUPercent),
			formatFloat(s.MemoryPercent),
			formatFloat(s.MemoryUsedGB),
			formatFloat(s.MemoryTotalGB),
			formatFloat(s.DiskPercent),
			formatFloat(s.DiskUsedGB),
			formatFloat(s.DiskTotalGB),
			strconv.FormatUint(s.NetworkBytesSent, 10),
			strconv.FormatUint(s.NetworkBytesRecv, 10),
			formatFloat(s.UptimeHours),
			strconv.Itoa(s.CPUCount),
			formatFloat(s.CPUFreqMHz),
		})
	}
	if err := writeCSV(res.SystemFile, systemHeader, rows); err != nil {
		return nil, err
	}
	res.SystemRows = len(rows)

	procs, err := e.store.ProcessHistory(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("process history: %w", err)
	}
	rows = rows[:0]
	for _, p := range procs {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			formatEpoch(p.Timestamp),
			strconv.FormatInt(int64(p.PID), 10),
			p.Name,
			formatFloat(p.CPUPercent),
			formatFloat(p.MemoryPercent),
			formatFloat(p.MemoryMB),
		})
	}
	if err := writeCSV(res.ProcessFile, processHeader, rows); err != nil {
		return nil, err
	}
	res.ProcessRows = len(rows)

	preds, err := e.store.PredictionHistory(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("prediction history: %w", err)
	}
	rows = rows[:0]
	for _, p := range preds {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			formatEpoch(p.Timestamp),
			p.Type,
			formatFloat(p.Value),
			formatFloat(p.Confidence),
			p.Metadata,
		})
	}
	if err := writeCSV(res.PredictionFile, predictionHeader, rows); err != nil {
		return nil, err
	}
	res.PredictionRows = len(rows)

	return res, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func formatEpoch(t time.Time) string {
	return formatFloat(float64(t.UnixNano()) / float64(time.Second))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
