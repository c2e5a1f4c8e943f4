// Package features derives model inputs and training targets from stored
// system snapshots. Rows keep the order of their snapshots; window-based
// derivations (rolling averages, trends) only ever look backwards, so the
// same history always produces the same rows.
package features

import (
	"time"

	"github.com/hostpulse/hostpulse/internal/db"
)

// Columns lists the model inputs in training order. The scaler and both
// forests are fit against vectors in exactly this order, so it must not be
// reordered without retraining from scratch.
var Columns = []string{
	"cpu_percent", "memory_percent", "disk_percent",
	"memory_used_gb", "network_bytes_sent", "network_bytes_recv",
	"uptime_hours", "cpu_count", "cpu_freq",
	"hour", "day_of_week",
	"cpu_rolling_avg", "memory_rolling_avg", "disk_rolling_avg",
	"cpu_trend", "memory_trend",
	"high_cpu_load", "high_memory_load", "high_disk_load",
	"system_stress",
}

// rollingWindow is the maximum trailing window for rolling averages. Shorter
// histories shrink the window to their own length.
const rollingWindow = 5

// Thresholds are the load-flag cutoffs.
type Thresholds struct {
	CPUHigh    float64
	MemoryHigh float64
	DiskHigh   float64
}

// DefaultThresholds returns the standard load-flag cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUHigh: 80, MemoryHigh: 85, DiskHigh: 90}
}

// Row is the derived feature vector for one snapshot.
type Row struct {
	Timestamp time.Time

	CPUPercent       float64
	MemoryPercent    float64
	DiskPercent      float64
	MemoryUsedGB     float64
	NetworkBytesSent float64
	NetworkBytesRecv float64
	UptimeHours      float64
	CPUCount         float64
	CPUFreq          float64

	Hour             float64 // 0-23, UTC
	DayOfWeek        float64 // 0 = Monday .. 6 = Sunday
	CPURollingAvg    float64
	MemoryRollingAvg float64
	DiskRollingAvg   float64
	CPUTrend         float64 // first difference; zero for short histories
	MemoryTrend      float64
	HighCPULoad      float64 // 0 or 1
	HighMemoryLoad   float64
	HighDiskLoad     float64
	SystemStress     float64
}

// Vector returns the row's values in Columns order.
func (r *Row) Vector() []float64 {
	return []float64{
		r.CPUPercent, r.MemoryPercent, r.DiskPercent,
		r.MemoryUsedGB, r.NetworkBytesSent, r.NetworkBytesRecv,
		r.UptimeHours, r.CPUCount, r.CPUFreq,
		r.Hour, r.DayOfWeek,
		r.CPURollingAvg, r.MemoryRollingAvg, r.DiskRollingAvg,
		r.CPUTrend, r.MemoryTrend,
		r.HighCPULoad, r.HighMemoryLoad, r.HighDiskLoad,
		r.SystemStress,
	}
}

// Stress is the weighted resource pressure indicator shared by training
// targets and live predictions.
func Stress(cpu, memory, disk float64) float64 {
	return cpu*0.4 + memory*0.4 + disk*0.2
}

// Build derives one feature row per snapshot, in input order. Nil for an
// empty input.
func Build(rows []*db.SystemRecord, th Thresholds) []Row {
	n := len(rows)
	if n == 0 {
		return nil
	}

	out := make([]Row, n)
	window := rollingWindow
	if n < window {
		window = n
	}

	for i, rec := range rows {
		ts := rec.Timestamp.UTC()
		r := Row{
			Timestamp:        rec.Timestamp,
			CPUPercent:       rec.CPUPercent,
			MemoryPercent:    rec.MemoryPercent,
			DiskPercent:      rec.DiskPercent,
			MemoryUsedGB:     rec.MemoryUsedGB,
			NetworkBytesSent: float64(rec.NetworkBytesSent),
			NetworkBytesRecv: float64(rec.NetworkBytesRecv),
			UptimeHours:      rec.UptimeHours,
			CPUCount:         float64(rec.CPUCount),
			CPUFreq:          rec.CPUFreqMHz,
			Hour:             float64(ts.Hour()),
			DayOfWeek:        float64((int(ts.Weekday()) + 6) % 7),
			SystemStress:     Stress(rec.CPUPercent, rec.MemoryPercent, rec.DiskPercent),
		}

		if window > 1 {
			start := i - window + 1
			if start < 0 {
				start = 0
			}
			var cpuSum, memSum, diskSum float64
			for j := start; j <= i; j++ {
				cpuSum += rows[j].CPUPercent
				memSum += rows[j].MemoryPercent
				diskSum += rows[j].DiskPercent
			}
			span := float64(i - start + 1)
			r.CPURollingAvg = cpuSum / span
			r.MemoryRollingAvg = memSum / span
			r.DiskRollingAvg = diskSum / span
		} else {
			r.CPURollingAvg = rec.CPUPercent
			r.MemoryRollingAvg = rec.MemoryPercent
			r.DiskRollingAvg = rec.DiskPercent
		}

		// Trends carry the first difference, but only once the history is
		// long enough to mean anything.
		if n > 2 && i > 0 {
			r.CPUTrend = rec.CPUPercent - rows[i-1].CPUPercent
			r.MemoryTrend = rec.MemoryPercent - rows[i-1].MemoryPercent
		}

		if rec.CPUPercent > th.CPUHigh {
			r.HighCPULoad = 1
		}
		if rec.MemoryPercent > th.MemoryHigh {
			r.HighMemoryLoad = 1
		}
		if rec.DiskPercent > th.DiskHigh {
			r.HighDiskLoad = 1
		}

		out[i] = r
	}
	return out
}

// Matrix converts rows to the numeric form the models consume.
func Matrix(rows []Row) [][]float64 {
	out := make([][]float64, len(rows))
	for i := range rows {
		out[i] = rows[i].Vector()
	}
	return out
}
