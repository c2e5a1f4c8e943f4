// Package collector reads point-in-time host telemetry via gopsutil.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/hostpulse/hostpulse/internal/db"
)

// Collector produces the per-tick host and process snapshots.
type Collector interface {
	// SystemSnapshot reads one host-wide snapshot. The returned record is
	// never nil: when a probe fails it carries DefaultRecord values so the
	// tick still produces a row, and the error reports what failed.
	SystemSnapshot(ctx context.Context) (*db.SystemRecord, error)

	// TopProcesses returns up to limit running processes ordered by CPU
	// usage, heaviest first. Processes that exit mid-scan are skipped.
	TopProcesses(ctx context.Context, limit int) ([]db.ProcessRecord, error)

	// LoadAverages reads the 1/5/15 minute load averages. Zeros on
	// platforms without load average support.
	LoadAverages(ctx context.Context) LoadInfo

	// Temperatures reads the CPU temperature sensors when exposed.
	Temperatures(ctx context.Context) TempInfo
}

// LoadInfo holds Unix load averages. All zeros on Windows.
type LoadInfo struct {
	Load1  float64 `json:"load_1min"`
	Load5  float64 `json:"load_5min"`
	Load15 float64 `json:"load_15min"`
}

// TempInfo holds the first CPU/core temperature sensor found.
type TempInfo struct {
	CPUTemp         float64 `json:"cpu_temp"`
	CPUTempHigh     float64 `json:"cpu_temp_high"`
	CPUTempCritical float64 `json:"cpu_temp_critical"`
}

type hostCollector struct {
	diskPath string
}

// New returns a Collector sampling disk usage at diskPath ("/" when empty).
func New(diskPath string) Collector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &hostCollector{diskPath: diskPath}
}

func (c *hostCollector) SystemSnapshot(ctx context.Context) (*db.SystemRecord, error) {
	now := time.Now().UTC()

	cpuPct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return DefaultRecord(now), fmt.Errorf("cpu percent: %w", err)
	}
	if len(cpuPct) == 0 {
		return DefaultRecord(now), errors.New("cpu percent: no samples")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return DefaultRecord(now), fmt.Errorf("virtual memory: %w", err)
	}

	du, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return DefaultRecord(now), fmt.Errorf("disk usage %s: %w", c.diskPath, err)
	}

	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return DefaultRecord(now), fmt.Errorf("net counters: %w", err)
	}
	var sent, recv uint64
	if len(counters) > 0 {
		sent, recv = counters[0].BytesSent, counters[0].BytesRecv
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return DefaultRecord(now), fmt.Errorf("uptime: %w", err)
	}

	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return DefaultRecord(now), fmt.Errorf("cpu count: %w", err)
	}

	// Frequency is informational; some hosts don't expose it.
	var freq float64
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		freq = infos[0].Mhz
	}

	return &db.SystemRecord{
		Timestamp:        now,
		CPUPercent:       cpuPct[0],
		MemoryPercent:    vm.UsedPercent,
		MemoryUsedGB:     bytesToGB(vm.Used),
		MemoryTotalGB:    bytesToGB(vm.Total),
		DiskPercent:      du.UsedPercent,
		DiskUsedGB:       bytesToGB(du.Used),
		DiskTotalGB:      bytesToGB(du.Total),
		NetworkBytesSent: sent,
		NetworkBytesRecv: recv,
		UptimeHours:      float64(uptime) / 3600,
		CPUCount:         count,
		CPUFreqMHz:       freq,
	}, nil
}

func (c *hostCollector) TopProcesses(ctx context.Context, limit int) ([]db.ProcessRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	now := time.Now().UTC()
	records := make([]db.ProcessRecord, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			// Exited mid-scan, access denied, or an unnamed kernel task.
			continue
		}

		cpuPct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			cpuPct = 0
		}
		memPct, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			memPct = 0
		}
		var memMB float64
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			memMB = float64(mi.RSS) / (1024 * 1024)
		}

		records = append(records, db.ProcessRecord{
			Timestamp:     now,
			PID:           p.Pid,
			Name:          name,
			CPUPercent:    cpuPct,
			MemoryPercent: float64(memPct),
			MemoryMB:      memMB,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].CPUPercent > records[j].CPUPercent })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (c *hostCollector) LoadAverages(ctx context.Context) LoadInfo {
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		return LoadInfo{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}
	return LoadInfo{}
}

func (c *hostCollector) Temperatures(ctx context.Context) TempInfo {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil {
		return TempInfo{}
	}
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "core") {
			return TempInfo{CPUTemp: t.Temperature, CPUTempHigh: t.High, CPUTempCritical: t.Critical}
		}
	}
	return TempInfo{}
}

// DefaultRecord is the fallback snapshot stored when host probes fail, so a
// sampling tick always produces a row. Totals carry nominal assumptions.
func DefaultRecord(ts time.Time) *db.SystemRecord {
	return &db.SystemRecord{
		Timestamp:     ts,
		MemoryTotalGB: 8,
		DiskTotalGB:   100,
		CPUCount:      4,
		CPUFreqMHz:    2400,
	}
}

func bytesToGB(b uint64) float64 {
	return float64(b) / (1 << 30)
}
