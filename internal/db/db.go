package db

import (
	"context"
	"time"
)

// Store is the main persistence interface for telemetry history.
type Store interface {
	SnapshotStore
	PredictionStore
	MaintenanceStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Snapshot store ───────────────────────────────────────────────────────────

// SystemRecord is one host-wide snapshot, taken once per sampling tick.
// Network counters are monotonic totals since boot, not per-tick deltas.
type SystemRecord struct {
	ID               int64     `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryPercent    float64   `json:"memory_percent"`
	MemoryUsedGB     float64   `json:"memory_used_gb"`
	MemoryTotalGB    float64   `json:"memory_total_gb"`
	DiskPercent      float64   `json:"disk_percent"`
	DiskUsedGB       float64   `json:"disk_used_gb"`
	DiskTotalGB      float64   `json:"disk_total_gb"`
	NetworkBytesSent uint64    `json:"network_bytes_sent"`
	NetworkBytesRecv uint64    `json:"network_bytes_recv"`
	UptimeHours      float64   `json:"uptime_hours"`
	CPUCount         int       `json:"cpu_count"`
	CPUFreqMHz       float64   `json:"cpu_freq"`
}

// ProcessRecord is one process observed during a sampling tick. Only the
// heaviest processes by CPU are persisted, so a tick contributes at most
// MaxProcesses rows.
type ProcessRecord struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	PID           int32     `json:"pid"`
	Name          string    `json:"name"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryMB      float64   `json:"memory_mb"`
}

// SnapshotStore persists the per-tick system and process rows.
type SnapshotStore interface {
	// AppendSample writes one system snapshot and its process list in a
	// single transaction, so readers never observe a tick with the system
	// row but not its processes. The process list is capped to the top-N
	// by CPU before insert. Sets sys.ID on success.
	AppendSample(ctx context.Context, sys *SystemRecord, procs []ProcessRecord) error

	// RecentSystem returns the newest n system rows in ascending timestamp
	// order. Returns fewer rows when the table holds fewer.
	RecentSystem(ctx context.Context, n int) ([]*SystemRecord, error)

	// SystemSince returns system rows with timestamp >= since, ascending.
	// A zero since returns the full history.
	SystemSince(ctx context.Context, since time.Time) ([]*SystemRecord, error)

	// SystemCount reports the number of system rows stored.
	SystemCount(ctx context.Context) (int64, error)

	// LatestProcesses returns the process rows of the most recent tick,
	// heaviest CPU first.
	LatestProcesses(ctx context.Context) ([]*ProcessRecord, error)

	// ProcessHistory returns process rows with timestamp >= since, ascending
	// by tick. A zero since returns the full history.
	ProcessHistory(ctx context.Context, since time.Time) ([]*ProcessRecord, error)
}

// ─── Prediction store ─────────────────────────────────────────────────────────

// PredictionRecord is one persisted model output. The predictor only writes
// these; they exist for offline analysis and the history API, and are never
// fed back into training.
type PredictionRecord struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"prediction_type"` // e.g. performance_forecast | slowdown_risk
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	Metadata   string    `json:"metadata"` // JSON blob
}

// PredictionStore is the append-only audit trail of model outputs.
type PredictionStore interface {
	// RecordPrediction appends one prediction event. Sets rec.ID on success.
	RecordPrediction(ctx context.Context, rec *PredictionRecord) error

	// PredictionHistory returns prediction rows with timestamp >= since,
	// ascending. A zero since returns the full history.
	PredictionHistory(ctx context.Context, since time.Time) ([]*PredictionRecord, error)
}

// ─── Maintenance store ────────────────────────────────────────────────────────

// PurgeResult reports how many rows a retention sweep removed per table.
type PurgeResult struct {
	SystemRows     int64 `json:"system_rows"`
	ProcessRows    int64 `json:"process_rows"`
	PredictionRows int64 `json:"prediction_rows"`
}

// Total is the number of rows removed across all tables.
func (r PurgeResult) Total() int64 {
	return r.SystemRows + r.ProcessRows + r.PredictionRows
}

// StoreStats summarizes the database for the stats API.
type StoreStats struct {
	SystemRows     int64     `json:"system_rows"`
	ProcessRows    int64     `json:"process_rows"`
	PredictionRows int64     `json:"prediction_rows"`
	SizeBytes      int64     `json:"size_bytes"`
	Oldest         time.Time `json:"oldest"`
	Newest         time.Time `json:"newest"`
}

// MaintenanceStore covers retention and introspection.
type MaintenanceStore interface {
	// PurgeOlderThan deletes rows with timestamp < cutoff from every table
	// and reclaims file space when anything was removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (PurgeResult, error)

	// Stats reports row counts, on-disk size and the stored time range.
	// Oldest and Newest are zero when no system rows exist.
	Stats(ctx context.Context) (*StoreStats, error)
}
