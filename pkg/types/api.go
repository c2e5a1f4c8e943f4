// Package types defines the public API types shared between the
// hostpulse daemon and its dashboard frontend.
//
// These types define the REST and WebSocket contracts.
package types

import "time"

// ─── Requests ─────────────────────────────────────────────────────────────────

// KillProcessRequest asks the daemon to terminate one process by PID.
type KillProcessRequest struct {
	PID int32 `json:"pid"`
}

// ExportRequest selects where the CSV dump lands. An empty path falls
// back to the server's configured export directory.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ─── Responses ────────────────────────────────────────────────────────────────

// SystemStats mirrors one host snapshot. Network counters are totals
// since boot.
type SystemStats struct {
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

// ProcessInfo is one entry in the live top-N process list.
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryMB      float64 `json:"memory_mb"`
}

// PredictionInfo is the model outlook for the next sampling step.
// FutureStress and SlowdownRisk are omitted while the corresponding
// model is still degenerate (trained on one-class data).
type PredictionInfo struct {
	GeneratedAt       time.Time `json:"generated_at"`
	FutureStress      *float64  `json:"future_stress,omitempty"`
	SlowdownRisk      *float64  `json:"slowdown_risk,omitempty"`
	RiskLevel         string    `json:"risk_level"` // low | medium | high
	CPUTrend          string    `json:"cpu_trend"`  // increasing | decreasing | stable
	MemoryTrend       string    `json:"memory_trend"`
	TimeToSlowdownMin *int      `json:"time_to_slowdown_minutes,omitempty"`
}

// StatsResponse is the GET /api/v1/stats payload.
type StatsResponse struct {
	System      *SystemStats  `json:"system"`
	Processes   []ProcessInfo `json:"processes"`
	HealthScore int           `json:"health_score"`
	RecordCount int           `json:"record_count"`
	Timestamp   time.Time     `json:"timestamp"`
}

// HistoryResponse is the GET /api/v1/history payload.
type HistoryResponse struct {
	Items []SystemStats `json:"items"`
	Count int           `json:"count"`
}

// PredictionResponse wraps the latest prediction. Available is false
// while the stored history is too short to predict from.
type PredictionResponse struct {
	Available  bool            `json:"available"`
	Reason     string          `json:"reason,omitempty"`
	Prediction *PredictionInfo `json:"prediction,omitempty"`
}

// SuggestionsResponse is the GET /api/v1/suggestions payload.
type SuggestionsResponse struct {
	Suggestions []string  `json:"suggestions"`
	Count       int       `json:"count"`
	Timestamp   time.Time `json:"timestamp"`
}

// KillProcessResponse reports one terminate attempt.
type KillProcessResponse struct {
	PID     int32  `json:"pid"`
	Status  string `json:"status"` // terminated | refused | failed
	Message string `json:"message,omitempty"`
}

// OptimizeResponse reports one cleanup pass.
type OptimizeResponse struct {
	KilledProcesses []string  `json:"killed_processes"`
	MemoryFreedMB   float64   `json:"memory_freed_mb"`
	CacheCleared    bool      `json:"cache_cleared"`
	Timestamp       time.Time `json:"timestamp"`
}

// ExportResponse lists the CSV files one export run wrote.
type ExportResponse struct {
	SystemFile     string `json:"system_file"`
	ProcessFile    string `json:"process_file"`
	PredictionFile string `json:"prediction_file"`
	SystemRows     int    `json:"system_rows"`
	ProcessRows    int    `json:"process_rows"`
	PredictionRows int    `json:"prediction_rows"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ─── WebSocket frames ─────────────────────────────────────────────────────────

// Message types sent on /ws/live.
const (
	MessageTypeUpdate    = "update"
	MessageTypeHeartbeat = "heartbeat"
)

// LiveUpdate is one /ws/live frame carrying a full tick: snapshot,
// processes, model outlook and suggestions. Heartbeat frames carry only
// Type and Timestamp.
type LiveUpdate struct {
	Type        string          `json:"type"`
	System      *SystemStats    `json:"system,omitempty"`
	Processes   []ProcessInfo   `json:"processes,omitempty"`
	Prediction  *PredictionInfo `json:"prediction,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
	HealthScore int             `json:"health_score"`
	RecordCount int             `json:"record_count"`
	Timestamp   time.Time       `json:"timestamp"`
}
