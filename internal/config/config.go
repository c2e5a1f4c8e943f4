package config

import "context"

// Package config provides configuration management for hostpulse.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading on file change
//   - Establish reasonable defaults for every knob
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (HOSTPULSE_* prefix)
//   2. YAML config file (default: /etc/hostpulse/config.yaml)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - host, port: HTTP listen address (default 8899)
//      - read_timeout, write_timeout, shutdown_timeout: seconds
//      - allowed_origins: WebSocket origin allow list
//
//   2. Database
//      - path: SQLite file (default data/telemetry.db)
//      - retention_days: telemetry kept before purge
//      - busy_timeout_ms: SQLite lock wait
//
//   3. Sampling
//      - interval_seconds: telemetry tick cadence
//      - top_processes: per-tick process cap
//      - min_records: snapshots required before predictions start
//      - recent_window: snapshots fed to the predictor per call
//
//   4. Thresholds
//      - cpu_high, memory_high, disk_high: warning cutoffs
//      - future_*_high: slowdown label cutoffs
//      - critical_stress: time-to-slowdown extrapolation target
//      - process_cpu_min, process_memory_mb, heavy_app_memory_mb: callout floors
//
//   5. Model
//      - dir: artifact directory (default models/)
//      - history_days, retrain_cadence, min_train_rows, min_clean_rows
//      - trees, max_depth, seed: forest shape
//
//   6. Suggestions
//      - max_lines: output line cap
//
//   7. Remediation
//      - enabled: master switch for kill and optimize
//      - safe_processes, critical_processes: allow and deny lists
//      - cpu_kill_percent, memory_kill_percent: optimize kill floors
//
//   8. Logging
//      - level, file: app log destination
//      - max_size_mb, max_backups, max_age_days: rotation
//      - buffer_size, flush_interval_seconds: audit event buffer
//
//   9. Export
//      - dir: CSV output directory
//
//  10. RateLimit
//      - actions_per_minute: per-client budget for action endpoints
//
// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host            string
		Port            int
		ReadTimeout     int // seconds
		WriteTimeout    int // seconds
		ShutdownTimeout int // seconds
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		// If empty, defaults to ["http://localhost:3000"].
		AllowedOrigins []string
	}

	// Database configuration
	Database struct {
		Path          string
		RetentionDays int
		BusyTimeoutMS int
	}

	// Sampling configuration
	Sampling struct {
		IntervalSeconds int
		TopProcesses    int
		MinRecords      int // snapshots required before predictions start
		RecentWindow    int // snapshots fed to the predictor per call
		DiskPath        string
	}

	// Thresholds configuration. Percentages are 0-100.
	Thresholds struct {
		CPUHigh          float64 // generic CPU warning
		MemoryHigh       float64 // generic memory warning
		DiskHigh         float64 // disk cleanup warning
		MemoryWarn       float64 // platform hint gate
		DiskWarn         float64 // platform hint gate
		FutureCPUHigh    float64 // slowdown label: next-step CPU
		FutureMemoryHigh float64 // slowdown label: next-step memory
		FutureStressHigh float64 // slowdown label: next-step stress
		CriticalStress   float64 // time-to-slowdown extrapolation target
		ProcessCPUMin    float64 // per-process CPU callout floor
		ProcessMemoryMB  float64 // per-process memory callout floor
		HeavyAppMemoryMB float64 // heavy-app alternative suggestion floor
		ProcessCountHigh int     // startup-programs hint
	}

	// Model configuration
	Model struct {
		Dir            string
		HistoryDays    int
		RetrainCadence int // retrain every Nth prediction
		MinTrainRows   int
		MinCleanRows   int
		Trees          int
		MaxDepth       int
		Seed           int64
	}

	// Suggestions configuration
	Suggestions struct {
		MaxLines int
	}

	// Remediation configuration
	Remediation struct {
		Enabled           bool
		SafeProcesses     []string // substring allow list for optimize kills
		CriticalProcesses []string // substring deny list, never killed
		CPUKillPercent    float64
		MemoryKillPercent float64
	}

	// Logging configuration
	Logging struct {
		Level                string
		File                 string
		MaxSizeMB            int
		MaxBackups           int
		MaxAgeDays           int
		BufferSize           int
		FlushIntervalSeconds int
	}

	// Export configuration
	Export struct {
		Dir string
	}

	// RateLimit configuration
	RateLimit struct {
		ActionsPerMinute int
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/hostpulse/config.yaml")
}
