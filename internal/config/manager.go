package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("HOSTPULSE")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if err := m.viper.ReadInConfig(); err != nil {
		// Config file not found is OK, we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper
		} else if os.IsNotExist(err) {
			// File not found via os
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides for common knobs
	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	// Start watching config file
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		// Reload config
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		// Send updated config to channel
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	// Re-read config file
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	m.viper.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	m.viper.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// Database defaults
	m.viper.SetDefault("database.path", defaults.Database.Path)
	m.viper.SetDefault("database.retention_days", defaults.Database.RetentionDays)
	m.viper.SetDefault("database.busy_timeout_ms", defaults.Database.BusyTimeoutMS)

	// Sampling defaults
	m.viper.SetDefault("sampling.interval_seconds", defaults.Sampling.IntervalSeconds)
	m.viper.SetDefault("sampling.top_processes", defaults.Sampling.TopProcesses)
	m.viper.SetDefault("sampling.min_records", defaults.Sampling.MinRecords)
	m.viper.SetDefault("sampling.recent_window", defaults.Sampling.RecentWindow)
	m.viper.SetDefault("sampling.disk_path", defaults.Sampling.DiskPath)

	// Threshold defaults
	m.viper.SetDefault("thresholds.cpu_high", defaults.Thresholds.CPUHigh)
	m.viper.SetDefault("thresholds.memory_high", defaults.Thresholds.MemoryHigh)
	m.viper.SetDefault("thresholds.disk_high", defaults.Thresholds.DiskHigh)
	m.viper.SetDefault("thresholds.memory_warn", defaults.Thresholds.MemoryWarn)
	m.viper.SetDefault("thresholds.disk_warn", defaults.Thresholds.DiskWarn)
	m.viper.SetDefault("thresholds.future_cpu_high", defaults.Thresholds.FutureCPUHigh)
	m.viper.SetDefault("thresholds.future_memory_high", defaults.Thresholds.FutureMemoryHigh)
	m.viper.SetDefault("thresholds.future_stress_high", defaults.Thresholds.FutureStressHigh)
	m.viper.SetDefault("thresholds.critical_stress", defaults.Thresholds.CriticalStress)
	m.viper.SetDefault("thresholds.process_cpu_min", defaults.Thresholds.ProcessCPUMin)
	m.viper.SetDefault("thresholds.process_memory_mb", defaults.Thresholds.ProcessMemoryMB)
	m.viper.SetDefault("thresholds.heavy_app_memory_mb", defaults.Thresholds.HeavyAppMemoryMB)
	m.viper.SetDefault("thresholds.process_count_high", defaults.Thresholds.ProcessCountHigh)

	// Model defaults
	m.viper.SetDefault("model.dir", defaults.Model.Dir)
	m.viper.SetDefault("model.history_days", defaults.Model.HistoryDays)
	m.viper.SetDefault("model.retrain_cadence", defaults.Model.RetrainCadence)
	m.viper.SetDefault("model.min_train_rows", defaults.Model.MinTrainRows)
	m.viper.SetDefault("model.min_clean_rows", defaults.Model.MinCleanRows)
	m.viper.SetDefault("model.trees", defaults.Model.Trees)
	m.viper.SetDefault("model.max_depth", defaults.Model.MaxDepth)
	m.viper.SetDefault("model.seed", defaults.Model.Seed)

	// Suggestion defaults
	m.viper.SetDefault("suggestions.max_lines", defaults.Suggestions.MaxLines)

	// Remediation defaults
	m.viper.SetDefault("remediation.enabled", defaults.Remediation.Enabled)
	m.viper.SetDefault("remediation.safe_processes", defaults.Remediation.SafeProcesses)
	m.viper.SetDefault("remediation.critical_processes", defaults.Remediation.CriticalProcesses)
	m.viper.SetDefault("remediation.cpu_kill_percent", defaults.Remediation.CPUKillPercent)
	m.viper.SetDefault("remediation.memory_kill_percent", defaults.Remediation.MemoryKillPercent)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.buffer_size", defaults.Logging.BufferSize)
	m.viper.SetDefault("logging.flush_interval_seconds", defaults.Logging.FlushIntervalSeconds)

	// Export defaults
	m.viper.SetDefault("export.dir", defaults.Export.Dir)

	// Rate limit defaults
	m.viper.SetDefault("ratelimit.actions_per_minute", defaults.RateLimit.ActionsPerMinute)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.ReadTimeout = m.viper.GetInt("server.read_timeout")
	cfg.Server.WriteTimeout = m.viper.GetInt("server.write_timeout")
	cfg.Server.ShutdownTimeout = m.viper.GetInt("server.shutdown_timeout")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	// Database
	cfg.Database.Path = m.viper.GetString("database.path")
	cfg.Database.RetentionDays = m.viper.GetInt("database.retention_days")
	cfg.Database.BusyTimeoutMS = m.viper.GetInt("database.busy_timeout_ms")

	// Sampling
	cfg.Sampling.IntervalSeconds = m.viper.GetInt("sampling.interval_seconds")
	cfg.Sampling.TopProcesses = m.viper.GetInt("sampling.top_processes")
	cfg.Sampling.MinRecords = m.viper.GetInt("sampling.min_records")
	cfg.Sampling.RecentWindow = m.viper.GetInt("sampling.recent_window")
	cfg.Sampling.DiskPath = m.viper.GetString("sampling.disk_path")

	// Thresholds
	cfg.Thresholds.CPUHigh = m.viper.GetFloat64("thresholds.cpu_high")
	cfg.Thresholds.MemoryHigh = m.viper.GetFloat64("thresholds.memory_high")
	cfg.Thresholds.DiskHigh = m.viper.GetFloat64("thresholds.disk_high")
	cfg.Thresholds.MemoryWarn = m.viper.GetFloat64("thresholds.memory_warn")
	cfg.Thresholds.DiskWarn = m.viper.GetFloat64("thresholds.disk_warn")
	cfg.Thresholds.FutureCPUHigh = m.viper.GetFloat64("thresholds.future_cpu_high")
	cfg.Thresholds.FutureMemoryHigh = m.viper.GetFloat64("thresholds.future_memory_high")
	cfg.Thresholds.FutureStressHigh = m.viper.GetFloat64("thresholds.future_stress_high")
	cfg.Thresholds.CriticalStress = m.viper.GetFloat64("thresholds.critical_stress")
	cfg.Thresholds.ProcessCPUMin = m.viper.GetFloat64("thresholds.process_cpu_min")
	cfg.Thresholds.ProcessMemoryMB = m.viper.GetFloat64("thresholds.process_memory_mb")
	cfg.Thresholds.HeavyAppMemoryMB = m.viper.GetFloat64("thresholds.heavy_app_memory_mb")
	cfg.Thresholds.ProcessCountHigh = m.viper.GetInt("thresholds.process_count_high")

	// Model
	cfg.Model.Dir = m.viper.GetString("model.dir")
	cfg.Model.HistoryDays = m.viper.GetInt("model.history_days")
	cfg.Model.RetrainCadence = m.viper.GetInt("model.retrain_cadence")
	cfg.Model.MinTrainRows = m.viper.GetInt("model.min_train_rows")
	cfg.Model.MinCleanRows = m.viper.GetInt("model.min_clean_rows")
	cfg.Model.Trees = m.viper.GetInt("model.trees")
	cfg.Model.MaxDepth = m.viper.GetInt("model.max_depth")
	cfg.Model.Seed = m.viper.GetInt64("model.seed")

	// Suggestions
	cfg.Suggestions.MaxLines = m.viper.GetInt("suggestions.max_lines")

	// Remediation
	cfg.Remediation.Enabled = m.viper.GetBool("remediation.enabled")
	cfg.Remediation.SafeProcesses = m.viper.GetStringSlice("remediation.safe_processes")
	cfg.Remediation.CriticalProcesses = m.viper.GetStringSlice("remediation.critical_processes")
	cfg.Remediation.CPUKillPercent = m.viper.GetFloat64("remediation.cpu_kill_percent")
	cfg.Remediation.MemoryKillPercent = m.viper.GetFloat64("remediation.memory_kill_percent")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.BufferSize = m.viper.GetInt("logging.buffer_size")
	cfg.Logging.FlushIntervalSeconds = m.viper.GetInt("logging.flush_interval_seconds")

	// Export
	cfg.Export.Dir = m.viper.GetString("export.dir")

	// Rate limit
	cfg.RateLimit.ActionsPerMinute = m.viper.GetInt("ratelimit.actions_per_minute")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for common knobs.
func (m *viperConfigManager) applyEnvOverrides() {
	// Database path from environment
	if path := os.Getenv("HOSTPULSE_DB_PATH"); path != "" {
		m.config.Database.Path = path
	}

	// Model artifact dir from environment
	if dir := os.Getenv("HOSTPULSE_MODEL_DIR"); dir != "" {
		m.config.Model.Dir = dir
	}

	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("HOSTPULSE_PORT"); portEnv != "" {
		if port, err := strconv.Atoi(portEnv); err == nil {
			m.config.Server.Port = port
		}
	}

	// Sampling interval from environment - only override if explicitly set
	if intervalEnv := os.Getenv("HOSTPULSE_SAMPLE_INTERVAL"); intervalEnv != "" {
		if interval, err := strconv.Atoi(intervalEnv); err == nil && interval > 0 {
			m.config.Sampling.IntervalSeconds = interval
		}
	}
}
