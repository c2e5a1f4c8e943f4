package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// percentField is a 0-100 bounded threshold.
type percentField struct {
	name  string
	value float64
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.ReadTimeout < 1 {
		errs = append(errs, &ValidationError{
			Field:   "server.read_timeout",
			Message: fmt.Sprintf("read_timeout must be at least 1 second, got %d", c.Server.ReadTimeout),
		})
	}

	if c.Server.WriteTimeout < 1 {
		errs = append(errs, &ValidationError{
			Field:   "server.write_timeout",
			Message: fmt.Sprintf("write_timeout must be at least 1 second, got %d", c.Server.WriteTimeout),
		})
	}

	// Validate database configuration
	if c.Database.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.path",
			Message: "database path is required",
		})
	}

	if c.Database.RetentionDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "database.retention_days",
			Message: fmt.Sprintf("retention days must be at least 1, got %d", c.Database.RetentionDays),
		})
	}

	// Validate sampling configuration
	if c.Sampling.IntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "sampling.interval_seconds",
			Message: fmt.Sprintf("interval must be at least 1 second, got %d", c.Sampling.IntervalSeconds),
		})
	}

	if c.Sampling.TopProcesses < 1 {
		errs = append(errs, &ValidationError{
			Field:   "sampling.top_processes",
			Message: fmt.Sprintf("top_processes must be at least 1, got %d", c.Sampling.TopProcesses),
		})
	}

	if c.Sampling.RecentWindow < 2 {
		errs = append(errs, &ValidationError{
			Field:   "sampling.recent_window",
			Message: fmt.Sprintf("recent_window must be at least 2 to derive trends, got %d", c.Sampling.RecentWindow),
		})
	}

	// Validate thresholds: all percentage cutoffs must sit in 0-100
	percents := []percentField{
		{"thresholds.cpu_high", c.Thresholds.CPUHigh},
		{"thresholds.memory_high", c.Thresholds.MemoryHigh},
		{"thresholds.disk_high", c.Thresholds.DiskHigh},
		{"thresholds.memory_warn", c.Thresholds.MemoryWarn},
		{"thresholds.disk_warn", c.Thresholds.DiskWarn},
		{"thresholds.future_cpu_high", c.Thresholds.FutureCPUHigh},
		{"thresholds.future_memory_high", c.Thresholds.FutureMemoryHigh},
		{"thresholds.future_stress_high", c.Thresholds.FutureStressHigh},
		{"thresholds.critical_stress", c.Thresholds.CriticalStress},
	}
	for _, p := range percents {
		if p.value < 0 || p.value > 100 {
			errs = append(errs, &ValidationError{
				Field:   p.name,
				Message: fmt.Sprintf("threshold must be between 0 and 100, got %.1f", p.value),
			})
		}
	}

	if c.Thresholds.HeavyAppMemoryMB < 0 {
		errs = append(errs, &ValidationError{
			Field:   "thresholds.heavy_app_memory_mb",
			Message: fmt.Sprintf("heavy_app_memory_mb cannot be negative, got %.0f", c.Thresholds.HeavyAppMemoryMB),
		})
	}

	// Validate model configuration
	if c.Model.Dir == "" {
		errs = append(errs, &ValidationError{
			Field:   "model.dir",
			Message: "model artifact directory is required",
		})
	}

	if c.Model.HistoryDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "model.history_days",
			Message: fmt.Sprintf("history_days must be at least 1, got %d", c.Model.HistoryDays),
		})
	}

	if c.Model.RetrainCadence < 1 {
		errs = append(errs, &ValidationError{
			Field:   "model.retrain_cadence",
			Message: fmt.Sprintf("retrain_cadence must be at least 1, got %d", c.Model.RetrainCadence),
		})
	}

	if c.Model.MinTrainRows < 2 {
		errs = append(errs, &ValidationError{
			Field:   "model.min_train_rows",
			Message: fmt.Sprintf("min_train_rows must be at least 2, got %d", c.Model.MinTrainRows),
		})
	}

	if c.Model.MinCleanRows < 1 {
		errs = append(errs, &ValidationError{
			Field:   "model.min_clean_rows",
			Message: fmt.Sprintf("min_clean_rows must be at least 1, got %d", c.Model.MinCleanRows),
		})
	}

	if c.Model.MinCleanRows >= c.Model.MinTrainRows {
		errs = append(errs, &ValidationError{
			Field:   "model.min_clean_rows",
			Message: fmt.Sprintf("min_clean_rows (%d) must be below min_train_rows (%d): targets drop one row", c.Model.MinCleanRows, c.Model.MinTrainRows),
		})
	}

	if c.Model.Trees < 1 {
		errs = append(errs, &ValidationError{
			Field:   "model.trees",
			Message: fmt.Sprintf("trees must be at least 1, got %d", c.Model.Trees),
		})
	}

	if c.Model.MaxDepth < 1 {
		errs = append(errs, &ValidationError{
			Field:   "model.max_depth",
			Message: fmt.Sprintf("max_depth must be at least 1, got %d", c.Model.MaxDepth),
		})
	}

	// Validate suggestion configuration
	if c.Suggestions.MaxLines < 1 {
		errs = append(errs, &ValidationError{
			Field:   "suggestions.max_lines",
			Message: fmt.Sprintf("max_lines must be at least 1, got %d", c.Suggestions.MaxLines),
		})
	}

	// Validate remediation configuration
	if c.Remediation.Enabled && len(c.Remediation.CriticalProcesses) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "remediation.critical_processes",
			Message: "critical process deny list cannot be empty when remediation is enabled",
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if c.Logging.BufferSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "logging.buffer_size",
			Message: fmt.Sprintf("buffer_size must be at least 1, got %d", c.Logging.BufferSize),
		})
	}

	// Validate rate limit configuration
	if c.RateLimit.ActionsPerMinute < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ratelimit.actions_per_minute",
			Message: fmt.Sprintf("actions_per_minute must be at least 1, got %d", c.RateLimit.ActionsPerMinute),
		})
	}

	return errs
}
