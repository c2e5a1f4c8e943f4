package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8899
	cfg.Server.ReadTimeout = 15
	cfg.Server.WriteTimeout = 15
	cfg.Server.ShutdownTimeout = 10
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	// Database defaults
	cfg.Database.Path = "data/telemetry.db"
	cfg.Database.RetentionDays = 30
	cfg.Database.BusyTimeoutMS = 5000

	// Sampling defaults
	cfg.Sampling.IntervalSeconds = 2
	cfg.Sampling.TopProcesses = 10
	cfg.Sampling.MinRecords = 20
	cfg.Sampling.RecentWindow = 10
	cfg.Sampling.DiskPath = "/"

	// Threshold defaults
	cfg.Thresholds.CPUHigh = 80
	cfg.Thresholds.MemoryHigh = 85
	cfg.Thresholds.DiskHigh = 90
	cfg.Thresholds.MemoryWarn = 80
	cfg.Thresholds.DiskWarn = 85
	cfg.Thresholds.FutureCPUHigh = 85
	cfg.Thresholds.FutureMemoryHigh = 90
	cfg.Thresholds.FutureStressHigh = 85
	cfg.Thresholds.CriticalStress = 90
	cfg.Thresholds.ProcessCPUMin = 20
	cfg.Thresholds.ProcessMemoryMB = 500
	cfg.Thresholds.HeavyAppMemoryMB = 1000
	cfg.Thresholds.ProcessCountHigh = 100

	// Model defaults
	cfg.Model.Dir = "models"
	cfg.Model.HistoryDays = 7
	cfg.Model.RetrainCadence = 20
	cfg.Model.MinTrainRows = 10
	cfg.Model.MinCleanRows = 5
	cfg.Model.Trees = 50
	cfg.Model.MaxDepth = 10
	cfg.Model.Seed = 42

	// Suggestion defaults
	cfg.Suggestions.MaxLines = 8

	// Remediation defaults
	cfg.Remediation.Enabled = false
	cfg.Remediation.SafeProcesses = []string{
		"chrome", "firefox", "edge", "safari", "spotify", "steam",
		"discord", "slack", "teams", "photoshop", "illustrator", "premiere",
	}
	cfg.Remediation.CriticalProcesses = []string{
		"system", "kernel", "init", "systemd", "explorer.exe", "finder",
		"dwm.exe", "winlogon.exe", "csrss.exe", "smss.exe", "wininit.exe",
		"services.exe", "lsass.exe", "svchost.exe", "hostpulse",
	}
	cfg.Remediation.CPUKillPercent = 50
	cfg.Remediation.MemoryKillPercent = 20

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.File = "logs/hostpulse.log"
	cfg.Logging.MaxSizeMB = 50
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 14
	cfg.Logging.BufferSize = 256
	cfg.Logging.FlushIntervalSeconds = 5

	// Export defaults
	cfg.Export.Dir = "exports"

	// Rate limit defaults
	cfg.RateLimit.ActionsPerMinute = 10

	return cfg
}
