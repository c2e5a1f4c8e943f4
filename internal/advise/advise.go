// Package advise turns a telemetry snapshot into plain-language
// optimization suggestions. Rules fire in a fixed order and the output is
// capped, so the most pressing advice always survives the cut.
package advise

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/hostpulse/hostpulse/internal/db"
)

// appAlternatives pairs process name fragments with lighter substitutes.
// Order matters: a process emits at most one line, for the first fragment
// it matches while holding more than the heavy-app memory floor.
var appAlternatives = []struct {
	fragment string
	advice   string
}{
	{"chrome", "Consider using Firefox or Edge for lower memory usage"},
	{"firefox", "Consider using Chrome or Edge for better performance"},
	{"code", "Consider using VS Code Insiders or Sublime Text"},
	{"slack", "Consider using web version or Discord"},
	{"teams", "Consider using web version"},
	{"spotify", "Consider using web player or lighter music apps"},
	{"discord", "Consider using web version or lighter chat apps"},
	{"steam", "Close when not gaming to save resources"},
	{"origin", "Close when not gaming to save resources"},
	{"photoshop", "Consider using GIMP or Canva for lighter tasks"},
	{"illustrator", "Consider using Inkscape or Figma"},
	{"premiere", "Consider using DaVinci Resolve or lighter video editors"},
}

// allClear is emitted when no rule fires.
var allClear = []string{
	"System is running well! No immediate optimizations needed.",
	"Consider restarting your computer if it's been running for days.",
	"Keep your system updated for optimal performance.",
}

// Options tune the suggestion rules. Zero values fall back to the
// standard cutoffs.
type Options struct {
	MaxLines         int
	CPUHigh          float64
	MemoryHigh       float64
	DiskHigh         float64
	MemoryWarn       float64 // platform hint gate
	DiskWarn         float64 // platform hint gate
	ProcessCPUMin    float64 // per-process CPU callout floor
	ProcessMemoryMB  float64 // per-process memory callout floor
	HeavyAppMemoryMB float64 // alternative suggestion floor
	ProcessCountHigh int
	Platform         string // overrides runtime.GOOS, for tests
}

func (o *Options) withDefaults() {
	if o.MaxLines <= 0 {
		o.MaxLines = 8
	}
	if o.CPUHigh <= 0 {
		o.CPUHigh = 80
	}
	if o.MemoryHigh <= 0 {
		o.MemoryHigh = 85
	}
	if o.DiskHigh <= 0 {
		o.DiskHigh = 90
	}
	if o.MemoryWarn <= 0 {
		o.MemoryWarn = 80
	}
	if o.DiskWarn <= 0 {
		o.DiskWarn = 85
	}
	if o.ProcessCPUMin <= 0 {
		o.ProcessCPUMin = 20
	}
	if o.ProcessMemoryMB <= 0 {
		o.ProcessMemoryMB = 500
	}
	if o.HeavyAppMemoryMB <= 0 {
		o.HeavyAppMemoryMB = 1000
	}
	if o.ProcessCountHigh <= 0 {
		o.ProcessCountHigh = 100
	}
	if o.Platform == "" {
		o.Platform = runtime.GOOS
	}
}

// Advisor applies the suggestion rules.
type Advisor struct {
	opts Options
}

// New returns an advisor with the given options.
func New(opts Options) *Advisor {
	opts.withDefaults()
	return &Advisor{opts: opts}
}

// Unavailable is the fallback when telemetry cannot be read.
func Unavailable() []string {
	return []string{"Unable to generate suggestions at this time."}
}

// Suggestions builds up to MaxLines recommendations for the snapshot.
// When nothing needs attention it returns the all-clear lines instead of
// an empty list.
func (a *Advisor) Suggestions(sys *db.SystemRecord, procs []db.ProcessRecord) []string {
	if sys == nil {
		return Unavailable()
	}
	o := a.opts
	var out []string

	if sys.CPUPercent > o.CPUHigh {
		out = append(out, "High CPU usage detected. Consider closing unnecessary applications.")
		if top := heaviestAbove(procs, o.ProcessCPUMin, func(p db.ProcessRecord) float64 { return p.CPUPercent }); top != nil {
			out = append(out, fmt.Sprintf("'%s' is using %.1f%% CPU.", top.Name, top.CPUPercent))
		}
	}

	if sys.MemoryPercent > o.MemoryHigh {
		out = append(out, "High memory usage detected. Consider closing memory-intensive applications.")
		if top := heaviestAbove(procs, o.ProcessMemoryMB, func(p db.ProcessRecord) float64 { return p.MemoryMB }); top != nil {
			out = append(out, fmt.Sprintf("'%s' is using %.0f MB RAM.", top.Name, top.MemoryMB))
		}
	}

	if sys.DiskPercent > o.DiskHigh {
		out = append(out,
			"Disk space is running low. Consider cleaning temporary files.",
			"Run disk cleanup or remove unused applications.")
	}

	for _, p := range procs {
		name := strings.ToLower(p.Name)
		for _, alt := range appAlternatives {
			if strings.Contains(name, alt.fragment) && p.MemoryMB > o.HeavyAppMemoryMB {
				out = append(out, fmt.Sprintf("%s: %s", p.Name, alt.advice))
				break
			}
		}
	}

	if len(procs) > o.ProcessCountHigh {
		out = append(out, "Many processes running. Consider disabling startup programs.")
	}

	out = a.platformHints(sys, out)

	if len(out) == 0 {
		out = append(out, allClear...)
	}
	if len(out) > o.MaxLines {
		out = out[:o.MaxLines]
	}
	return out
}

// platformHints appends OS-specific cleanup advice when memory or disk sit
// above the warn gates.
func (a *Advisor) platformHints(sys *db.SystemRecord, out []string) []string {
	o := a.opts
	switch o.Platform {
	case "windows":
		if sys.MemoryPercent > o.MemoryWarn {
			out = append(out,
				"Run Windows Memory Diagnostic to check for memory issues.",
				"Disable visual effects in Performance Options.")
		}
		if sys.DiskPercent > o.DiskWarn {
			out = append(out,
				"Run Disk Cleanup to free up space.",
				"Consider enabling Storage Sense for automatic cleanup.")
		}
	case "darwin":
		if sys.MemoryPercent > o.MemoryWarn {
			out = append(out,
				"Check Activity Monitor for memory pressure.",
				"Consider reducing visual effects in Accessibility settings.")
		}
		if sys.DiskPercent > o.DiskWarn {
			out = append(out,
				"Use 'About This Mac > Storage > Optimize' for cleanup.",
				"Empty Trash and clear Downloads folder.")
		}
	default:
		if sys.MemoryPercent > o.MemoryWarn {
			out = append(out,
				"Consider using a lighter desktop environment.",
				"Check for memory leaks with 'htop' or 'free -h'.")
		}
		if sys.DiskPercent > o.DiskWarn {
			out = append(out,
				"Use 'sudo apt autoremove' to clean packages (Ubuntu/Debian).",
				"Clear package cache and temporary files.")
		}
	}
	return out
}

// heaviestAbove returns the process with the largest metric value among
// those above the floor, or nil when none qualify.
func heaviestAbove(procs []db.ProcessRecord, floor float64, metric func(db.ProcessRecord) float64) *db.ProcessRecord {
	var top *db.ProcessRecord
	for i := range procs {
		v := metric(procs[i])
		if v <= floor {
			continue
		}
		if top == nil || v > metric(*top) {
			top = &procs[i]
		}
	}
	return top
}
