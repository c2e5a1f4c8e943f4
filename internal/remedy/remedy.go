// Package remedy executes the riskier side of optimization: terminating
// processes, clearing platform caches and scoring host health. Every
// mutating entry point honors the enabled flag and the critical-process
// deny list.
package remedy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/db"
)

// ErrDisabled is returned by mutating operations while remediation is
// switched off.
var ErrDisabled = errors.New("remediation is disabled")

// ErrProtected is returned when a kill targets a deny-listed process.
var ErrProtected = errors.New("process is protected")

// Options tune remediation behavior. Empty lists fall back to the
// standard allow and deny sets.
type Options struct {
	Enabled           bool
	SafeProcesses     []string // substring allow list for bulk kills
	CriticalProcesses []string // substring deny list, never killed
	CPUKillPercent    float64
	MemoryKillPercent float64
	KillWait          time.Duration // grace period before a force kill
	SettleDelay       time.Duration // pause before measuring freed memory
	CacheTimeout      time.Duration // per cache command
	Platform          string        // overrides runtime.GOOS, for tests
}

func (o *Options) withDefaults() {
	if len(o.SafeProcesses) == 0 {
		o.SafeProcesses = []string{
			"chrome", "firefox", "edge", "safari",
			"spotify", "steam", "discord", "slack", "teams",
			"photoshop", "illustrator", "premiere",
		}
	}
	if len(o.CriticalProcesses) == 0 {
		o.CriticalProcesses = []string{
			"system", "kernel", "init", "systemd", "explorer.exe", "finder",
			"dwm.exe", "winlogon.exe", "csrss.exe", "smss.exe", "wininit.exe",
			"services.exe", "lsass.exe", "svchost.exe", "hostpulse",
		}
	}
	if o.CPUKillPercent <= 0 {
		o.CPUKillPercent = 50
	}
	if o.MemoryKillPercent <= 0 {
		o.MemoryKillPercent = 20
	}
	if o.KillWait <= 0 {
		o.KillWait = 5 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 2 * time.Second
	}
	if o.CacheTimeout <= 0 {
		o.CacheTimeout = 30 * time.Second
	}
	if o.Platform == "" {
		o.Platform = runtime.GOOS
	}
}

// OptimizeResult summarizes one optimize run.
type OptimizeResult struct {
	KilledProcesses []string `json:"killed_processes"`
	MemoryFreedMB   float64  `json:"memory_freed_mb"`
	CacheCleared    bool     `json:"cache_cleared"`
}

// Remediator performs kill and cleanup actions.
type Remediator struct {
	opts Options
	log  *zap.Logger
}

// New returns a remediator with the given options.
func New(opts Options, log *zap.Logger) *Remediator {
	opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Remediator{opts: opts, log: log}
}

// TerminateProcess ends one process by PID: a polite terminate, a grace
// period, then a force kill. Deny-listed processes are refused with
// ErrProtected. Returns the process name when it could be resolved.
func (r *Remediator) TerminateProcess(ctx context.Context, pid int32) (string, error) {
	if !r.opts.Enabled {
		return "", ErrDisabled
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	name, _ := p.NameWithContext(ctx)
	if r.denied(name) {
		return name, fmt.Errorf("%w: %s", ErrProtected, name)
	}
	return name, r.terminate(ctx, p, name)
}

// Optimize kills resource-heavy allow-listed processes, clears platform
// caches, then reports how much memory the host got back.
func (r *Remediator) Optimize(ctx context.Context) (*OptimizeResult, error) {
	if !r.opts.Enabled {
		return nil, ErrDisabled
	}
	res := &OptimizeResult{}

	var initialMB float64
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		initialMB = float64(vm.Used) / (1 << 20)
	}

	res.KilledProcesses = r.killResourceHeavy(ctx)

	if err := r.ClearCaches(ctx); err != nil {
		r.log.Warn("cache clear failed", zap.Error(err))
	} else {
		res.CacheCleared = true
	}

	// Give the kernel time to reclaim pages from the killed processes
	// before measuring.
	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case <-time.After(r.opts.SettleDelay):
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && initialMB > 0 {
		if freed := initialMB - float64(vm.Used)/(1<<20); freed > 0 {
			res.MemoryFreedMB = freed
		}
	}

	r.log.Info("optimize run complete",
		zap.Int("killed", len(res.KilledProcesses)),
		zap.Bool("cache_cleared", res.CacheCleared),
		zap.Float64("memory_freed_mb", res.MemoryFreedMB))
	return res, nil
}

// ClearCaches removes temporary files for the host platform. Cache
// commands may exit nonzero on busy files; only a failure to run them at
// all is an error.
func (r *Remediator) ClearCaches(ctx context.Context) error {
	if !r.opts.Enabled {
		return ErrDisabled
	}
	switch r.opts.Platform {
	case "windows":
		return r.clearWindowsCaches()
	case "darwin":
		return r.clearDarwinCaches(ctx)
	default:
		return r.clearLinuxCaches(ctx)
	}
}

// Score rates host health 0-100 from a snapshot, weighting CPU and memory
// headroom over disk. A missing snapshot scores the midpoint.
func Score(sys *db.SystemRecord) int {
	if sys == nil {
		return 50
	}
	cpu := headroom(sys.CPUPercent)
	memory := headroom(sys.MemoryPercent)
	disk := headroom(sys.DiskPercent)
	return int(cpu*0.4 + memory*0.4 + disk*0.2)
}

func headroom(used float64) float64 {
	if used >= 100 {
		return 0
	}
	return 100 - used
}

func (r *Remediator) killResourceHeavy(ctx context.Context) []string {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		r.log.Warn("process scan failed", zap.Error(err))
		return nil
	}

	self := int32(os.Getpid())
	var killed []string
	for _, p := range procs {
		if p.Pid < 10 || p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		cpu, _ := p.CPUPercentWithContext(ctx)
		memPct, _ := p.MemoryPercentWithContext(ctx)
		if cpu <= r.opts.CPUKillPercent && float64(memPct) <= r.opts.MemoryKillPercent {
			continue
		}
		if !r.safeToKill(name) {
			continue
		}
		if err := r.terminate(ctx, p, name); err != nil {
			r.log.Warn("optimize kill failed", zap.Int32("pid", p.Pid), zap.Error(err))
			continue
		}
		killed = append(killed, name)
	}
	return killed
}

func (r *Remediator) terminate(ctx context.Context, p *process.Process, name string) error {
	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("terminate %s (pid %d): %w", name, p.Pid, err)
	}
	if !r.waitForExit(ctx, p) {
		if err := p.KillWithContext(ctx); err != nil {
			return fmt.Errorf("force kill %s (pid %d): %w", name, p.Pid, err)
		}
	}
	r.log.Info("process terminated", zap.Int32("pid", p.Pid), zap.String("name", name))
	return nil
}

// waitForExit polls until the process is gone or the grace period runs
// out.
func (r *Remediator) waitForExit(ctx context.Context, p *process.Process) bool {
	deadline := time.Now().Add(r.opts.KillWait)
	for time.Now().Before(deadline) {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}

// safeToKill applies the deny list first, then the allow list. A process
// matching neither stays untouched.
func (r *Remediator) safeToKill(name string) bool {
	if name == "" {
		return false
	}
	if r.denied(name) {
		return false
	}
	lower := strings.ToLower(name)
	for _, frag := range r.opts.SafeProcesses {
		if strings.Contains(lower, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}

func (r *Remediator) denied(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range r.opts.CriticalProcesses {
		if strings.Contains(lower, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}

func (r *Remediator) clearWindowsCaches() error {
	dirs := []string{
		os.Getenv("TEMP"),
		os.Getenv("TMP"),
		filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local", "Temp"),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			// Files held open by other processes just stay behind.
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

func (r *Remediator) clearDarwinCaches(ctx context.Context) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	cacheDir := filepath.Join(home, "Library", "Caches")
	if _, err := os.Stat(cacheDir); err != nil {
		return nil
	}
	return r.runCacheCommand(ctx, "find", cacheDir, "-type", "f", "-delete")
}

func (r *Remediator) clearLinuxCaches(ctx context.Context) error {
	// Package cache cleanup needs privileges; a refusal is fine.
	_ = r.runCacheCommand(ctx, "sudo", "apt", "clean")

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	cacheDir := filepath.Join(home, ".cache")
	if _, err := os.Stat(cacheDir); err != nil {
		return nil
	}
	return r.runCacheCommand(ctx, "find", cacheDir, "-type", "f", "-delete")
}

func (r *Remediator) runCacheCommand(ctx context.Context, name string, args ...string) error {
	cctx, cancel := context.WithTimeout(ctx, r.opts.CacheTimeout)
	defer cancel()

	err := exec.CommandContext(cctx, name, args...).Run()
	if cctx.Err() != nil {
		return fmt.Errorf("%s: %w", name, cctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Ran but exited nonzero, typically busy files. Good enough.
		return nil
	}
	return err
}
