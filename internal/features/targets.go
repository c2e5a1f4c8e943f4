package features

import "github.com/hostpulse/hostpulse/internal/db"

// TargetThresholds are the cutoffs that label a snapshot's successor as a
// slowdown.
type TargetThresholds struct {
	FutureCPU    float64
	FutureMemory float64
	FutureStress float64
}

// DefaultTargetThresholds returns the standard slowdown-label cutoffs.
func DefaultTargetThresholds() TargetThresholds {
	return TargetThresholds{FutureCPU: 85, FutureMemory: 90, FutureStress: 85}
}

// Target holds the supervised outcomes for one feature row: what the host
// looked like one snapshot later.
type Target struct {
	FutureCPU    float64
	FutureMemory float64
	FutureStress float64
	SlowdownRisk float64 // 1 when the successor crosses any cutoff
}

// Targets pairs each snapshot with its successor's outcomes. The last
// snapshot has no successor, so len(result) == len(rows)-1; fewer than two
// snapshots yield nil.
func Targets(rows []*db.SystemRecord, th TargetThresholds) []Target {
	if len(rows) < 2 {
		return nil
	}
	out := make([]Target, len(rows)-1)
	for i := 0; i < len(rows)-1; i++ {
		next := rows[i+1]
		t := Target{
			FutureCPU:    next.CPUPercent,
			FutureMemory: next.MemoryPercent,
			FutureStress: Stress(next.CPUPercent, next.MemoryPercent, next.DiskPercent),
		}
		if t.FutureCPU > th.FutureCPU || t.FutureMemory > th.FutureMemory || t.FutureStress > th.FutureStress {
			t.SlowdownRisk = 1
		}
		out[i] = t
	}
	return out
}
