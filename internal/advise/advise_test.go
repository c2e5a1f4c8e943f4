package advise

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/hostpulse/hostpulse/internal/db"
)

func calmSystem() *db.SystemRecord {
	return &db.SystemRecord{CPUPercent: 30, MemoryPercent: 40, DiskPercent: 50}
}

func TestSuggestionsEverythingFiringCapsAtEight(t *testing.T) {
	a := New(Options{Platform: "linux"})
	sys := &db.SystemRecord{CPUPercent: 95, MemoryPercent: 95, DiskPercent: 95}

	procs := []db.ProcessRecord{
		{Name: "chrome.exe", CPUPercent: 50, MemoryPercent: 40, MemoryMB: 2000},
	}
	for i := 0; i < 119; i++ {
		procs = append(procs, db.ProcessRecord{Name: fmt.Sprintf("idle-%d", i), CPUPercent: 0.1, MemoryMB: 5})
	}

	got := a.Suggestions(sys, procs)
	want := []string{
		"High CPU usage detected. Consider closing unnecessary applications.",
		"'chrome.exe' is using 50.0% CPU.",
		"High memory usage detected. Consider closing memory-intensive applications.",
		"'chrome.exe' is using 2000 MB RAM.",
		"Disk space is running low. Consider cleaning temporary files.",
		"Run disk cleanup or remove unused applications.",
		"chrome.exe: Consider using Firefox or Edge for lower memory usage",
		"Many processes running. Consider disabling startup programs.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("suggestions mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestSuggestionsAllClear(t *testing.T) {
	a := New(Options{Platform: "linux"})
	got := a.Suggestions(calmSystem(), []db.ProcessRecord{{Name: "sshd", CPUPercent: 0.2, MemoryMB: 10}})
	want := []string{
		"System is running well! No immediate optimizations needed.",
		"Consider restarting your computer if it's been running for days.",
		"Keep your system updated for optimal performance.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("all-clear mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestSuggestionsPlatformHints(t *testing.T) {
	// Memory and disk sit above the warn gates but below the generic
	// rules, so only the platform lines fire.
	sys := &db.SystemRecord{CPUPercent: 30, MemoryPercent: 85, DiskPercent: 88}

	cases := []struct {
		platform string
		want     []string
	}{
		{
			platform: "windows",
			want: []string{
				"Run Windows Memory Diagnostic to check for memory issues.",
				"Disable visual effects in Performance Options.",
				"Run Disk Cleanup to free up space.",
				"Consider enabling Storage Sense for automatic cleanup.",
			},
		},
		{
			platform: "darwin",
			want: []string{
				"Check Activity Monitor for memory pressure.",
				"Consider reducing visual effects in Accessibility settings.",
				"Use 'About This Mac > Storage > Optimize' for cleanup.",
				"Empty Trash and clear Downloads folder.",
			},
		},
		{
			platform: "linux",
			want: []string{
				"Consider using a lighter desktop environment.",
				"Check for memory leaks with 'htop' or 'free -h'.",
				"Use 'sudo apt autoremove' to clean packages (Ubuntu/Debian).",
				"Clear package cache and temporary files.",
			},
		},
	}

	for _, tc := range cases {
		a := New(Options{Platform: tc.platform})
		got := a.Suggestions(sys, nil)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s hints mismatch:\ngot  %q\nwant %q", tc.platform, got, tc.want)
		}
	}
}

func TestSuggestionsHeavyAppFloor(t *testing.T) {
	a := New(Options{Platform: "linux"})
	procs := []db.ProcessRecord{{Name: "chrome", CPUPercent: 5, MemoryMB: 800}}

	got := a.Suggestions(calmSystem(), procs)
	if got[0] != "System is running well! No immediate optimizations needed." {
		t.Fatalf("a sub-floor heavy app produced advice: %q", got)
	}
}

func TestSuggestionsCalloutPicksHeaviestProcess(t *testing.T) {
	a := New(Options{Platform: "linux"})
	sys := &db.SystemRecord{CPUPercent: 85, MemoryPercent: 50, DiskPercent: 50}
	procs := []db.ProcessRecord{
		{Name: "indexer", CPUPercent: 25, MemoryMB: 100},
		{Name: "transcoder", CPUPercent: 60, MemoryMB: 200},
	}

	got := a.Suggestions(sys, procs)
	want := []string{
		"High CPU usage detected. Consider closing unnecessary applications.",
		"'transcoder' is using 60.0% CPU.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("callout mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestSuggestionsNoCalloutBelowFloor(t *testing.T) {
	a := New(Options{Platform: "linux"})
	sys := &db.SystemRecord{CPUPercent: 85, MemoryPercent: 50, DiskPercent: 50}
	procs := []db.ProcessRecord{{Name: "sshd", CPUPercent: 10, MemoryMB: 20}}

	got := a.Suggestions(sys, procs)
	if len(got) != 1 || got[0] != "High CPU usage detected. Consider closing unnecessary applications." {
		t.Fatalf("expected only the generic CPU line, got %q", got)
	}
}

func TestSuggestionsMatchEmitsOncePerProcess(t *testing.T) {
	a := New(Options{Platform: "linux"})
	// "slack" also contains no other fragment; "vs code helper" matches
	// only "code". One line per heavy process.
	procs := []db.ProcessRecord{
		{Name: "Slack Helper", CPUPercent: 2, MemoryMB: 1500},
		{Name: "VS Code Helper", CPUPercent: 2, MemoryMB: 1200},
	}

	got := a.Suggestions(calmSystem(), procs)
	want := []string{
		"Slack Helper: Consider using web version or Discord",
		"VS Code Helper: Consider using VS Code Insiders or Sublime Text",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("alternatives mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestUnavailable(t *testing.T) {
	a := New(Options{Platform: "linux"})
	got := a.Suggestions(nil, nil)
	if len(got) != 1 || got[0] != "Unable to generate suggestions at this time." {
		t.Fatalf("nil snapshot fallback = %q", got)
	}
}
