package diagnostics

import (
	"path/filepath"
	"testing"
)

func TestCollect_ReturnsMetrics(t *testing.T) {
	t.Parallel()
	c := NewSystemMetricsCollector("")
	m := c.Collect()

	// Memory should be > 0 on any real system
	if m.MemTotalMB <= 0 {
		t.Error("expected MemTotalMB > 0")
	}
	if m.MemPercent < 0 || m.MemPercent > 100 {
		t.Errorf("MemPercent out of range: %f", m.MemPercent)
	}
	if m.DiskTotalGB <= 0 {
		t.Error("expected DiskTotalGB > 0")
	}
	if m.DiskPercent < 0 || m.DiskPercent > 100 {
		t.Errorf("DiskPercent out of range: %f", m.DiskPercent)
	}
	if m.Goroutines <= 0 {
		t.Error("expected at least one goroutine")
	}
	if m.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestCollect_CPUInfoCached(t *testing.T) {
	t.Parallel()
	c := NewSystemMetricsCollector("")

	m1 := c.Collect()
	m2 := c.Collect()

	if m1.CPUModel != m2.CPUModel {
		t.Errorf("CPU model changed between calls: %q vs %q", m1.CPUModel, m2.CPUModel)
	}
	if m1.CPUThreads != m2.CPUThreads {
		t.Errorf("CPU threads changed between calls: %d vs %d", m1.CPUThreads, m2.CPUThreads)
	}
	if m2.CPUPercent < 0 || m2.CPUPercent > 100 {
		t.Errorf("CPUPercent out of range: %f", m2.CPUPercent)
	}
}

func TestCollect_DiskOfMissingStorePath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := NewSystemMetricsCollector(filepath.Join(dir, ".elastask", "tasks.db"))

	m := c.Collect()
	if m.DiskPath != dir {
		t.Errorf("DiskPath = %q, want nearest existing directory %q", m.DiskPath, dir)
	}
	if m.DiskTotalGB <= 0 {
		t.Error("expected disk figures for the temp directory")
	}
}

func TestWarnings(t *testing.T) {
	t.Parallel()
	m := SystemMetrics{
		MemPercent:  95,
		DiskPercent: 50,
		DiskPath:    "/data",
		LoadAvg5:    20,
		CPUThreads:  4,
	}

	warnings := m.Warnings(DefaultThresholds())
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings, want memory and load: %+v", len(warnings), warnings)
	}
	if warnings[0].Type != "memory" || warnings[0].Limit != 90 {
		t.Errorf("first warning = %+v", warnings[0])
	}
	if warnings[1].Type != "load" || warnings[1].Value != 5 {
		t.Errorf("second warning = %+v", warnings[1])
	}

	if got := m.Warnings(Thresholds{}); len(got) != 0 {
		t.Errorf("zero thresholds should disable checks, got %+v", got)
	}

	m.DiskPercent = 99
	warnings = m.Warnings(Thresholds{DiskPercent: 90})
	if len(warnings) != 1 || warnings[0].Type != "disk" {
		t.Errorf("warnings = %+v", warnings)
	}
}

func TestExistingAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if got := existingAncestor(dir); got != dir {
		t.Errorf("existingAncestor(%q) = %q", dir, got)
	}
	if got := existingAncestor(filepath.Join(dir, "a", "b", "c.db")); got != dir {
		t.Errorf("existingAncestor(missing) = %q, want %q", got, dir)
	}
}
