package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics holds system-wide and process resource usage.
type SystemMetrics struct {
	Timestamp time.Time `json:"timestamp"`

	// CPU
	CPUModel   string  `json:"cpu_model"`
	CPUCores   int     `json:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent"`

	// Memory (in MB)
	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	// Disk (in GB) of the filesystem holding DiskPath
	DiskPath    string  `json:"disk_path"`
	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`

	// Load Average (Unix)
	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	// This process
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
}

// Warning is a resource figure above its threshold.
type Warning struct {
	Type    string  // "memory", "disk", "load"
	Message string
	Value   float64
	Limit   float64
}

// Thresholds above which Warnings reports a figure.
type Thresholds struct {
	MemPercent  float64
	DiskPercent float64
	// LoadPerCPU is compared with the 5 minute load divided by the thread count.
	LoadPerCPU float64
}

// DefaultThresholds returns the thresholds used by doctor.
func DefaultThresholds() Thresholds {
	return Thresholds{MemPercent: 90, DiskPercent: 90, LoadPerCPU: 2}
}

// Warnings compares m with t. Zero thresholds are not checked.
func (m SystemMetrics) Warnings(t Thresholds) []Warning {
	var out []Warning
	if t.MemPercent > 0 && m.MemPercent > t.MemPercent {
		out = append(out, Warning{
			Type:    "memory",
			Message: fmt.Sprintf("memory %.0f%% used", m.MemPercent),
			Value:   m.MemPercent,
			Limit:   t.MemPercent,
		})
	}
	if t.DiskPercent > 0 && m.DiskPercent > t.DiskPercent {
		out = append(out, Warning{
			Type:    "disk",
			Message: fmt.Sprintf("disk holding %s %.0f%% used", m.DiskPath, m.DiskPercent),
			Value:   m.DiskPercent,
			Limit:   t.DiskPercent,
		})
	}
	if t.LoadPerCPU > 0 && m.CPUThreads > 0 {
		perCPU := m.LoadAvg5 / float64(m.CPUThreads)
		if perCPU > t.LoadPerCPU {
			out = append(out, Warning{
				Type:    "load",
				Message: fmt.Sprintf("load average %.2f on %d threads", m.LoadAvg5, m.CPUThreads),
				Value:   perCPU,
				Limit:   t.LoadPerCPU,
			})
		}
	}
	return out
}

// SystemMetricsCollector collects system-wide statistics. CPU usage is the
// delta between two collections, so the first one reports zero.
type SystemMetricsCollector struct {
	mu           sync.Mutex
	diskPath     string
	lastCPUTotal float64
	lastCPUIdle  float64

	infoCollected bool
	cpuModel      string
	cpuCores      int
	cpuThreads    int
}

// NewSystemMetricsCollector creates a collector reporting the disk that
// holds diskPath, or the root filesystem when diskPath is empty.
func NewSystemMetricsCollector(diskPath string) *SystemMetricsCollector {
	if diskPath == "" {
		diskPath = rootDiskPath()
	}
	return &SystemMetricsCollector{diskPath: diskPath}
}

// Collect gathers current statistics. Figures the platform cannot provide
// are left at zero.
func (c *SystemMetricsCollector) Collect() SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SystemMetrics{Timestamp: time.Now()}
	c.collectHardwareInfo(&stats)
	c.collectMemoryInfo(&stats)
	c.collectCPUInfo(&stats)
	c.collectDiskInfo(&stats)
	c.collectLoadAvg(&stats)
	collectProcessInfo(&stats)
	return stats
}

func (c *SystemMetricsCollector) collectMemoryInfo(stats *SystemMetrics) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	stats.MemTotalMB = float64(vm.Total) / 1024 / 1024
	stats.MemUsedMB = float64(vm.Used) / 1024 / 1024
	stats.MemPercent = vm.UsedPercent
}

func (c *SystemMetricsCollector) collectCPUInfo(stats *SystemMetrics) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idleTime := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		totalDelta := total - c.lastCPUTotal
		idleDelta := idleTime - c.lastCPUIdle
		if totalDelta > 0 {
			stats.CPUPercent = (1 - idleDelta/totalDelta) * 100
		}
	}

	c.lastCPUTotal = total
	c.lastCPUIdle = idleTime
}

// collectDiskInfo walks up from the configured path to the nearest existing
// directory, so a store file that is not created yet still reports its disk.
func (c *SystemMetricsCollector) collectDiskInfo(stats *SystemMetrics) {
	path := existingAncestor(c.diskPath)
	stats.DiskPath = path
	usage, err := disk.Usage(path)
	if err != nil {
		return
	}
	stats.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	stats.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	stats.DiskPercent = usage.UsedPercent
}

func (c *SystemMetricsCollector) collectLoadAvg(stats *SystemMetrics) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	stats.LoadAvg1 = avg.Load1
	stats.LoadAvg5 = avg.Load5
	stats.LoadAvg15 = avg.Load15
}

func (c *SystemMetricsCollector) collectHardwareInfo(stats *SystemMetrics) {
	if !c.infoCollected {
		if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.Counts(false); err == nil && cores > 0 {
			c.cpuCores = cores
		}
		if threads, err := cpu.Counts(true); err == nil && threads > 0 {
			c.cpuThreads = threads
		}
		c.infoCollected = true
	}
	stats.CPUModel = c.cpuModel
	stats.CPUCores = c.cpuCores
	stats.CPUThreads = c.cpuThreads
}

func collectProcessInfo(stats *SystemMetrics) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.Goroutines = runtime.NumGoroutine()
	stats.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	stats.NumGC = ms.NumGC
}

func existingAncestor(path string) string {
	for p := filepath.Clean(path); ; {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return rootDiskPath()
		}
		p = parent
	}
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
