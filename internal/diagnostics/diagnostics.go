// Package diagnostics captures a snapshot of the machine running the bridge:
// CPU model and features, load and memory pressure and Go runtime state.
// It is logged at startup in debug mode, printed by the diag command and
// written to a debug file when the bridge stops on an error.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/rtbridge/internal/errors"
	"github.com/tphakala/rtbridge/internal/logger"
)

// CPUInfo describes the processor as reported by cpuid.
type CPUInfo struct {
	BrandName     string   `json:"brand_name" yaml:"brand_name"`
	Vendor        string   `json:"vendor" yaml:"vendor"`
	PhysicalCores int      `json:"physical_cores" yaml:"physical_cores"`
	LogicalCores  int      `json:"logical_cores" yaml:"logical_cores"`
	Features      []string `json:"features" yaml:"features"`
}

// Snapshot is a point-in-time view of the host.
type Snapshot struct {
	Time       time.Time `json:"time" yaml:"time"`
	OS         string    `json:"os" yaml:"os"`
	Arch       string    `json:"arch" yaml:"arch"`
	GoVersion  string    `json:"go_version" yaml:"go_version"`
	CPU        CPUInfo   `json:"cpu" yaml:"cpu"`
	CPUPercent float64   `json:"cpu_percent" yaml:"cpu_percent"`
	Load1      float64   `json:"load1" yaml:"load1"`
	MemTotal   uint64    `json:"mem_total" yaml:"mem_total"`
	MemUsedPct float64   `json:"mem_used_percent" yaml:"mem_used_percent"`
	SwapUsed   float64   `json:"swap_used_percent" yaml:"swap_used_percent"`
	Goroutines int       `json:"goroutines" yaml:"goroutines"`
	HeapAlloc  uint64    `json:"heap_alloc" yaml:"heap_alloc"`
	NumGC      uint32    `json:"num_gc" yaml:"num_gc"`
	// Warnings lists probes that failed. The snapshot is still usable.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// features worth knowing about for float DSP.
var features = []struct {
	name string
	id   cpuid.FeatureID
}{
	{"SSE2", cpuid.SSE2},
	{"SSE4.1", cpuid.SSE4},
	{"AVX", cpuid.AVX},
	{"AVX2", cpuid.AVX2},
	{"FMA3", cpuid.FMA3},
	{"AVX512F", cpuid.AVX512F},
	{"ASIMD", cpuid.ASIMD},
}

// CPU returns processor information from cpuid.
func CPU() CPUInfo {
	info := CPUInfo{
		BrandName:     cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	for _, f := range features {
		if cpuid.CPU.Supports(f.id) {
			info.Features = append(info.Features, f.name)
		}
	}
	return info
}

// Capture collects a snapshot. CPU utilisation is sampled over sample; a
// zero sample compares against the previous call. Probe failures are
// recorded in Warnings rather than failing the capture.
func Capture(ctx context.Context, sample time.Duration) Snapshot {
	s := Snapshot{
		Time:      time.Now(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		CPU:       CPU(),
	}

	if pct, err := cpu.PercentWithContext(ctx, sample, false); err != nil {
		s.Warnings = append(s.Warnings, "cpu: "+err.Error())
	} else if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		s.Warnings = append(s.Warnings, "load: "+err.Error())
	} else {
		s.Load1 = avg.Load1
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.Warnings = append(s.Warnings, "memory: "+err.Error())
	} else {
		s.MemTotal = vm.Total
		s.MemUsedPct = vm.UsedPercent
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err != nil {
		s.Warnings = append(s.Warnings, "swap: "+err.Error())
	} else {
		s.SwapUsed = swap.UsedPercent
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAlloc = ms.HeapAlloc
	s.NumGC = ms.NumGC

	return s
}

// Fields returns the snapshot as structured log fields.
func (s *Snapshot) Fields() []logger.Field {
	return []logger.Field{
		logger.String("cpu", s.CPU.BrandName),
		logger.Int("logical_cores", s.CPU.LogicalCores),
		logger.String("cpu_features", strings.Join(s.CPU.Features, ",")),
		logger.Float64("cpu_percent", s.CPUPercent),
		logger.Float64("load1", s.Load1),
		logger.Float64("mem_used_percent", s.MemUsedPct),
		logger.Int("goroutines", s.Goroutines),
	}
}

// String formats the snapshot for a debug file or terminal.
func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s\n", s.Time.Format(time.RFC3339))
	fmt.Fprintf(&b, "Platform: %s/%s %s\n", s.OS, s.Arch, s.GoVersion)
	fmt.Fprintf(&b, "CPU: %s (%s), %d physical / %d logical cores\n",
		s.CPU.BrandName, s.CPU.Vendor, s.CPU.PhysicalCores, s.CPU.LogicalCores)
	fmt.Fprintf(&b, "CPU Features: %s\n", strings.Join(s.CPU.Features, " "))
	fmt.Fprintf(&b, "CPU Utilization: %.2f%%\n", s.CPUPercent)
	fmt.Fprintf(&b, "Load Average (1m): %.2f\n", s.Load1)
	fmt.Fprintf(&b, "RAM: %d MiB total, %.2f%% used\n", bToMb(s.MemTotal), s.MemUsedPct)
	fmt.Fprintf(&b, "Swap Usage: %.2f%%\n", s.SwapUsed)
	fmt.Fprintf(&b, "Go Runtime: %d goroutines, HeapAlloc = %d MiB, NumGC = %d\n",
		s.Goroutines, bToMb(s.HeapAlloc), s.NumGC)
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	return b.String()
}

// WriteDebugFile writes the snapshot and reason to a timestamped file in dir
// and returns its path.
func WriteDebugFile(dir, reason string, s *Snapshot) (string, error) {
	const separator = "======== DEBUG INFO %s ========\n"

	var b strings.Builder
	fmt.Fprintf(&b, separator, "START")
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	b.WriteString(s.String())
	fmt.Fprintf(&b, separator, "END")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", diagError(err, dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("debug_%s.txt", s.Time.Format("2006-01-02_15-04-05")))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil { //nolint:gosec // debug output is not secret
		return "", diagError(err, path)
	}
	return path, nil
}

func diagError(err error, path string) error {
	return errors.New(err).
		Component("diagnostics").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// bToMb converts bytes to megabytes
func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
