// Package device captures immutable snapshots of the host environment at a
// point in time. Snapshots are attached to telemetry log entries so that
// slow or failed operations can be correlated with host conditions.
package device

import (
	"os"
	"runtime"
	"time"
)

// MemoryPressure is a coarse band derived from runtime memory statistics.
type MemoryPressure string

const (
	PressureNominal  MemoryPressure = "nominal"
	PressureElevated MemoryPressure = "elevated"
	PressureCritical MemoryPressure = "critical"
)

// Snapshot is an immutable capture of host environment facts.
type Snapshot struct {
	CapturedAt time.Time      `json:"captured_at"`
	OS         string         `json:"os"`
	Arch       string         `json:"arch"`
	Hostname   string         `json:"hostname"`
	GoVersion  string         `json:"go_version"`
	AppVersion string         `json:"app_version"`
	Goroutines int            `json:"goroutines"`
	HeapMB     uint64         `json:"heap_mb"`
	SysMB      uint64         `json:"sys_mb"`
	Pressure   MemoryPressure `json:"memory_pressure"`
}

// Capture reads the current host state. It never fails; fields that cannot
// be determined are left at their zero value.
func Capture(appVersion string) Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	host, _ := os.Hostname()
	heapMB := ms.HeapAlloc / (1 << 20)
	sysMB := ms.Sys / (1 << 20)

	return Snapshot{
		CapturedAt: time.Now().UTC(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Hostname:   host,
		GoVersion:  runtime.Version(),
		AppVersion: appVersion,
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     heapMB,
		SysMB:      sysMB,
		Pressure:   pressure(heapMB, sysMB),
	}
}

// pressure maps heap usage relative to reserved system memory into a band.
func pressure(heapMB, sysMB uint64) MemoryPressure {
	if sysMB == 0 {
		return PressureNominal
	}
	ratio := float64(heapMB) / float64(sysMB)
	switch {
	case ratio > 0.9:
		return PressureCritical
	case ratio > 0.7:
		return PressureElevated
	default:
		return PressureNominal
	}
}
