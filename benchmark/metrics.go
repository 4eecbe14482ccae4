// Package benchmark - Functionality for replaying frame corpora through the
// recognition pipeline and measuring it.
package benchmark

import (
	"runtime"
	"time"

	"github.com/nvr-ai/go-objrec/profiler"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario        Scenario      `json:"scenario"`
	Timestamp       time.Time     `json:"timestamp"`
	TotalDuration   time.Duration `json:"total_duration"`
	FramesPerSecond float64       `json:"frames_per_second"`
	// Frames is the number of frames read from the corpus.
	Frames int `json:"frames"`
	// BackgroundFrames were spent waiting for an empty surface.
	BackgroundFrames int `json:"background_frames"`
	// Regions is the total number of regions over all processed frames.
	Regions     int                `json:"regions"`
	MeanRegions float64            `json:"mean_regions"`
	Stages      []profiler.Summary `json:"stages"`
	MemoryStats MemoryMetrics      `json:"memory_stats"`
	CPUStats    CPUMetrics         `json:"cpu_stats"`
	ErrorRate   float64            `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"`
	GOMAXPROCS int `json:"gomaxprocs"`
}

func memoryDelta(start, end runtime.MemStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      end.Alloc,
		TotalAllocBytes: end.TotalAlloc - start.TotalAlloc,
		SysBytes:        end.Sys,
		NumGC:           end.NumGC - start.NumGC,
		HeapAllocBytes:  end.HeapAlloc,
		HeapSysBytes:    end.HeapSys,
	}
}

// Stage returns the summary of the named pipeline stage.
func (m PerformanceMetrics) Stage(name string) (profiler.Summary, bool) {
	for _, s := range m.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return profiler.Summary{}, false
}
