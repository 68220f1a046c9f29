package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"deepface-gateway/internal/inference"
	"deepface-gateway/internal/util/timezone"

	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
)

var startTime = time.Now()

// SystemStats enthält Laufzeitdaten für /health?verbose=true
type SystemStats struct {
	NumCPU     int     `json:"num_cpu"`
	GoRoutines int     `json:"go_routines"`
	CPUUsage   float64 `json:"cpu_usage"`

	MemoryAlloc      uint64 `json:"memory_alloc"`
	MemorySys        uint64 `json:"memory_sys"`
	MemoryAllocHuman string `json:"memory_alloc_human"`

	// Nur mit inference.max_concurrent > 0 gesetzt
	WorkerCount   int `json:"worker_count"`
	ActiveJobs    int `json:"active_jobs"`
	QueueCapacity int `json:"queue_capacity"`

	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// cpuSampler misst die CPU-Last höchstens einmal pro Intervall
type cpuSampler struct {
	mu       sync.Mutex
	interval time.Duration
	window   time.Duration
	sampled  time.Time
	value    float64
}

var sampler = &cpuSampler{
	interval: 500 * time.Millisecond,
	window:   200 * time.Millisecond,
}

func (s *cpuSampler) usage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sampled.IsZero() && time.Since(s.sampled) < s.interval {
		return s.value
	}

	percentages, err := cpu.Percent(s.window, false)
	if err != nil {
		log.Warnf("Failed to measure CPU usage: %v", err)
		return 0
	}
	if len(percentages) > 0 {
		s.value = percentages[0]
	}
	s.sampled = time.Now()
	return s.value
}

// GetCPUUsage liefert die Gesamtauslastung aller Kerne in Prozent
func GetCPUUsage() float64 {
	return sampler.usage()
}

// FormatBytes gibt eine Bytezahl in lesbarer Einheit aus
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d Bytes", bytes)
	}
	value := float64(bytes)
	suffix := "KB"
	for _, s := range []string{"KB", "MB", "GB"} {
		suffix = s
		value /= unit
		if value < unit {
			break
		}
	}
	return fmt.Sprintf("%.2f %s", value, suffix)
}

// GetSystemStats erfasst die aktuellen Laufzeitdaten. workerPool darf nil sein.
func GetSystemStats(workerPool *inference.WorkerPool) *SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := &SystemStats{
		NumCPU:           runtime.NumCPU(),
		GoRoutines:       runtime.NumGoroutine(),
		CPUUsage:         GetCPUUsage(),
		MemoryAlloc:      mem.Alloc,
		MemorySys:        mem.Sys,
		MemoryAllocHuman: FormatBytes(mem.Alloc),
		Uptime:           time.Since(startTime).Round(time.Second).String(),
		Timestamp:        timezone.Now(),
	}

	if workerPool != nil {
		stats.WorkerCount = workerPool.GetWorkerCount()
		stats.ActiveJobs = workerPool.ActiveJobCount()
		stats.QueueCapacity = workerPool.GetQueueCapacity()
	}
	return stats
}
