package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// LiveStats is a point in time view of the live state of the hub.
type LiveStats struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	OnlineUsers int64  `json:"onlineUsers"`
	Typing      int    `json:"typing"`
	PendingSend int    `json:"pendingSend"`
	Sent        uint64 `json:"sent"`
	Rejected    uint64 `json:"rejected"`
}

// StatsSource is implemented by the hub.
type StatsSource interface {
	Stats() LiveStats
}

// ProcessStats describes the server process itself.
type ProcessStats struct {
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
	HeapAlloc  uint64  `json:"heapAlloc"`
	NumGC      uint32  `json:"numGc"`
}

type Snapshot struct {
	Live      LiveStats    `json:"live"`
	Process   ProcessStats `json:"process"`
	Uptime    string       `json:"uptime"`
	SampledAt time.Time    `json:"sampledAt"`
}

// Monitor samples the hub and the process. Latest is served by /debug/stats
// and logged by the telemetry worker.
type Monitor struct {
	source  StatsSource
	proc    *process.Process
	started time.Time
	log     *slog.Logger

	mu     sync.RWMutex
	latest Snapshot
}

func NewMonitor(source StatsSource, log *slog.Logger) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
		proc = nil
	}
	return &Monitor{source: source, proc: proc, started: time.Now(), log: log}
}

// Sample refreshes the snapshot and returns it.
func (m *Monitor) Sample() Snapshot {
	snapshot := Snapshot{
		Live:      m.source.Stats(),
		Process:   m.processStats(),
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		SampledAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.latest = snapshot
	m.mu.Unlock()
	return snapshot
}

// Latest returns the last sample, taking one if none exists yet.
func (m *Monitor) Latest() Snapshot {
	m.mu.RLock()
	latest := m.latest
	m.mu.RUnlock()
	if latest.SampledAt.IsZero() {
		return m.Sample()
	}
	return latest
}

func (m *Monitor) processStats() ProcessStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats := ProcessStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
	}
	if m.proc == nil {
		return stats
	}
	if info, err := m.proc.MemoryInfo(); err == nil {
		stats.RSSBytes = info.RSS
	} else {
		m.log.Debug("Error while reading process memory", "error", err)
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if threads, err := m.proc.NumThreads(); err == nil {
		stats.Threads = threads
	}
	return stats
}
