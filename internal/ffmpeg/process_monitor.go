package ffmpeg

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for an FFmpeg process.
type ProcessStats struct {
	PID int `json:"pid"`

	CPUPercent float64       `json:"cpu_percent"` // 0-100 per core
	CPUUser    time.Duration `json:"cpu_user"`
	CPUSystem  time.Duration `json:"cpu_system"`

	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryVMSBytes uint64  `json:"memory_vms_bytes"`
	MemoryPercent  float64 `json:"memory_percent"`

	// Bytes moved through the stdin/stdout pipes
	BytesWritten uint64 `json:"bytes_written"`
	BytesRead    uint64 `json:"bytes_read"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of an FFmpeg process.
type ProcessMonitor struct {
	pid       int
	startedAt time.Time
	interval  time.Duration

	mu      sync.RWMutex
	stats   ProcessStats
	proc    *process.Process
	running bool

	bytesWritten atomic.Uint64
	bytesRead    atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a new process monitor.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetInterval sets the sampling interval. It must be called before Start.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.mu.Lock()
	pm.interval = d
	pm.mu.Unlock()
}

// Start begins sampling the process.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	if pm.running {
		pm.mu.Unlock()
		return
	}
	pm.running = true
	// the process may already be gone, sampling then only tracks byte counts
	pm.proc, _ = process.NewProcessWithContext(pm.ctx, int32(pm.pid)) //nolint:gosec // pids fit in int32
	interval := pm.interval
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.monitorLoop(interval)
}

// Stop stops sampling. It is safe to call more than once.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()

	pm.mu.Lock()
	pm.running = false
	pm.mu.Unlock()
}

// Stats returns the latest sample with current byte counters.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := pm.stats
	stats.PID = pm.pid
	stats.StartedAt = pm.startedAt
	stats.BytesWritten = pm.bytesWritten.Load()
	stats.BytesRead = pm.bytesRead.Load()
	return stats
}

// AddBytesWritten adds to the bytes written counter.
func (pm *ProcessMonitor) AddBytesWritten(n uint64) {
	pm.bytesWritten.Add(n)
}

// AddBytesRead adds to the bytes read counter.
func (pm *ProcessMonitor) AddBytesRead(n uint64) {
	pm.bytesRead.Add(n)
}

func (pm *ProcessMonitor) monitorLoop(interval time.Duration) {
	defer pm.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.sample()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

// sample takes a snapshot of process statistics through gopsutil.
func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	if pm.proc == nil {
		return
	}
	ctx := pm.ctx

	// errors mean the process exited between samples; keep the last values
	if pct, err := pm.proc.PercentWithContext(ctx, 0); err == nil {
		pm.stats.CPUPercent = pct
	}
	if times, err := pm.proc.TimesWithContext(ctx); err == nil {
		pm.stats.CPUUser = time.Duration(times.User * float64(time.Second))
		pm.stats.CPUSystem = time.Duration(times.System * float64(time.Second))
	}
	if mem, err := pm.proc.MemoryInfoWithContext(ctx); err == nil {
		pm.stats.MemoryRSSBytes = mem.RSS
		pm.stats.MemoryVMSBytes = mem.VMS
	}
	if pct, err := pm.proc.MemoryPercentWithContext(ctx); err == nil {
		pm.stats.MemoryPercent = float64(pct)
	}
}

// CountingWriter wraps an io.Writer and counts bytes written.
type CountingWriter struct {
	w       io.Writer
	monitor *ProcessMonitor
}

// NewCountingWriter creates a writer that counts bytes and reports to monitor.
func NewCountingWriter(w io.Writer, monitor *ProcessMonitor) *CountingWriter {
	return &CountingWriter{w: w, monitor: monitor}
}

// Write implements io.Writer and tracks bytes written.
func (cw *CountingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if n > 0 && cw.monitor != nil {
		cw.monitor.AddBytesWritten(uint64(n)) //nolint:gosec // n is non-negative
	}
	return n, err
}

// CountingReader wraps an io.Reader and counts bytes read.
type CountingReader struct {
	r       io.Reader
	monitor *ProcessMonitor
}

// NewCountingReader creates a reader that counts bytes and reports to monitor.
func NewCountingReader(r io.Reader, monitor *ProcessMonitor) *CountingReader {
	return &CountingReader{r: r, monitor: monitor}
}

// Read implements io.Reader and tracks bytes read.
func (cr *CountingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	if n > 0 && cr.monitor != nil {
		cr.monitor.AddBytesRead(uint64(n)) //nolint:gosec // n is non-negative
	}
	return n, err
}
