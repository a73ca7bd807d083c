package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample holds one CPU/memory reading for the supervised backend.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	MemorySwap uint64    `json:"memory_swap,omitempty"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// UsageConfig holds configuration for backend usage sampling.
type UsageConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	History  int           `mapstructure:"history"`
}

// UsageCollector periodically samples CPU and memory usage of the
// supervised backend process and keeps a bounded in-memory history
// for the status API.
type UsageCollector struct {
	enabled  bool
	interval time.Duration
	max      int

	mu      sync.RWMutex
	name    string
	pid     int32
	samples []Sample
	// circular buffer bookkeeping
	startIdx int
	count    int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

// NewUsageCollector creates a collector for a single backend process.
func NewUsageCollector(config UsageConfig) *UsageCollector {
	maxHistory := config.History
	if maxHistory == 0 {
		maxHistory = 120
	}
	interval := config.Interval
	if interval == 0 {
		interval = 5 * time.Second
	}

	return &UsageCollector{
		enabled:  config.Enabled,
		interval: interval,
		max:      maxHistory,
		samples:  make([]Sample, maxHistory),
		stopCh:   make(chan struct{}),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "usher",
				Subsystem: "backend",
				Name:      "cpu_percent",
				Help:      "CPU usage percentage of the supervised backend.",
			}, []string{"name"},
		),
		memoryMB: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "usher",
				Subsystem: "backend",
				Name:      "memory_mb",
				Help:      "Memory usage in MB of the supervised backend.",
			}, []string{"name"},
		),
		numThreads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "usher",
				Subsystem: "backend",
				Name:      "num_threads",
				Help:      "Number of threads of the supervised backend.",
			}, []string{"name"},
		),
		numFDs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "usher",
				Subsystem: "backend",
				Name:      "num_fds",
				Help:      "Number of file descriptors of the supervised backend (Unix only).",
			}, []string{"name"},
		),
	}
}

// RegisterMetrics registers the usage gauges with the provided registerer.
func (c *UsageCollector) RegisterMetrics(r prometheus.Registerer) error {
	if !c.enabled {
		return nil
	}

	collectors := []prometheus.Collector{c.cpuPercent, c.memoryMB, c.numThreads}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, c.numFDs)
	}

	for _, collector := range collectors {
		if err := r.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Track points the collector at a freshly spawned backend process.
// History is preserved across restarts; samples record the PID they saw.
func (c *UsageCollector) Track(name string, pid int32) {
	c.mu.Lock()
	c.name = name
	c.pid = pid
	c.mu.Unlock()
}

// Untrack clears the tracked process after the backend exits.
func (c *UsageCollector) Untrack() {
	c.mu.Lock()
	name := c.name
	c.pid = 0
	c.mu.Unlock()
	if name != "" {
		c.cpuPercent.DeleteLabelValues(name)
		c.memoryMB.DeleteLabelValues(name)
		c.numThreads.DeleteLabelValues(name)
		if runtime.GOOS != "windows" {
			c.numFDs.DeleteLabelValues(name)
		}
	}
}

// Start begins the periodic sampling loop.
func (c *UsageCollector) Start(ctx context.Context) {
	if !c.enabled {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.sample()
			}
		}
	}()
}

// Stop stops the sampling loop.
func (c *UsageCollector) Stop() {
	if !c.enabled {
		return
	}
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// SampleOnce takes one immediate sample outside the ticker loop.
func (c *UsageCollector) SampleOnce() {
	c.sample()
}

func (c *UsageCollector) sample() {
	c.mu.RLock()
	name, pid := c.name, c.pid
	c.mu.RUnlock()
	if pid <= 0 {
		return
	}

	s, err := readSample(pid)
	if err != nil {
		slog.Debug("usage sample failed", "name", name, "pid", pid, "error", err)
		return
	}

	c.cpuPercent.WithLabelValues(name).Set(s.CPUPercent)
	c.memoryMB.WithLabelValues(name).Set(s.MemoryMB)
	c.numThreads.WithLabelValues(name).Set(float64(s.NumThreads))
	if runtime.GOOS != "windows" && s.NumFDs > 0 {
		c.numFDs.WithLabelValues(name).Set(float64(s.NumFDs))
	}

	c.push(s)
}

// readSample retrieves CPU and memory metrics for a single process.
func readSample(pid int32) (Sample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return Sample{}, fmt.Errorf("process handle: %w", err)
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		cpuPercent = 0
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("memory info: %w", err)
	}

	numThreads, err := proc.NumThreads()
	if err != nil {
		numThreads = 0
	}

	s := Sample{
		PID:        pid,
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		MemoryRSS:  memInfo.RSS,
		MemoryVMS:  memInfo.VMS,
		NumThreads: numThreads,
		Timestamp:  time.Now(),
	}
	if memInfo.Swap > 0 {
		s.MemorySwap = memInfo.Swap
	}
	if runtime.GOOS != "windows" {
		if numFDs, err := proc.NumFDs(); err == nil {
			s.NumFDs = numFDs
		}
	}
	return s, nil
}

// push appends a sample using a circular buffer for O(1) operations.
func (c *UsageCollector) push(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count < c.max {
		c.samples[c.count] = s
		c.count++
		return
	}
	c.samples[c.startIdx] = s
	c.startIdx = (c.startIdx + 1) % c.max
}

// Latest returns the most recent sample, if any.
func (c *UsageCollector) Latest() (Sample, bool) {
	if !c.enabled {
		return Sample{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.count == 0 {
		return Sample{}, false
	}
	var latestIdx int
	if c.count < c.max {
		latestIdx = c.count - 1
	} else {
		latestIdx = (c.startIdx - 1 + c.max) % c.max
	}
	return c.samples[latestIdx], true
}

// History returns the recorded samples in chronological order.
func (c *UsageCollector) History() []Sample {
	if !c.enabled {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.count == 0 {
		return nil
	}

	result := make([]Sample, c.count)
	if c.count < c.max {
		copy(result, c.samples[:c.count])
	} else {
		n1 := copy(result, c.samples[c.startIdx:])
		copy(result[n1:], c.samples[:c.startIdx])
	}
	return result
}

// IsEnabled returns whether usage sampling is enabled.
func (c *UsageCollector) IsEnabled() bool { return c.enabled }
