package client

import "time"

// BackendStatus is the backend block of the launcher's status report.
type BackendStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

// ProbeStatus is the readiness block of the launcher's status report.
type ProbeStatus struct {
	State          string  `json:"state"`
	Attempts       int     `json:"attempts"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Status is the full launch state as served by GET /status.
type Status struct {
	App       string        `json:"app"`
	StartedAt time.Time     `json:"started_at"`
	Backend   BackendStatus `json:"backend"`
	Probe     ProbeStatus   `json:"probe"`
	Restarts  int           `json:"restarts"`
}

// UsageSample is one CPU/memory reading of the backend process.
type UsageSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	MemorySwap uint64    `json:"memory_swap,omitempty"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Usage is the resource history as served by GET /usage.
type Usage struct {
	Latest  *UsageSample  `json:"latest,omitempty"`
	History []UsageSample `json:"history"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}
