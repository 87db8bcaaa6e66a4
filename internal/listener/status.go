package listener

import (
	"sync"
	"time"
)

// Status snapshot of the listener health
type Status struct {
	IsRunning      bool       `json:"isRunning"`
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
	ProcessedCount int64      `json:"processedCount"`
	ErrorCount     int64      `json:"errorCount"`
	LastError      string     `json:"lastError,omitempty"`
}

// Registry holds the process-wide listener status.
// Counters only grow until the process restarts.
type Registry struct {
	mu     sync.RWMutex
	status Status
}

// NewRegistry creates an empty status registry
func NewRegistry() *Registry {
	return &Registry{}
}

// SetRunning sets the running flag
func (r *Registry) SetRunning(running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.IsRunning = running
}

// RecordSync sets the last successful sync time
func (r *Registry) RecordSync(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.LastSyncTime = &at
}

// RecordProcessed counts one ingested attachment
func (r *Registry) RecordProcessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.ProcessedCount++
}

// RecordError counts a failure and keeps its message
func (r *Registry) RecordError(err error) {
	if err == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.ErrorCount++
	r.status.LastError = err.Error()
}

// Snapshot returns a copy of the current status
func (r *Registry) Snapshot() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.status
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		s.LastSyncTime = &t
	}
	return s
}
