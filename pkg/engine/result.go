package engine

import (
	"sort"
	"sync"
	"time"
)

// Status is the outcome class of one task on one host.
type Status string

const (
	StatusOK      Status = "ok"
	StatusChanged Status = "changed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// TaskResult records one task execution on one host.
type TaskResult struct {
	// Host is the host the task was scheduled for. Registered results and
	// per-host accounting always attach here, regardless of delegation.
	Host string `json:"host"`

	// Task is the task display name.
	Task string `json:"task"`

	// Module is the module that ran.
	Module string `json:"module"`

	// Status is the outcome class.
	Status Status `json:"status"`

	// ExecHost is where the module actually ran; differs from Host under
	// delegation.
	ExecHost string `json:"exec_host"`

	// FactHost is where returned facts were placed, if any were.
	FactHost string `json:"fact_host,omitempty"`

	// Msg is the module's message, or the error summary on failure.
	Msg string `json:"msg,omitempty"`

	// Data is the module's structured output.
	Data map[string]interface{} `json:"data,omitempty"`

	// Err is the classified error for failed results.
	Err *RunError `json:"error,omitempty"`

	// Planned marks results produced in plan mode; no remote invocation
	// happened.
	Planned bool `json:"planned,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// HostStats is the per-host tally shown in the recap.
type HostStats struct {
	OK          int `json:"ok"`
	Changed     int `json:"changed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	Unreachable int `json:"unreachable"`
}

// Recap aggregates results per host over a whole run.
type Recap struct {
	mu    sync.Mutex
	stats map[string]*HostStats
}

// NewRecap returns an empty recap.
func NewRecap() *Recap {
	return &Recap{stats: make(map[string]*HostStats)}
}

// Record tallies one result against its scheduled host.
func (r *Recap) Record(res *TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[res.Host]
	if !ok {
		s = &HostStats{}
		r.stats[res.Host] = s
	}

	switch res.Status {
	case StatusOK:
		s.OK++
	case StatusChanged:
		s.OK++
		s.Changed++
	case StatusFailed:
		s.Failed++
		if res.Err != nil && res.Err.Code == CodeConnectionFailed {
			s.Unreachable++
		}
	case StatusSkipped:
		s.Skipped++
	}
}

// Hosts returns the recorded host names, sorted.
func (r *Recap) Hosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := make([]string, 0, len(r.stats))
	for h := range r.stats {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Stats returns the tally for one host.
func (r *Recap) Stats(host string) HostStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stats[host]; ok {
		return *s
	}
	return HostStats{}
}

// Failed reports whether any host saw a failure.
func (r *Recap) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.stats {
		if s.Failed > 0 {
			return true
		}
	}
	return false
}
