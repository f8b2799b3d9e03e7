package pipeline

import (
	"sync"
	"time"

	"github.com/JonMunkholm/txtingest/internal/core"
)

// Status summarizes a run for callers and the process exit code.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusAborted Status = "aborted"
)

// ExitCode maps the status to a process exit code. A partial run exits
// with a different code than an aborted one.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK:
		return 0
	case StatusPartial:
		return 2
	default:
		return 1
	}
}

// FileFailure is one file that was skipped and left in place.
type FileFailure struct {
	Stage   State          `json:"stage"`
	File    string         `json:"file"`
	Kind    core.ErrorKind `json:"kind,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}

// Counts are per-stage success counters.
type Counts struct {
	Listed      int   `json:"listed"`
	Transferred int   `json:"transferred"`
	Extracted   int   `json:"extracted"`
	Decoded     int   `json:"decoded"`
	Staged      int   `json:"staged"`
	Persisted   int   `json:"persisted"`
	Duplicates  int   `json:"duplicates"`
	Records     int64 `json:"records"`
}

// Report is the outcome of one run.
type Report struct {
	RunID       string        `json:"run_id"`
	Trigger     string        `json:"trigger,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Final       State         `json:"final_state"`
	Status      Status        `json:"status"`
	Counts      Counts        `json:"counts"`
	Failures    []FileFailure `json:"failures"`
	Error       string        `json:"error,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
	Transitions []Transition  `json:"transitions"`
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode is the process exit code for the run.
func (r *Report) ExitCode() int {
	return r.Status.ExitCode()
}

// tally collects results from concurrent workers.
type tally struct {
	mu       sync.Mutex
	counts   Counts
	failures []FileFailure
}

func (t *tally) add(fn func(c *Counts)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.counts)
}

func (t *tally) fail(stage State, file string, err error) FileFailure {
	f := FileFailure{
		Stage:   stage,
		File:    file,
		Kind:    core.KindOf(err),
		Code:    core.ErrorCode(err),
		Message: err.Error(),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, f)
	return f
}
