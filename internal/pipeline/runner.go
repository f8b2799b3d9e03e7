package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrRunInProgress is returned when a run is triggered while another one
// is still going.
var ErrRunInProgress = errors.New("a run is already in progress")

// Executor runs one pass. *Pipeline implements it.
type Executor interface {
	Run(ctx context.Context, trigger string) *Report
}

// Runner allows at most one run at a time and remembers the last report.
// Triggers that arrive during a run are rejected, not queued: the running
// pass picks up whatever was delivered in the meantime on its next round.
type Runner struct {
	exec Executor

	mu      sync.Mutex
	running bool
	current string
	last    *Report
	wg      sync.WaitGroup
}

// NewRunner wraps exec.
func NewRunner(exec Executor) *Runner {
	return &Runner{exec: exec}
}

func (r *Runner) acquire(trigger string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.current = trigger
	r.wg.Add(1)
	return true
}

func (r *Runner) release(rep *Report) {
	r.mu.Lock()
	r.running = false
	r.current = ""
	r.last = rep
	r.mu.Unlock()
	r.wg.Done()
}

// Run executes a pass and waits for it.
func (r *Runner) Run(ctx context.Context, trigger string) (*Report, error) {
	if !r.acquire(trigger) {
		return nil, ErrRunInProgress
	}
	rep := r.exec.Run(ctx, trigger)
	r.release(rep)
	return rep, nil
}

// Start begins a pass in the background.
func (r *Runner) Start(ctx context.Context, trigger string) error {
	if !r.acquire(trigger) {
		return ErrRunInProgress
	}
	go func() {
		r.release(r.exec.Run(ctx, trigger))
	}()
	return nil
}

// Running reports whether a pass is in progress and what triggered it.
func (r *Runner) Running() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.current
}

// Last returns the report of the most recent finished run, or nil.
func (r *Runner) Last() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Wait blocks until the in-flight run finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
