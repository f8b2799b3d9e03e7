package pipeline

// scheduler.go triggers runs in daemon mode.
//
// Runs start on a cron schedule and, optionally, shortly after files land
// in the raw directory (for deliveries dropped there directly instead of
// through the remote store). Every trigger goes through the Runner, so a
// trigger during a run is skipped rather than stacked.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// DefaultDebounce is how long the raw directory must be quiet before a
// watch-triggered run starts.
const DefaultDebounce = 2 * time.Second

// SchedulerConfig configures the triggers.
type SchedulerConfig struct {
	// Cron is a standard five-field expression. Empty disables the schedule.
	Cron string
	// WatchDir, when set, is watched for new files.
	WatchDir string
	Debounce time.Duration
}

// Scheduler owns the cron schedule and the directory watcher.
type Scheduler struct {
	runner *Runner
	cfg    SchedulerConfig
	logger *slog.Logger

	cron    *cron.Cron
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	stopped bool
	done    chan struct{}

	stopOnce sync.Once
}

// NewScheduler validates the configuration without starting anything.
func NewScheduler(runner *Runner, cfg SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	s := &Scheduler{runner: runner, cfg: cfg, logger: logger}
	if cfg.Cron != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(cfg.Cron, func() { s.trigger("schedule") }); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Cron, err)
		}
	}
	return s, nil
}

// Start begins scheduling. Runs execute under ctx; cancelling it also
// stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()
	s.done = make(chan struct{})

	if s.cfg.WatchDir != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			cancel()
			close(s.done)
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Add(s.cfg.WatchDir); err != nil {
			w.Close()
			cancel()
			close(s.done)
			return fmt.Errorf("watch %s: %w", s.cfg.WatchDir, err)
		}
		s.watcher = w
		go s.watch(watchCtx)
		s.logger.Info("watching raw directory", "dir", s.cfg.WatchDir, "debounce", s.cfg.Debounce)
	} else {
		close(s.done)
	}

	if s.cron != nil {
		s.cron.Start()
		s.logger.Info("schedule started", "cron", s.cfg.Cron, "next", s.Next())
	}

	go func() {
		<-watchCtx.Done()
		s.stop()
	}()
	return nil
}

// Next returns the next scheduled run, or the zero time without a schedule.
func (s *Scheduler) Next() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts the triggers. A run they already started keeps going until
// it finishes or the context given to Start is cancelled; use Runner.Wait
// to let it wind down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.stop()
	if s.done != nil {
		<-s.done
	}
}

func (s *Scheduler) stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			s.cron.Stop()
		}
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.mu.Lock()
		s.stopped = true
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()
	})
}

func (s *Scheduler) watch(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if isTransient(event.Name) {
				continue
			}
			s.debounce()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("raw directory watcher error", "error", err)
		}
	}
}

// isTransient ignores files the pipeline itself writes while working.
func isTransient(name string) bool {
	base := name[strings.LastIndexAny(name, `/\`)+1:]
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".part")
}

func (s *Scheduler) debounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.trigger("watch") })
}

func (s *Scheduler) trigger(source string) {
	s.mu.Lock()
	ctx, stopped := s.ctx, s.stopped
	s.mu.Unlock()
	if stopped || ctx == nil || ctx.Err() != nil {
		return
	}

	rep, err := s.runner.Run(ctx, source)
	if errors.Is(err, ErrRunInProgress) {
		s.logger.Info("run skipped, previous run still in progress", "trigger", source)
		return
	}
	if rep != nil && rep.Status != StatusOK {
		s.logger.Warn("scheduled run did not complete cleanly",
			"trigger", source,
			"status", rep.Status,
			"run_id", rep.RunID,
		)
	}
}
