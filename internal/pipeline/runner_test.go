package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/txtingest/internal/logging"
)

// blockingExec runs until released.
type blockingExec struct {
	started chan string
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingExec() *blockingExec {
	return &blockingExec{started: make(chan string, 10), release: make(chan struct{})}
}

func (b *blockingExec) Run(_ context.Context, trigger string) *Report {
	b.calls.Add(1)
	b.started <- trigger
	<-b.release
	return &Report{Trigger: trigger, Status: StatusOK}
}

func TestRunner_SingleFlight(t *testing.T) {
	exec := newBlockingExec()
	r := NewRunner(exec)

	require.NoError(t, r.Start(context.Background(), "first"))
	assert.Equal(t, "first", <-exec.started)

	running, trigger := r.Running()
	assert.True(t, running)
	assert.Equal(t, "first", trigger)

	assert.ErrorIs(t, r.Start(context.Background(), "second"), ErrRunInProgress)
	_, err := r.Run(context.Background(), "third")
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(exec.release)
	require.NoError(t, r.Wait(context.Background()))

	running, _ = r.Running()
	assert.False(t, running)
	require.NotNil(t, r.Last())
	assert.Equal(t, "first", r.Last().Trigger)
	assert.Equal(t, int32(1), exec.calls.Load())

	rep, err := r.Run(context.Background(), "fourth")
	require.NoError(t, err)
	assert.Equal(t, "fourth", rep.Trigger)
}

func TestRunner_WaitHonoursContext(t *testing.T) {
	exec := newBlockingExec()
	r := NewRunner(exec)
	require.NoError(t, r.Start(context.Background(), "slow"))
	<-exec.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)

	close(exec.release)
	require.NoError(t, r.Wait(context.Background()))
}

func TestScheduler_InvalidCron(t *testing.T) {
	_, err := NewScheduler(NewRunner(newBlockingExec()), SchedulerConfig{Cron: "every tuesday"}, logging.Discard())
	assert.Error(t, err)
}

func TestScheduler_Next(t *testing.T) {
	s, err := NewScheduler(NewRunner(newBlockingExec()), SchedulerConfig{Cron: "*/5 * * * *"}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	next := s.Next()
	assert.False(t, next.IsZero())
	assert.WithinDuration(t, time.Now(), next, 5*time.Minute+time.Second)
}

func TestScheduler_WatchTriggersRun(t *testing.T) {
	dir := t.TempDir()
	exec := newBlockingExec()
	close(exec.release)
	r := NewRunner(exec)

	s, err := NewScheduler(r, SchedulerConfig{WatchDir: dir, Debounce: 20 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt.part"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), exec.calls.Load(), "transient files do not trigger")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ventas_1.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ventas_2.txt"), []byte("x"), 0o644))

	select {
	case trigger := <-exec.started:
		assert.Equal(t, "watch", trigger)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not trigger a run")
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), exec.calls.Load(), "events are debounced into one run")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient("/raw/.tmp-lote"))
	assert.True(t, isTransient("/raw/a.rar.part"))
	assert.False(t, isTransient("/raw/a.rar"))
	assert.False(t, isTransient("b.txt"))
}

func TestScheduler_NoRunsAfterStop(t *testing.T) {
	exec := newBlockingExec()
	close(exec.release)
	s, err := NewScheduler(NewRunner(exec), SchedulerConfig{Cron: "@every 1h"}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	s.trigger("schedule")
	assert.Equal(t, int32(1), exec.calls.Load())

	s.Stop()
	s.trigger("schedule")
	assert.Equal(t, int32(1), exec.calls.Load())
}
