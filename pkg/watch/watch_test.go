package watch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/orchestrate"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type fakeFrontier struct {
	scheduled    atomic.Int32
	cleaned      atomic.Int32
	reprioritize atomic.Int32
	block        chan struct{}
	err          error
}

func (f *fakeFrontier) Schedule(ctx context.Context) (int, error) {
	f.scheduled.Add(1)
	if f.block != nil {
		<-f.block
	}
	return 7, f.err
}

func (f *fakeFrontier) CleanupStaleQueue(ctx context.Context) (int, error) {
	f.cleaned.Add(1)
	return 2, nil
}

func (f *fakeFrontier) ReprioritizeAll(ctx context.Context) (int, error) {
	f.reprioritize.Add(1)
	return 40, nil
}

type fakeCycles struct {
	opts []orchestrate.CycleOptions
}

func (c *fakeCycles) TriggerCycle(ctx context.Context, opts orchestrate.CycleOptions) ([]orchestrate.CycleReport, error) {
	c.opts = append(c.opts, opts)
	return []orchestrate.CycleReport{{Category: "technology", Admitted: 3}, {Category: "business", Admitted: 2}}, nil
}

func newTestRunner(t *testing.T, frontier FrontierMaintainer, cycles CycleTrigger) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := NewRunner(config.WatchConfig{
		ScheduleSpec:     "@every 5m",
		CleanupSpec:      "@every 15m",
		ReprioritizeSpec: "0 3 * * *",
		CycleSpec:        "0 6 * * *",
	}, dir, frontier, cycles, testLogger())
	require.NoError(t, err)
	return r, dir
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{-time.Second, "0s"},
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h30m"},
		{24 * time.Hour, "1d"},
		{36 * time.Hour, "1d12h"},
		{7 * 24 * time.Hour, "7d"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := FormatInterval(tt.input)
			if got != tt.expected {
				t.Errorf("FormatInterval(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStateManager(t *testing.T) {
	tmpDir := t.TempDir()

	sm := NewStateManager(tmpDir)
	if err := sm.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, exists := sm.GetTaskState(TaskQueueCleanup); exists {
		t.Error("expected no state for a task that never ran")
	}

	sm.UpdateTaskState(TaskQueueCleanup, true, 4, "")
	sm.UpdateTaskState(TaskQueueCleanup, false, 0, "store closed")
	state, exists := sm.GetTaskState(TaskQueueCleanup)
	require.True(t, exists)
	assert.False(t, state.LastRunSuccess)
	assert.Equal(t, "store closed", state.ErrorMessage)
	assert.EqualValues(t, 2, state.Runs)

	require.NoError(t, sm.Save())
	_, err := os.Stat(filepath.Join(tmpDir, stateFileName))
	require.NoError(t, err, "state file should exist after Save()")

	sm2 := NewStateManager(tmpDir)
	require.NoError(t, sm2.Load())
	all := sm2.GetAllTaskStates()
	require.Contains(t, all, TaskQueueCleanup)
	assert.EqualValues(t, 2, all[TaskQueueCleanup].Runs)
}

func TestStateManager_CorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, stateFileName), []byte("{not json"), 0644))

	sm := NewStateManager(tmpDir)
	assert.Error(t, sm.Load())
}

func TestNewRunner_RegistersTasks(t *testing.T) {
	r, _ := newTestRunner(t, &fakeFrontier{}, &fakeCycles{})

	status := r.Status()
	require.Len(t, status, 4)
	names := make(map[string]string)
	for _, st := range status {
		names[st.Name] = st.Spec
		assert.True(t, st.NeverRun)
	}
	assert.Equal(t, map[string]string{
		TaskFrontierSchedule: "@every 5m",
		TaskQueueCleanup:     "@every 15m",
		TaskReprioritize:     "0 3 * * *",
		TaskDailyCycle:       "0 6 * * *",
	}, names)
}

func TestNewRunner_InvalidSpec(t *testing.T) {
	_, err := NewRunner(config.WatchConfig{
		ScheduleSpec:     "every five minutes",
		CleanupSpec:      "@every 15m",
		ReprioritizeSpec: "0 3 * * *",
		CycleSpec:        "0 6 * * *",
	}, t.TempDir(), &fakeFrontier{}, &fakeCycles{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), TaskFrontierSchedule)
}

func TestRunTask(t *testing.T) {
	frontier := &fakeFrontier{}
	cycles := &fakeCycles{}
	r, _ := newTestRunner(t, frontier, cycles)
	ctx := context.Background()

	n, err := r.RunTask(ctx, TaskFrontierSchedule)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = r.RunTask(ctx, TaskReprioritize)
	require.NoError(t, err)
	assert.Equal(t, 40, n)

	n, err = r.RunTask(ctx, TaskDailyCycle)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "daily cycle reports admitted seeds across categories")
	require.Len(t, cycles.opts, 1)
	assert.False(t, cycles.opts[0].Fresh, "the daily cycle resumes")
	assert.Empty(t, cycles.opts[0].Categories, "the daily cycle covers every category")

	_, err = r.RunTask(ctx, "nope")
	assert.Error(t, err)

	state, ok := r.stateManager.GetTaskState(TaskFrontierSchedule)
	require.True(t, ok)
	assert.True(t, state.LastRunSuccess)
	assert.Equal(t, 7, state.LastCount)
}

func TestRunTask_RecordsFailure(t *testing.T) {
	frontier := &fakeFrontier{err: errors.New("store unavailable")}
	r, _ := newTestRunner(t, frontier, &fakeCycles{})

	_, err := r.RunTask(context.Background(), TaskFrontierSchedule)
	require.Error(t, err)

	state, ok := r.stateManager.GetTaskState(TaskFrontierSchedule)
	require.True(t, ok)
	assert.False(t, state.LastRunSuccess)
	assert.Equal(t, "store unavailable", state.ErrorMessage)
}

func TestRunTask_SkipsOverlappingRun(t *testing.T) {
	frontier := &fakeFrontier{block: make(chan struct{})}
	r, _ := newTestRunner(t, frontier, &fakeCycles{})

	done := make(chan error, 1)
	go func() {
		_, err := r.RunTask(context.Background(), TaskFrontierSchedule)
		done <- err
	}()
	require.Eventually(t, func() bool { return frontier.scheduled.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := r.RunTask(context.Background(), TaskFrontierSchedule)
	assert.ErrorIs(t, err, errTaskRunning)

	close(frontier.block)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, frontier.scheduled.Load())
}

func TestRun_SavesStateOnShutdown(t *testing.T) {
	r, dir := newTestRunner(t, &fakeFrontier{}, &fakeCycles{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, st := range r.Status() {
			if st.NextRunTime.IsZero() {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond, "started runner reports next run times")

	_, err := r.RunTask(ctx, TaskQueueCleanup)
	require.NoError(t, err)

	cancel()
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sm := NewStateManager(dir)
	require.NoError(t, sm.Load())
	state, ok := sm.GetTaskState(TaskQueueCleanup)
	require.True(t, ok)
	assert.Equal(t, 2, state.LastCount)
}
