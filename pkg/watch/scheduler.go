package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/config"
	"github.com/Sriram-PR/topic-crawler/pkg/orchestrate"
)

// Task names registered by the Runner
const (
	TaskFrontierSchedule = "frontier-schedule"
	TaskQueueCleanup     = "queue-cleanup"
	TaskReprioritize     = "reprioritize"
	TaskDailyCycle       = "daily-cycle"
)

// FrontierMaintainer is the part of the frontier scheduler driven by the runner
type FrontierMaintainer interface {
	Schedule(ctx context.Context) (int, error)
	CleanupStaleQueue(ctx context.Context) (int, error)
	ReprioritizeAll(ctx context.Context) (int, error)
}

// CycleTrigger admits the seeds of a crawl cycle
type CycleTrigger interface {
	TriggerCycle(ctx context.Context, opts orchestrate.CycleOptions) ([]orchestrate.CycleReport, error)
}

var errTaskRunning = errors.New("task is already running")

// taskFunc runs one task and returns how many items it touched
type taskFunc func(ctx context.Context) (int, error)

type task struct {
	name    string
	spec    string
	run     taskFunc
	entryID cron.EntryID
}

// Runner executes the periodic crawl maintenance tasks on cron schedules
type Runner struct {
	cron         *cron.Cron
	tasks        map[string]*task
	stateManager *StateManager
	log          *logrus.Entry

	mu      sync.Mutex
	running map[string]bool
	ctx     context.Context
}

// NewRunner registers the frontier and cycle tasks with their configured specs.
// Specs are expected to have been validated by config.Validate.
func NewRunner(cfg config.WatchConfig, stateDir string, frontier FrontierMaintainer, cycles CycleTrigger, log *logrus.Entry) (*Runner, error) {
	log = log.WithField("component", "watch")
	r := &Runner{
		cron:         cron.New(cron.WithLogger(cron.PrintfLogger(log))),
		tasks:        make(map[string]*task),
		stateManager: NewStateManager(stateDir),
		log:          log,
		running:      make(map[string]bool),
		ctx:          context.Background(),
	}

	registrations := []struct {
		name string
		spec string
		run  taskFunc
	}{
		{TaskFrontierSchedule, cfg.ScheduleSpec, frontier.Schedule},
		{TaskQueueCleanup, cfg.CleanupSpec, frontier.CleanupStaleQueue},
		{TaskReprioritize, cfg.ReprioritizeSpec, frontier.ReprioritizeAll},
		{TaskDailyCycle, cfg.CycleSpec, func(ctx context.Context) (int, error) {
			reports, err := cycles.TriggerCycle(ctx, orchestrate.CycleOptions{})
			admitted := 0
			for _, rep := range reports {
				admitted += rep.Admitted
			}
			return admitted, err
		}},
	}
	for _, reg := range registrations {
		if err := r.register(reg.name, reg.spec, reg.run); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) register(name, spec string, run taskFunc) error {
	t := &task{name: name, spec: spec, run: run}
	id, err := r.cron.AddFunc(spec, func() {
		r.execute(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add task %s (%q) to cron: %w", name, spec, err)
	}
	t.entryID = id
	r.tasks[name] = t
	return nil
}

// Run starts the cron scheduler and blocks until ctx is done.
// Tasks still running at shutdown are waited for before state is saved.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.stateManager.Load(); err != nil {
		r.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.cron.Start()
	r.log.Infof("Starting watch mode with %d scheduled tasks", len(r.tasks))
	r.logSchedule()

	<-ctx.Done()
	r.log.Info("Watch runner shutting down...")
	<-r.cron.Stop().Done()

	if err := r.stateManager.Save(); err != nil {
		return fmt.Errorf("saving watch state: %w", err)
	}
	return nil
}

// RunTask executes a registered task immediately, outside its schedule
func (r *Runner) RunTask(ctx context.Context, name string) (int, error) {
	t, ok := r.tasks[name]
	if !ok {
		return 0, fmt.Errorf("unknown watch task %q", name)
	}
	return r.runTask(ctx, t)
}

// execute is the cron callback. A run is skipped while the previous one is still going.
func (r *Runner) execute(name string) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	if _, err := r.runTask(ctx, r.tasks[name]); errors.Is(err, errTaskRunning) {
		return
	}
	if err := r.stateManager.Save(); err != nil {
		r.log.Errorf("Failed to save watch state: %v", err)
	}
}

func (r *Runner) runTask(ctx context.Context, t *task) (int, error) {
	r.mu.Lock()
	if r.running[t.name] {
		r.mu.Unlock()
		r.log.WithField("task", t.name).Warn("Previous run still in progress, skipping")
		return 0, fmt.Errorf("%w: %s", errTaskRunning, t.name)
	}
	r.running[t.name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, t.name)
		r.mu.Unlock()
	}()

	taskLog := r.log.WithField("task", t.name)
	start := time.Now()
	count, err := t.run(ctx)
	duration := time.Since(start)

	errorMsg := ""
	if err != nil {
		errorMsg = err.Error()
		taskLog.WithField("duration", duration).Errorf("Task failed: %v", err)
	} else {
		taskLog.WithFields(logrus.Fields{"count": count, "duration": duration}).Info("Task completed")
	}
	r.stateManager.UpdateTaskState(t.name, err == nil, count, errorMsg)
	return count, err
}

// logSchedule logs the current schedule
func (r *Runner) logSchedule() {
	r.log.Info("Watch schedule:")
	for _, st := range r.Status() {
		if st.NeverRun {
			r.log.Infof("  %s (%s): never run, next run in %s", st.Name, st.Spec, FormatInterval(time.Until(st.NextRunTime)))
			continue
		}
		status := "success"
		if !st.LastRunSuccess {
			status = "failed"
		}
		r.log.Infof("  %s (%s): last run %v (%s, %d items), next run %v",
			st.Name,
			st.Spec,
			st.LastRunTime.Format(time.RFC3339),
			status,
			st.LastCount,
			st.NextRunTime.Format(time.RFC3339))
	}
}

// Status returns the state and next run of every task, sorted by next run time.
// NextRunTime is zero until the runner has been started.
func (r *Runner) Status() []TaskStatus {
	next := make(map[cron.EntryID]time.Time)
	for _, e := range r.cron.Entries() {
		next[e.ID] = e.Next
	}

	status := make([]TaskStatus, 0, len(r.tasks))
	for name, t := range r.tasks {
		state, exists := r.stateManager.GetTaskState(name)
		status = append(status, TaskStatus{
			Name:           name,
			Spec:           t.spec,
			LastRunTime:    state.LastRunTime,
			LastRunSuccess: state.LastRunSuccess,
			LastCount:      state.LastCount,
			Runs:           state.Runs,
			ErrorMessage:   state.ErrorMessage,
			NextRunTime:    next[t.entryID],
			NeverRun:       !exists,
		})
	}

	sort.Slice(status, func(i, j int) bool {
		if status[i].NextRunTime.Equal(status[j].NextRunTime) {
			return status[i].Name < status[j].Name
		}
		return status[i].NextRunTime.Before(status[j].NextRunTime)
	})
	return status
}

// TaskStatus contains the status of a scheduled task
type TaskStatus struct {
	Name           string    `json:"name"`
	Spec           string    `json:"spec"`
	LastRunTime    time.Time `json:"last_run_time,omitempty"`
	LastRunSuccess bool      `json:"last_run_success"`
	LastCount      int       `json:"last_count"`
	Runs           int64     `json:"runs"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	NextRunTime    time.Time `json:"next_run_time,omitempty"`
	NeverRun       bool      `json:"never_run"`
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}
