package app

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/executor"
	"github.com/vk/taskgrid/internal/grid"
	"github.com/vk/taskgrid/internal/queue"
	"github.com/vk/taskgrid/internal/task"
)

// Run executes the loaded grid through the task executor and logs a per-task
// summary. It returns a non-nil error if any task did not succeed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	execCfg, shutdownPolicy, err := a.executorConfig()
	if err != nil {
		return err
	}
	metrics := newTallyMetrics()
	execCfg.Metrics = metrics
	execCfg.Publisher = &slogPublisher{logger: a.logger}

	ex, err := executor.New(execCfg)
	if err != nil {
		return err
	}

	a.logger.Info("Starting execution.",
		"tasks", len(a.model.Tasks),
		"workers", execCfg.MaxWorkers,
		"policy", execCfg.Policy.String(),
	)
	ex.Start(ctx)

	ids, err := a.submitAll(ex)
	if err != nil {
		ex.Shutdown(executor.ForceTermination)
		return err
	}

	ex.Shutdown(shutdownPolicy)

	return a.summarize(ex, ids, metrics)
}

// executorConfig merges CLI flags over grid settings over executor defaults.
func (a *App) executorConfig() (executor.Config, executor.ShutdownPolicy, error) {
	settings := a.model.Settings
	if settings == nil {
		settings = &grid.Settings{}
	}

	pick := func(flag string, setting *string) string {
		if flag != "" {
			return flag
		}
		if setting != nil {
			return *setting
		}
		return ""
	}

	var cfg executor.Config

	cfg.MaxWorkers = a.config.Workers
	if cfg.MaxWorkers <= 0 && settings.Workers != nil {
		cfg.MaxWorkers = *settings.Workers
	}
	cfg.QueueCapacity = a.config.QueueCapacity
	if cfg.QueueCapacity <= 0 && settings.QueueCapacity != nil {
		cfg.QueueCapacity = *settings.QueueCapacity
	}

	policy, err := queue.ParsePolicy(pick(a.config.Policy, settings.Policy))
	if err != nil {
		return cfg, 0, err
	}
	cfg.Policy = policy

	rejection, err := executor.ParseRejectionPolicy(pick(a.config.RejectionPolicy, settings.RejectionPolicy))
	if err != nil {
		return cfg, 0, err
	}
	cfg.RejectionPolicy = rejection

	shutdown, err := executor.ParseShutdownPolicy(pick(a.config.ShutdownPolicy, settings.ShutdownPolicy))
	if err != nil {
		return cfg, 0, err
	}
	cfg.ShutdownPolicy = shutdown

	monitorMs := a.config.MonitorIntervalMs
	if monitorMs <= 0 && settings.MonitorIntervalMs != nil {
		monitorMs = *settings.MonitorIntervalMs
	}
	cfg.MonitorInterval = time.Duration(monitorMs) * time.Millisecond

	if settings.ShutdownTimeoutMs != nil {
		cfg.ShutdownTimeout = time.Duration(*settings.ShutdownTimeoutMs) * time.Millisecond
	}

	return cfg, shutdown, nil
}

// submitAll submits every grid task, resolving depends_on names to task IDs.
// Tasks are submitted in rounds so declaration order does not matter; a
// round with no progress means an unknown name or a dependency cycle.
func (a *App) submitAll(ex *executor.Executor) (map[string]task.ID, error) {
	known := make(map[string]struct{}, len(a.model.Tasks))
	for _, gt := range a.model.Tasks {
		known[gt.Name] = struct{}{}
	}
	for _, gt := range a.model.Tasks {
		for _, dep := range gt.DependsOn {
			if _, ok := known[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", gt.Name, dep)
			}
		}
	}

	ids := make(map[string]task.ID, len(a.model.Tasks))
	remaining := a.model.Tasks
	for len(remaining) > 0 {
		var deferred []*grid.Task
		progressed := false

		for _, gt := range remaining {
			depIDs, ok := resolveDeps(gt, ids)
			if !ok {
				deferred = append(deferred, gt)
				continue
			}
			meta, err := taskMeta(gt, depIDs)
			if err != nil {
				return nil, err
			}
			id, err := ex.Submit(commandBody(gt.Command), meta)
			if err != nil {
				return nil, fmt.Errorf("failed to submit task %q: %w", gt.Name, err)
			}
			a.logger.Debug("Task submitted.", "task", gt.Name, "taskID", id)
			ids[gt.Name] = id
			progressed = true
		}

		if !progressed {
			var stuck []string
			for _, gt := range deferred {
				stuck = append(stuck, gt.Name)
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("dependency cycle involving tasks: %s", strings.Join(stuck, ", "))
		}
		remaining = deferred
	}
	return ids, nil
}

// resolveDeps maps a task's depends_on names to already-assigned IDs.
func resolveDeps(gt *grid.Task, ids map[string]task.ID) ([]task.ID, bool) {
	depIDs := make([]task.ID, 0, len(gt.DependsOn))
	for _, dep := range gt.DependsOn {
		id, ok := ids[dep]
		if !ok {
			return nil, false
		}
		depIDs = append(depIDs, id)
	}
	return depIDs, true
}

// taskMeta converts grid metadata into the executor's task metadata.
func taskMeta(gt *grid.Task, depIDs []task.ID) (task.Meta, error) {
	priority, err := task.ParsePriority(gt.Priority)
	if err != nil {
		return task.Meta{}, fmt.Errorf("task %q: %w", gt.Name, err)
	}
	meta := task.Meta{
		Name:         gt.Name,
		Priority:     priority,
		Dependencies: depIDs,
	}
	if gt.DeadlineMs > 0 {
		meta.Deadline = time.Now().Add(time.Duration(gt.DeadlineMs) * time.Millisecond)
	}
	if gt.CPUCores > 0 {
		meta.Constraints = append(meta.Constraints, task.Constraint{Kind: task.ConstraintCPUCores, Amount: gt.CPUCores})
	}
	if gt.MemoryMB > 0 {
		meta.Constraints = append(meta.Constraints, task.Constraint{Kind: task.ConstraintMemoryMB, Amount: gt.MemoryMB})
	}
	return meta, nil
}

// commandBody wraps a shell command line as a synchronous task body. The
// command inherits the task's cancellation context.
func commandBody(command string) task.Func {
	return func(ctx context.Context) (any, error) {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
		return strings.TrimRight(string(out), "\n"), nil
	}
}

// summarize logs the terminal state of every task and the final stats.
func (a *App) summarize(ex *executor.Executor, ids map[string]task.ID, metrics *tallyMetrics) error {
	failed := 0
	for _, gt := range a.model.Tasks {
		id := ids[gt.Name]
		state, err := ex.State(id)
		if err != nil {
			a.logger.Error("Task vanished from executor.", "task", gt.Name, "taskID", id)
			failed++
			continue
		}
		switch state {
		case task.Succeeded:
			a.logger.Info("Task succeeded.", "task", gt.Name)
		case task.Cancelled:
			a.logger.Warn("Task cancelled.", "task", gt.Name)
			failed++
		default:
			_, resultErr := ex.Result(id)
			a.logger.Error("Task failed.", "task", gt.Name, "state", state.String(), "error", resultErr)
			failed++
		}
	}

	stats := ex.Stats()
	a.logger.Info("Execution finished.",
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"cancelled", stats.Cancelled,
		"rejected", stats.Rejected,
		"avgWait", stats.AvgWait,
		"avgExec", stats.AvgExec,
		"totalExec", metrics.Total("task.exec"),
	)

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks did not succeed", failed, len(a.model.Tasks))
	}
	return nil
}
