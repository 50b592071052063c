// Package runner drives a task through its lifecycle: submission against
// the user's plan, execution through the task execution service, and
// persistence of the outcome and usage.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/hooks"
	"github.com/soyeahso/taskweaver/internal/logging"
	"github.com/soyeahso/taskweaver/internal/store"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

var (
	// ErrLimitReached is returned when the user's plan allows no more tasks
	// this month.
	ErrLimitReached = billing.ErrLimitReached
	// ErrAgentBusy is returned when the agent already has a task running
	// and only one is allowed at a time.
	ErrAgentBusy = errors.New("agent already has a task running")
	// ErrAgentInactive is returned for tasks submitted to a paused agent.
	ErrAgentInactive = errors.New("agent is not active")
	// ErrNotPending is returned when Run is called on a task that already
	// started.
	ErrNotPending = errors.New("task is not pending")
)

// AgentStore reads agents.
type AgentStore interface {
	Get(ctx context.Context, id string) (*domain.Agent, error)
}

// DataSourceStore resolves a user's data sources by ID.
type DataSourceStore interface {
	ListByIDs(ctx context.Context, userID string, ids []string) ([]domain.DataSource, error)
}

// TaskStore persists task state transitions.
type TaskStore interface {
	Create(ctx context.Context, t *domain.Task) error
	CreateCapped(ctx context.Context, t *domain.Task, since time.Time, max int) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	Start(ctx context.Context, id string) (*domain.Task, error)
	Finish(ctx context.Context, t *domain.Task) error
	FailStale(ctx context.Context, cutoff time.Time, kind, message string) (int, error)
}

// UsageStore records usage ledger entries.
type UsageStore interface {
	Track(ctx context.Context, rec *domain.UsageRecord) error
}

// Limiter checks plan limits. *billing.Enforcer satisfies it.
type Limiter interface {
	Check(ctx context.Context, userID string, r billing.Resource) error
	Reserve(ctx context.Context, userID string, r billing.Resource, create func(ctx context.Context, limit int) error) error
}

// Deps are the collaborators a Runner needs. Hooks and Limits are optional.
type Deps struct {
	Agents  AgentStore
	Sources DataSourceStore
	Tasks   TaskStore
	Usage   UsageStore
	Limits  Limiter
	Exec    *taskexec.Service
	Hooks   *hooks.Manager
}

// Options tune a Runner.
type Options struct {
	// OneTaskPerAgent rejects Run with ErrAgentBusy while another task of
	// the same agent is running in this process.
	OneTaskPerAgent bool
	// Timeout bounds a single provider call. Zero means no bound beyond
	// the caller's context.
	Timeout time.Duration
	// StaleAfter is how long a task may stay running before RecoverStale
	// fails it. Zero means Timeout plus a minute, or 30 minutes without a
	// Timeout.
	StaleAfter time.Duration
}

// Runner submits and runs tasks.
type Runner struct {
	deps Deps
	opts Options
	log  *logging.Logger

	mu   sync.Mutex
	busy map[string]string // agent ID → running task ID
}

// New creates a Runner.
func New(deps Deps, opts Options, log *logging.Logger) *Runner {
	return &Runner{
		deps: deps,
		opts: opts,
		log:  log.Sub("runner"),
		busy: make(map[string]string),
	}
}

// Submit validates a task request for userID and stores it as pending.
func (r *Runner) Submit(ctx context.Context, userID, agentID, input string, sourceIDs []string) (*domain.Task, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: input is required", taskexec.ErrInvalidArgument)
	}
	agent, err := r.ownedAgent(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != domain.AgentActive {
		return nil, fmt.Errorf("agent %s: %w", agent.ID, ErrAgentInactive)
	}
	if len(sourceIDs) > 0 {
		if _, err := r.deps.Sources.ListByIDs(ctx, userID, sourceIDs); err != nil {
			return nil, fmt.Errorf("resolving data sources: %w", err)
		}
	}
	task := &domain.Task{
		UserID:        userID,
		AgentID:       agent.ID,
		Input:         input,
		DataSourceIDs: sourceIDs,
	}
	if err := r.create(ctx, task); err != nil {
		return nil, err
	}

	r.log.Info().Str("task_id", task.ID).Str("agent_id", agent.ID).Str("user_id", userID).Msg("task submitted")
	r.emit(ctx, hooks.EventTaskSubmitted, task)
	return task, nil
}

// Run executes a pending task and stores its outcome. A provider failure
// is not an error: the task is returned with status failed and the
// classified error kind. Errors are returned only when the task could not
// be run or its outcome could not be stored.
func (r *Runner) Run(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	task, err := r.deps.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	if task.UserID != userID {
		return nil, fmt.Errorf("task %s: %w", taskID, store.ErrNotFound)
	}
	if task.Status != domain.TaskPending {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, ErrNotPending)
	}

	agent, err := r.ownedAgent(ctx, userID, task.AgentID)
	if err != nil {
		return nil, err
	}

	release, err := r.acquire(agent.ID, task.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	task, err = r.deps.Tasks.Start(ctx, taskID)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotPending)
	}
	if err != nil {
		return nil, fmt.Errorf("starting task %s: %w", taskID, err)
	}
	r.emit(ctx, hooks.EventTaskStarted, task)

	r.execute(ctx, agent, task)

	// The outcome is stored even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err := r.deps.Tasks.Finish(persistCtx, task); err != nil {
		r.log.Error().Err(err).
			Str("task_id", task.ID).
			Str("status", string(task.Status)).
			Msg("could not store task outcome; task stays running until recovered")
		return nil, fmt.Errorf("finishing task %s: %w", taskID, err)
	}
	r.track(persistCtx, task)

	ev := r.log.Info()
	if task.Status == domain.TaskFailed {
		ev = r.log.Warn().Str("error_kind", task.ErrorKind)
	}
	ev.Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Str("model", task.Model).
		Int("tokens", task.TokensUsed).
		Float64("cost_cents", task.CostCents).
		Int64("duration_ms", task.DurationMs).
		Msg("task finished")

	if task.Status == domain.TaskCompleted {
		r.emit(ctx, hooks.EventTaskCompleted, task)
	} else {
		r.emit(ctx, hooks.EventTaskFailed, task)
	}
	return task, nil
}

// create stores a new task. With limits configured, the monthly task count
// is checked again in the same write that inserts the task.
func (r *Runner) create(ctx context.Context, task *domain.Task) error {
	if r.deps.Limits == nil {
		if err := r.deps.Tasks.Create(ctx, task); err != nil {
			return fmt.Errorf("creating task: %w", err)
		}
		return nil
	}
	if err := r.deps.Limits.Check(ctx, task.UserID, billing.ResourceTasksPerMonth); err != nil {
		return err
	}

	since := domain.MonthStart(time.Now())
	return r.deps.Limits.Reserve(ctx, task.UserID, billing.ResourceTasksPerMonth, func(ctx context.Context, limit int) error {
		var err error
		if limit == billing.Unlimited {
			err = r.deps.Tasks.Create(ctx, task)
		} else {
			err = r.deps.Tasks.CreateCapped(ctx, task, since, limit)
		}
		switch {
		case errors.Is(err, store.ErrCapReached):
			return fmt.Errorf("%w: %v", billing.ErrLimitReached, err)
		case err != nil:
			return fmt.Errorf("creating task: %w", err)
		}
		return nil
	})
}

// Execute submits a task and runs it immediately.
func (r *Runner) Execute(ctx context.Context, userID, agentID, input string, sourceIDs []string) (*domain.Task, error) {
	task, err := r.Submit(ctx, userID, agentID, input, sourceIDs)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, userID, task.ID)
}

// TestAgent tries one of the user's agents with sample input without
// creating a task. Paused agents can be tested.
func (r *Runner) TestAgent(ctx context.Context, userID, agentID, sample string) (taskexec.Result[taskexec.TaskResult], error) {
	agent, err := r.ownedAgent(ctx, userID, agentID)
	if err != nil {
		return taskexec.Result[taskexec.TaskResult]{}, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.deps.Exec.TestAgent(ctx, agent, sample)
}

// RecoverStale fails tasks left running by a process that stopped, or could
// not store an outcome, before they finished. Only tasks older than the
// stale window are touched, so runs in flight elsewhere are left alone.
func (r *Runner) RecoverStale(ctx context.Context) (int, error) {
	window := r.opts.StaleAfter
	if window <= 0 {
		window = 30 * time.Minute
		if r.opts.Timeout > 0 {
			window = r.opts.Timeout + time.Minute
		}
	}
	n, err := r.deps.Tasks.FailStale(ctx, time.Now().Add(-window), string(taskexec.KindUnknown), "task was interrupted before its outcome was stored")
	if err != nil {
		return 0, fmt.Errorf("recovering stale tasks: %w", err)
	}
	if n > 0 {
		r.log.Warn().Int("tasks", n).Dur("stale_after", window).Msg("failed tasks left running")
	}
	return n, nil
}

// Running reports the ID of the task currently running for agentID.
func (r *Runner) Running(agentID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.busy[agentID]
	return id, ok
}

// execute fills in the task's terminal fields.
func (r *Runner) execute(ctx context.Context, agent *domain.Agent, task *domain.Task) {
	task.Model = r.deps.Exec.ModelConfigFor(agent).Model

	sources, err := r.deps.Sources.ListByIDs(ctx, task.UserID, task.DataSourceIDs)
	if err != nil {
		fail(task, string(taskexec.KindUnknown), fmt.Sprintf("resolving data sources: %v", err))
		return
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.deps.Exec.ExecuteAgentTask(ctx, agent, task.Input, sources)
	if err != nil {
		fail(task, string(taskexec.KindUnknown), err.Error())
		return
	}
	if !res.Success {
		fail(task, string(res.Error.Kind), res.Error.Message)
		return
	}

	out := res.Data
	task.Status = domain.TaskCompleted
	task.Output = out.Output
	task.Model = out.Model
	task.TokensUsed = out.TokensUsed
	task.CostCents = out.CostCents
	task.DurationMs = out.DurationMs
}

func fail(task *domain.Task, kind, msg string) {
	task.Status = domain.TaskFailed
	task.ErrorKind = kind
	task.Error = msg
}

func (r *Runner) track(ctx context.Context, task *domain.Task) {
	records := []*domain.UsageRecord{
		{UserID: task.UserID, ResourceType: domain.UsageTasks, Quantity: 1, TaskID: task.ID},
	}
	if task.TokensUsed > 0 {
		records = append(records, &domain.UsageRecord{
			UserID: task.UserID, ResourceType: domain.UsageTokens, Quantity: task.TokensUsed, TaskID: task.ID,
		})
	}
	for _, rec := range records {
		if err := r.deps.Usage.Track(ctx, rec); err != nil {
			r.log.Error().Err(err).Str("task_id", task.ID).Str("resource", rec.ResourceType).Msg("failed to track usage")
		}
	}
}

func (r *Runner) ownedAgent(ctx context.Context, userID, agentID string) (*domain.Agent, error) {
	agent, err := r.deps.Agents.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, err)
	}
	if agent.UserID != userID {
		return nil, fmt.Errorf("agent %s: %w", agentID, store.ErrNotFound)
	}
	return agent, nil
}

func (r *Runner) acquire(agentID, taskID string) (func(), error) {
	if !r.opts.OneTaskPerAgent {
		return func() {}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if running, ok := r.busy[agentID]; ok {
		return nil, fmt.Errorf("agent %s is running task %s: %w", agentID, running, ErrAgentBusy)
	}
	r.busy[agentID] = taskID
	return func() {
		r.mu.Lock()
		delete(r.busy, agentID)
		r.mu.Unlock()
	}, nil
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
}

func (r *Runner) emit(ctx context.Context, event string, task *domain.Task) {
	if r.deps.Hooks == nil {
		return
	}
	data := map[string]any{
		"task_id":  task.ID,
		"agent_id": task.AgentID,
		"user_id":  task.UserID,
		"status":   string(task.Status),
	}
	if task.Status.Terminal() {
		data["model"] = task.Model
		data["tokens_used"] = task.TokensUsed
		data["cost_cents"] = task.CostCents
		data["duration_ms"] = task.DurationMs
		if task.Error != "" {
			data["error"] = task.Error
			data["error_kind"] = task.ErrorKind
		}
	}
	r.deps.Hooks.EmitAsync(ctx, event, data)
}
