package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/gateway"
	"github.com/soyeahso/taskweaver/internal/hooks"
	"github.com/soyeahso/taskweaver/internal/llm"
	"github.com/soyeahso/taskweaver/internal/runner"
	"github.com/soyeahso/taskweaver/internal/store"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

// newRegistry builds the provider registry for an app. Tests swap it for
// one backed by mock clients.
var newRegistry = llm.NewRegistryFromConfig

// app wires the components every data command needs.
type app struct {
	cfg      *config.Config
	db       *store.DB
	registry *llm.Registry
	exec     *taskexec.Service
	users    *store.UserStore
	agents   *store.AgentStore
	sources  *store.DataSourceStore
	tasks    *store.TaskStore
	usage    *store.UsageStore
	billing  *billing.Enforcer
	hooks    *hooks.Manager
	runner   *runner.Runner
}

func openApp() (*app, error) {
	c, err := loadedConfig()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}

	db, err := store.Open(paths.DatabasePath(c), log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{
		cfg:      c,
		db:       db,
		registry: newRegistry(c, log),
		users:    store.NewUserStore(db),
		agents:   store.NewAgentStore(db),
		sources:  store.NewDataSourceStore(db),
		tasks:    store.NewTaskStore(db),
		usage:    store.NewUsageStore(db),
		hooks:    hooks.NewManager(log),
	}
	a.exec = taskexec.New(a.registry, log,
		taskexec.WithDefaultModel(c.Models.Default),
		taskexec.WithEmbeddingModel(c.Models.Embedding),
	)
	a.billing = billing.NewEnforcer(a.users, c.Billing.DefaultPlan, map[billing.Resource]billing.Counter{
		billing.ResourceAgents:        a.agents.CountByUser,
		billing.ResourceDataSources:   a.sources.CountByUser,
		billing.ResourceTasksPerMonth: a.tasksThisMonth,
	}, log)

	if n := hooks.RegisterFromConfig(a.hooks, c.Hooks); n > 0 {
		log.Debug().Int("hooks", n).Msg("registered command hooks")
	}

	a.runner = runner.New(runner.Deps{
		Agents:  a.agents,
		Sources: a.sources,
		Tasks:   a.tasks,
		Usage:   a.usage,
		Limits:  a.billing,
		Exec:    a.exec,
		Hooks:   a.hooks,
	}, runner.Options{
		OneTaskPerAgent: c.Runner.OneTaskPerAgent,
		Timeout:         time.Duration(c.Runner.TimeoutSec) * time.Second,
	}, log)

	return a, nil
}

func (a *app) tasksThisMonth(ctx context.Context, userID string) (int, error) {
	return a.tasks.CountSince(ctx, userID, domain.MonthStart(time.Now()))
}

func (a *app) gatewayDeps() gateway.Deps {
	return gateway.Deps{
		Agents:  a.agents,
		Sources: a.sources,
		Tasks:   a.tasks,
		Usage:   a.usage,
		Billing: a.billing,
		Exec:    a.exec,
		Runner:  a.runner,
		Hooks:   a.hooks,
	}
}

// Close waits for hook commands still running, then closes the database.
func (a *app) Close() error {
	a.hooks.Wait()
	return a.db.Close()
}

// withApp opens the app for the duration of fn.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
