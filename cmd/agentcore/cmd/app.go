package cmd

import (
	"context"
	"fmt"

	"github.com/localfirst/agentcore/approval"
	"github.com/localfirst/agentcore/cache"
	"github.com/localfirst/agentcore/config"
	"github.com/localfirst/agentcore/core"
	"github.com/localfirst/agentcore/executor"
	"github.com/localfirst/agentcore/hooks"
	"github.com/localfirst/agentcore/llm"
	"github.com/localfirst/agentcore/metrics"
	"github.com/localfirst/agentcore/planner"
	"github.com/localfirst/agentcore/resourceguard"
	"github.com/localfirst/agentcore/scheduler"
	"github.com/localfirst/agentcore/store"
	"github.com/localfirst/agentcore/telemetry"
)

// App aggregates every wired component; each subcommand builds one via
// buildApp and tears it down with the returned cleanup func.
type App struct {
	DB        *store.DB
	Settings  *store.SettingsStore
	Hooks     *hooks.Dispatcher
	Trust     *approval.FileTrustStore
	Approval  *approval.Controller
	Router    *llm.Router
	Metrics   *metrics.Registry
	Cache     *cache.Cache
	Guard     *resourceguard.Guard
	TaskStore *store.TaskStore

	Scheduler *scheduler.Scheduler
	Log       core.ComponentAwareLogger
}

func buildApp(ctx context.Context) (*App, func(), error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(ctx, flagDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	taskStore := store.NewTaskStore(db)
	cacheStore := store.NewCacheStore(db)
	hookStore := store.NewHookStore(db)
	settingsStore, err := store.NewSettingsStore(db, flagKeyDir)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open settings store: %w", err)
	}

	log := core.NewProductionLogger("agentcore")
	metricsReg := metrics.New()
	tel, err := telemetry.New("agentcore", metricsReg.Record)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init telemetry: %w", err)
	}

	respCache := cache.New(cacheStore, 10000)
	router := llm.New(respCache, llm.WithLogger(log.WithComponent("llm")), llm.WithTelemetry(tel))

	plnr := planner.New(router, log.WithComponent("planner"))

	trust, err := approval.LoadFileTrustStore(flagTrustPath)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("load trust store: %w", err)
	}
	approvalSink := &loggingApprovalSink{log: log.WithComponent("approval")}
	approvalCtrl := approval.New(trust, approvalSink, log.WithComponent("approval"))

	dispatcher, err := hooks.New(ctx, hookStore, log.WithComponent("hooks"), hooks.WithMetricSink(metricsReg.Record))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init hook dispatcher: %w", err)
	}

	guard := resourceguard.New(cfg.CPULimitPercent, cfg.MemoryLimitMB)
	exec := executor.New(executor.WithLogger(log.WithComponent("executor")), executor.WithTelemetry(tel))

	schedSink := &metricsEventSink{reg: metricsReg, log: log.WithComponent("scheduler")}
	sched := scheduler.New(*cfg, taskStore, plnr, approvalCtrl, exec, dispatcher, guard,
		scheduler.WithLogger(log.WithComponent("scheduler")),
		scheduler.WithTelemetry(tel),
		scheduler.WithEventSink(schedSink),
	)

	app := &App{
		DB:        db,
		Settings:  settingsStore,
		Hooks:     dispatcher,
		Trust:     trust,
		Approval:  approvalCtrl,
		Router:    router,
		Metrics:   metricsReg,
		Cache:     respCache,
		Guard:     guard,
		TaskStore: taskStore,
		Scheduler: sched,
		Log:       log,
	}

	cleanup := func() {
		_ = tel.Shutdown(context.Background())
		_ = db.Close()
	}
	return app, cleanup, nil
}
