package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/flemzord/deskclaw/internal/agent"
	"github.com/flemzord/deskclaw/internal/approval"
	"github.com/flemzord/deskclaw/internal/bot"
	"github.com/flemzord/deskclaw/internal/config"
	"github.com/flemzord/deskclaw/internal/cron"
	"github.com/flemzord/deskclaw/internal/gateway"
	"github.com/flemzord/deskclaw/internal/quota"
	"github.com/flemzord/deskclaw/internal/sandbox"
	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/session"
	"github.com/flemzord/deskclaw/internal/telemetry"
	"github.com/flemzord/deskclaw/internal/tool"
	"github.com/flemzord/deskclaw/internal/tools/browser"
	"github.com/flemzord/deskclaw/internal/tools/documents"
	"github.com/flemzord/deskclaw/internal/tools/files"
	"github.com/flemzord/deskclaw/internal/tools/imagegen"
	"github.com/flemzord/deskclaw/modules/channel/telegram"
	"github.com/flemzord/deskclaw/modules/provider/gemini"
	"github.com/flemzord/deskclaw/modules/session/sqlite"
)

// laneIdle is how long an unused lane lock is kept.
const laneIdle = time.Hour

// Options are the process-level inputs to Build.
type Options struct {
	DataDir string
	Version string

	// LogOutput receives the process log. Defaults to os.Stderr.
	LogOutput io.Writer
}

// App holds every wired component. Build creates it, Start runs it and
// Stop tears it down in reverse order.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Audit     *security.AuditLogger
	Metrics   *telemetry.Metrics
	Policy    *sandbox.Policy
	Sessions  session.Store
	Quota     *quota.Tracker
	Lanes     *session.LaneLock
	Gate      *approval.Gate
	Registry  *tool.Registry
	Agent     *agent.Orchestrator
	Bot       *bot.Bot
	Telegram  *telegram.Channel
	Gateway   *gateway.Gateway // nil when gateway.bind is empty
	Scheduler *cron.Scheduler

	// closers release resources after the components stop, last first.
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Build wires the application from a validated configuration. On error
// every resource opened so far is released.
func Build(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	redactor := NewRedactor(cfg)
	a.Logger = NewLogger(opts.LogOutput, cfg.Log.Level, redactor)

	var auditOut io.Writer
	if cfg.Log.AuditPath != "" {
		f, err := openAuditFile(cfg.Log.AuditPath)
		if err != nil {
			return nil, err
		}
		a.onClose("audit", func(context.Context) error { return f.Close() })
		auditOut = f
	}
	a.Audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: auditOut, Redactor: redactor})

	tracing := cfg.Telemetry
	tracing.ServiceName = appName
	tracing.ServiceVersion = opts.Version
	shutdownTracing, err := telemetry.SetupTracing(ctx, tracing)
	if err != nil {
		return nil, err
	}
	a.onClose("tracing", shutdownTracing)
	a.Metrics = telemetry.NewMetrics()

	if a.Policy, err = sandbox.NewPolicy(cfg.Sandbox.DenyPatterns...); err != nil {
		return nil, err
	}
	if err := a.openSessions(ctx, opts.DataDir); err != nil {
		return nil, err
	}
	a.Quota = quota.NewTracker(cfg.Quota)
	a.Lanes = session.NewLaneLock()

	a.Telegram = telegram.New(cfg.Telegram.Config, a.Logger)
	a.Gate = approval.NewGate(approval.Config{
		Prompter: a.Telegram,
		Timeout:  cfg.Approval.Timeout,
		Logger:   a.Logger,
		Audit:    a.Audit,
		OnDecision: func(_ string, outcome approval.Outcome) {
			a.Metrics.ObserveApproval(string(outcome))
		},
	})

	if err := a.registerTools(opts.Version); err != nil {
		return nil, err
	}

	llm, err := gemini.New(ctx, cfg.Gemini, a.Logger)
	if err != nil {
		return nil, err
	}

	loop := cfg.AgentLoop()
	a.Agent = agent.NewOrchestrator(agent.OrchestratorConfig{
		Provider: llm,
		Registry: a.Registry,
		Sessions: a.Sessions,
		Executor: agent.NewExecutor(agent.ExecutorConfig{
			Registry:        a.Registry,
			Confirmer:       a.Gate,
			ApprovalTimeout: loop.ApprovalTimeout,
			MaxParallel:     loop.MaxParallelTools,
			Logger:          a.Logger,
			Audit:           a.Audit,
			Metrics:         a.Metrics,
		}),
		Config:  loop,
		Logger:  a.Logger,
		Audit:   a.Audit,
		Metrics: a.Metrics,
	})

	a.Bot, err = bot.New(bot.Config{
		Transport: a.Telegram,
		Agent:     a.Agent,
		Approvals: a.Gate,
		Sessions:  a.Sessions,
		Policy:    a.Policy,
		Quota:     a.Quota,
		Lanes:     a.Lanes,
		AllowList: bot.NewAllowList(cfg.Telegram.AllowedUsers),
		Tools:     a.Registry.Declarations(),
		Workers:   cfg.Agent.Workers,
		Logger:    a.Logger,
		Audit:     a.Audit,
		Metrics:   a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Gateway.Enabled() {
		a.Gateway = gateway.New(cfg.Gateway, gateway.Deps{
			Sessions:  a.Sessions,
			Approvals: a.Gate,
			Metrics:   a.Metrics,
			Audit:     a.Audit,
			Logger:    a.Logger,
		})
	}

	if err := a.buildScheduler(); err != nil {
		return nil, err
	}
	return a, nil
}

// openSessions opens the configured session store and audits creations.
func (a *App) openSessions(ctx context.Context, dataDir string) error {
	cfg := a.Config
	defaults := session.Defaults{
		WorkingDir:   cfg.Sandbox.DefaultWorkingDir,
		AllowedRoots: cfg.Sandbox.AllowedPaths,
	}
	onCreate := func(principal string) {
		a.Audit.Log(security.AuditEvent{Type: security.EventSessionCreate, Principal: principal})
	}

	switch cfg.Storage.Driver {
	case "memory":
		store := session.NewMemoryStore(defaults)
		store.OnCreate = onCreate
		a.Sessions = store
	default:
		sc := cfg.Storage.Config
		if sc.Path == "" {
			sc.Path = sqlite.DefaultPath(dataDir)
		}
		store, err := sqlite.Open(ctx, sc, defaults)
		if err != nil {
			return err
		}
		store.OnCreate = onCreate
		a.onClose("sessions", func(context.Context) error { return store.Close() })
		a.Sessions = store
		a.Logger.Info("session store opened", "driver", "sqlite", "path", sc.Path)
	}
	return nil
}

// registerTools builds the tool registry. Image generation is registered
// only when enabled.
func (a *App) registerTools(version string) error {
	cfg := a.Config
	a.Registry = tool.NewRegistry()
	a.Registry.SetAuditLogger(a.Audit)

	a.Registry.MustRegister(files.New(a.Policy, cfg.Files)...)
	a.Registry.MustRegister(documents.New(a.Policy))

	rod := browser.NewRodBrowser(cfg.Browser.Rod(), a.Logger)
	a.onClose("browser", func(context.Context) error { return rod.Close() })
	a.Registry.MustRegister(browser.New(rod, cfg.Browser, a.Logger)...)

	if ig := cfg.ImageGeneration; ig.Enabled {
		caller := imagegen.NewStdioCaller(ig.Command, ig.Args, ig.Env, version, a.Logger)
		a.onClose("imagegen", func(context.Context) error { return caller.Close() })
		if err := a.Registry.Register(imagegen.New(caller, ig, a.Logger)); err != nil {
			return err
		}
	}

	a.Logger.Info("tools registered", "tools", a.Registry.Names())
	return nil
}

// buildScheduler registers the maintenance jobs that are not disabled.
func (a *App) buildScheduler() error {
	m := a.Config.Maintenance
	a.Scheduler = cron.NewScheduler(a.Logger)

	type scheduled struct {
		expr string
		job  cron.Job
	}
	jobs := []scheduled{
		{m.QuotaPrune, &cron.QuotaPruneJob{Prune: a.Quota.Prune, MaxIdle: config.MaxIdle, Logger: a.Logger, ScheduleExpr: m.QuotaPrune}},
		{m.LaneCleanup, &cron.LaneCleanupJob{Cleanup: a.Lanes.Cleanup, MaxIdle: laneIdle, Logger: a.Logger, ScheduleExpr: m.LaneCleanup}},
	}
	if opt, ok := a.Sessions.(cron.Optimizer); ok {
		jobs = append(jobs, scheduled{m.SQLiteOptimize, &cron.SQLiteOptimizeJob{Store: opt, Logger: a.Logger, ScheduleExpr: m.SQLiteOptimize}})
	}

	for _, j := range jobs {
		if j.expr == config.DisabledSchedule {
			continue
		}
		if err := a.Scheduler.RegisterJob(j.job); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the bot workers, the Telegram poller, the gateway and the
// scheduler.
func (a *App) Start(ctx context.Context) error {
	a.Bot.Start(ctx)

	if err := a.Telegram.Start(ctx, a.Bot.Submit); err != nil {
		return err
	}
	if a.Gateway != nil {
		if err := a.Gateway.Start(ctx); err != nil {
			return err
		}
	}
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	a.Logger.Info("deskclaw started",
		"model", a.Agent.ModelName(),
		"tools", a.Registry.Len(),
		"allowed_users", len(a.Config.Telegram.AllowedUsers),
	)
	return nil
}

// Stop halts intake first, then cancels pending confirmations so blocked
// turns can finish, then releases resources. Every step runs; the errors
// are joined.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if a.Scheduler != nil {
		errs = append(errs, wrapStop("scheduler", a.Scheduler.Stop(ctx)))
	}
	if a.Gateway != nil {
		errs = append(errs, wrapStop("gateway", a.Gateway.Stop(ctx)))
	}
	if a.Telegram != nil {
		errs = append(errs, wrapStop("telegram", a.Telegram.Stop(ctx)))
	}
	if a.Gate != nil {
		a.Gate.Close()
	}
	if a.Bot != nil {
		a.Bot.Stop(ctx)
	}

	errs = append(errs, a.close(ctx))
	if a.Logger != nil {
		a.Logger.Info("deskclaw stopped")
	}
	return errors.Join(errs...)
}

// close runs the registered closers, last first.
func (a *App) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		errs = append(errs, wrapStop(c.name, c.fn(ctx)))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func wrapStop(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stopping %s: %w", name, err)
}
