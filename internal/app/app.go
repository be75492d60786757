package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"mailblast/internal/config"
	"mailblast/internal/dispatch"
	"mailblast/internal/mailer"
	"mailblast/internal/notify"
	"mailblast/internal/progress"
	"mailblast/internal/runtime/supervisor"
	"mailblast/internal/schedule"
	"mailblast/internal/source"
	logx "mailblast/pkg/logx"
)

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitAborted     = 1
	ExitInterrupted = 130
)

type Options struct {
	ConfigPath string
	EnvFiles   []string // default: .env
	DryRun     bool     // force dry run regardless of config
	Once       bool     // ignore schedule.spec and run a single pass
}

// App wires config, logging and notifications around the send loop.
// A fresh progress store and Dispatcher are built for every run.
type App struct {
	opts Options
	cfgm *config.ConfigManager

	log   logx.Logger
	logs  *logx.Service
	notif notify.Notifier

	mu     sync.Mutex
	active *dispatch.Dispatcher
}

func New(opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.EnvFiles...); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "notify"))
	notif, err := notify.New(mapNotify(cfg), bootLog)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}

	logs, log := logx.New(mapLogging(cfg), notif)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	return &App{
		opts:  opts,
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logs,
		notif: notif,
	}, nil
}

func (a *App) Close() error { return a.logs.Close() }

// Run performs one pass, or stays resident when a schedule is configured.
// The returned error maps to a process exit code with ExitCode.
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	sup.GoRestart("config.watch", a.cfgm.Watch, 250*time.Millisecond, 30*time.Second)
	sup.Go0("config.reload", a.reloadLoop)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sup.Stop(stopCtx); err != nil {
			a.log.Warn("background goroutines did not stop cleanly", logx.Err(err))
		}
	}()

	cfg := a.cfgm.Get()
	if spec := strings.TrimSpace(cfg.Schedule.Spec); spec != "" && !a.opts.Once {
		return a.runScheduled(ctx, cfg)
	}

	sdNotify(a.log, daemon.SdNotifyReady)
	defer sdNotify(a.log, daemon.SdNotifyStopping)
	_, err := a.runOnce(ctx)
	return err
}

func (a *App) runScheduled(ctx context.Context, cfg *config.Config) error {
	r, err := schedule.New(mapSchedule(cfg), func(ctx context.Context) error {
		_, err := a.runOnce(ctx)
		return err
	}, a.log.With(logx.String("comp", "schedule")))
	if err != nil {
		return &dispatch.Error{Kind: dispatch.KindFatal, Op: "schedule", Err: err}
	}
	sdNotify(a.log, daemon.SdNotifyReady)
	sdNotify(a.log, "STATUS=waiting for "+r.Spec().String())
	defer sdNotify(a.log, daemon.SdNotifyStopping)
	return r.Run(ctx)
}

// runOnce builds the components from the current config and runs one pass.
func (a *App) runOnce(ctx context.Context) (dispatch.Report, error) {
	cfg := a.cfgm.Get()
	info := notify.RunInfo{
		ID:      time.Now().Format("20060102-150405"),
		Source:  sourceName(cfg),
		Mailer:  mailerName(cfg),
		DryRun:  cfg.Dispatch.DryRun || a.opts.DryRun,
		Started: time.Now(),
	}
	log := a.log.With(logx.String("run", info.ID))

	d, cleanup, err := a.build(ctx, cfg, info, log)
	if err != nil {
		log.Error("run setup failed", logx.Err(err))
		a.report(ctx, info, dispatch.Report{}, err)
		return dispatch.Report{}, err
	}
	defer cleanup()

	a.mu.Lock()
	a.active = d
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.active = nil
		a.mu.Unlock()
	}()

	if err := a.notif.RunStarted(ctx, info); err != nil {
		log.Warn("run start notification failed", logx.Err(err))
	}
	log.Info("run starting",
		logx.String("source", info.Source), logx.String("mailer", info.Mailer), logx.Bool("dry_run", info.DryRun))

	rep, err := d.Run(ctx)
	switch {
	case err == nil:
		log.Info("run finished", logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed))
	case errors.Is(err, context.Canceled):
		log.Warn("run interrupted; progress is saved", logx.Int("sent", rep.Sent), logx.Int("remaining", rep.Remaining()))
	default:
		log.Error("run aborted", logx.Err(err), logx.Int("sent", rep.Sent))
	}
	a.report(ctx, info, rep, err)
	return rep, err
}

func (a *App) build(ctx context.Context, cfg *config.Config, info notify.RunInfo, log logx.Logger) (*dispatch.Dispatcher, func(), error) {
	src, closeSrc, err := source.Open(mapSource(cfg), log.With(logx.String("comp", "source")))
	if err != nil {
		return nil, nil, &dispatch.Error{Kind: dispatch.KindFatal, Op: "source", Err: err}
	}
	tr, err := mailer.Open(ctx, mapMailer(cfg), log.With(logx.String("comp", "mailer")))
	if err != nil {
		_ = closeSrc()
		return nil, nil, &dispatch.Error{Kind: dispatch.KindFatal, Op: "mailer", Err: err}
	}
	store, err := progress.Open(ctx, mapProgress(cfg), log.With(logx.String("comp", "progress")))
	if err != nil {
		_ = closeSrc()
		return nil, nil, &dispatch.Error{Kind: dispatch.KindFatal, Op: "progress", Err: err}
	}

	d := dispatch.New(src, tr, store,
		dispatch.WithLogger(log.With(logx.String("comp", "dispatch"))),
		dispatch.WithPacing(mapPacing(cfg)),
		dispatch.WithDryRun(info.DryRun),
		dispatch.WithStatus(func(r dispatch.Report) {
			sdNotify(log, fmt.Sprintf("STATUS=sent %d, failed %d, remaining %d", r.Sent, r.Failed, r.Remaining()))
		}),
		dispatch.WithItemFailureHook(func(e *dispatch.Error) {
			if mailer.ReasonOf(e.Err) == mailer.ReasonAuth {
				log.Warn("smtp credentials rejected; every remaining send will likely fail")
			}
		}),
	)
	cleanup := func() {
		if err := closeSrc(); err != nil {
			log.Warn("closing source failed", logx.Err(err))
		}
	}
	return d, cleanup, nil
}

func (a *App) report(ctx context.Context, info notify.RunInfo, rep dispatch.Report, runErr error) {
	// The run context may already be canceled; the final report still goes out.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := a.notif.RunFinished(nctx, info, rep, runErr); err != nil {
		a.log.Warn("run report notification failed", logx.Err(err))
	}
}

// reloadLoop applies hot-reloadable settings: logging and pacing.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)

	a.logs.Apply(mapLogging(cfg))

	a.mu.Lock()
	d := a.active
	a.mu.Unlock()
	if d != nil {
		d.SetPacing(mapPacing(cfg))
		a.log.Info("pacing updated for the running send loop")
	}
	if config.RestartRequired(sections) {
		a.log.Warn("source, mailer, progress, notify or schedule changes apply from the next run or restart")
	}
}

// Status prints the resume cursor and the segments of the progress log.
func (a *App) Status(ctx context.Context, w io.Writer) error {
	store, err := progress.Open(ctx, mapProgress(a.cfgm.Get()), a.log.With(logx.String("comp", "progress")))
	if err != nil {
		return err
	}
	defer store.Close()

	cur, err := store.ResumeCursor(ctx)
	if err != nil {
		return err
	}
	segs, err := store.Segments(ctx)
	if err != nil {
		return err
	}
	if cur.Empty() {
		fmt.Fprintln(w, "no progress recorded")
	} else {
		fmt.Fprintf(w, "last sent: %s (seq %d)\n", cur.Email, cur.Seq)
	}
	fmt.Fprintf(w, "segments: %d\n", len(segs))
	for _, seg := range segs {
		fmt.Fprintf(w, "  %s\n", seg.Name)
	}
	return nil
}

// ExitCode maps Run's error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitAborted
	}
}

func sdNotify(log logx.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}

func sourceName(cfg *config.Config) string {
	if d := strings.TrimSpace(cfg.Source.Driver); d != "" {
		return strings.ToLower(d)
	}
	return "supabase"
}

func mailerName(cfg *config.Config) string {
	if d := strings.TrimSpace(cfg.Mailer.Driver); d != "" {
		return strings.ToLower(d)
	}
	return "smtp"
}
