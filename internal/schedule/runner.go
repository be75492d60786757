package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "mailblast/pkg/logx"
)

// Job is one triggered run. Its error is logged; the schedule keeps going.
type Job func(ctx context.Context) error

type Config struct {
	Spec       string
	Timezone   string // IANA name; empty means local time
	RunOnStart bool
}

type Runner struct {
	spec       Spec
	loc        *time.Location
	runOnStart bool
	log        logx.Logger

	ctx context.Context // set by Run before the first trigger
	job cron.Job        // wrapped: never runs concurrently with itself
}

func New(cfg Config, job Job, log logx.Logger) (*Runner, error) {
	spec, err := Parse(cfg.Spec)
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, err
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	r := &Runner{spec: spec, loc: loc, runOnStart: cfg.RunOnStart, log: log}
	inner := cron.FuncJob(func() {
		ctx := r.ctx
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		if err := job(ctx); err != nil {
			log.Error("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(started)))
			return
		}
		log.Info("scheduled run finished", logx.Duration("took", time.Since(started)))
	})
	r.job = cron.NewChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})).Then(inner)
	return r, nil
}

func (r *Runner) Spec() Spec { return r.spec }

// Run blocks until ctx is done, then waits for an in-flight run to return.
// ctx is passed to every run, so cancelling it also interrupts the run.
func (r *Runner) Run(ctx context.Context) error {
	sched, err := r.spec.Schedule()
	if err != nil {
		return err
	}
	r.ctx = ctx
	c := cron.New(cron.WithLocation(r.loc), cron.WithLogger(cronLogger{r.log}))
	id := c.Schedule(sched, r.job)
	c.Start()
	r.log.Info("schedule started",
		logx.String("spec", r.spec.String()),
		logx.String("tz", r.loc.String()),
		logx.Time("next", c.Entry(id).Next))

	var wg sync.WaitGroup
	if r.runOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.job.Run()
		}()
	}

	<-ctx.Done()
	r.log.Info("stopping schedule; waiting for the current run")
	<-c.Stop().Done()
	wg.Wait()
	return nil
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	if msg == "skip" {
		l.log.Info("trigger skipped; previous run still in progress")
		return
	}
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		if k == "" {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
