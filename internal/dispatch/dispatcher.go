package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"mailblast/internal/progress"
	logx "mailblast/pkg/logx"
)

const (
	DefaultBatchSize           = 10
	DefaultDelayBetweenEmails  = 10 * time.Second
	DefaultDelayBetweenBatches = 2 * time.Hour
)

// Source yields the ordered recipient list for one run.
type Source interface {
	FetchRecipients(ctx context.Context) ([]string, error)
}

// Transport delivers one message to one address.
type Transport interface {
	Send(ctx context.Context, to string) error
}

// Progress is the durable send log. The Dispatcher owns it for the run and
// closes it on every exit path.
type Progress interface {
	ResumeCursor(ctx context.Context) (progress.Cursor, error)
	Append(ctx context.Context, email string) (progress.Record, error)
	io.Closer
}

// Pacing controls batch size and the pauses of the send loop.
type Pacing struct {
	BatchSize            int
	DelayBetweenEmails   time.Duration
	DelayBetweenBatches  time.Duration
	SleepAfterFinalBatch bool
}

// DefaultPacing returns one email every 10s, batches of 10, 2h between batches.
func DefaultPacing() Pacing {
	return Pacing{
		BatchSize:           DefaultBatchSize,
		DelayBetweenEmails:  DefaultDelayBetweenEmails,
		DelayBetweenBatches: DefaultDelayBetweenBatches,
	}
}

func (p Pacing) normalize() Pacing {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.DelayBetweenEmails < 0 {
		p.DelayBetweenEmails = 0
	}
	if p.DelayBetweenBatches < 0 {
		p.DelayBetweenBatches = 0
	}
	return p
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Report summarizes a run. It is returned on every exit path.
type Report struct {
	Total     int    // recipients fetched
	Start     int    // index the run resumed at
	Batches   int    // batches planned
	Attempted int    // send attempts made
	Sent      int    // successes recorded
	Failed    int    // per-address failures
	LastSeq   uint64 // newest sequence number recorded
}

// Remaining is the number of addresses not attempted yet.
func (r Report) Remaining() int { return r.Total - r.Start - r.Attempted }

type Option func(*Dispatcher)

func WithLogger(log logx.Logger) Option { return func(d *Dispatcher) { d.log = log } }

func WithPacing(p Pacing) Option { return func(d *Dispatcher) { d.pacing = p.normalize() } }

func WithSleeper(s Sleeper) Option { return func(d *Dispatcher) { d.sleep = s } }

// WithDryRun logs every address instead of sending or recording it.
func WithDryRun(on bool) Option { return func(d *Dispatcher) { d.dryRun = on } }

// WithItemFailureHook is called for every KindItem failure.
func WithItemFailureHook(fn func(*Error)) Option { return func(d *Dispatcher) { d.onItemFailure = fn } }

// WithStatus is called after every send attempt with the running totals.
func WithStatus(fn func(Report)) Option { return func(d *Dispatcher) { d.status = fn } }

// Dispatcher runs one send pass. It is single-use: Run closes the progress log.
type Dispatcher struct {
	source    Source
	transport Transport
	progress  Progress

	log           logx.Logger
	sleep         Sleeper
	dryRun        bool
	onItemFailure func(*Error)
	status        func(Report)

	mu     sync.Mutex
	pacing Pacing
}

func New(src Source, tr Transport, prog Progress, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:    src,
		transport: tr,
		progress:  prog,
		log:       logx.Nop(),
		sleep:     SleepContext,
		pacing:    DefaultPacing(),
	}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	return d
}

// SetPacing replaces the pacing of a running dispatcher. Delays apply from
// the next pause on; the batch size applies to the next run.
func (d *Dispatcher) SetPacing(p Pacing) {
	d.mu.Lock()
	d.pacing = p.normalize()
	d.mu.Unlock()
}

func (d *Dispatcher) Pacing() Pacing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pacing
}

// Run performs the send pass. It returns a KindFatal *Error when the run
// aborts, ctx.Err() when interrupted, and nil when every batch was processed.
func (d *Dispatcher) Run(ctx context.Context) (rep Report, err error) {
	defer func() {
		if cerr := d.progress.Close(); cerr != nil {
			d.log.Warn("closing progress log failed", logx.Err(cerr))
			if err == nil {
				err = fatal("close", cerr)
			}
		}
	}()

	list, err := d.source.FetchRecipients(ctx)
	if err != nil {
		d.log.Error("fetching recipients failed", logx.Err(err))
		return rep, fatal("fetch", err)
	}
	rep.Total = len(list)
	d.log.Info("fetched recipients", logx.Int("count", len(list)))

	cur, err := d.progress.ResumeCursor(ctx)
	if err != nil {
		d.log.Error("reading resume cursor failed", logx.Err(err))
		return rep, fatal("cursor", err)
	}
	rep.LastSeq = cur.Seq

	rep.Start = StartIndex(list, cur.Email)
	switch {
	case cur.Email == "":
		d.log.Info("no previous progress; starting from the beginning")
	case rep.Start == 0:
		// At-least-once: a vanished address means we cannot tell what was sent.
		d.log.Warn("last sent address not in recipient list; starting from the beginning",
			logx.Email("last_email", cur.Email), logx.Uint64("last_seq", cur.Seq))
	default:
		d.log.Info("resuming after last sent address",
			logx.Email("last_email", cur.Email), logx.Uint64("last_seq", cur.Seq), logx.Int("start_index", rep.Start))
	}

	batches := Batches(list[rep.Start:], d.Pacing().BatchSize)
	rep.Batches = len(batches)

	for bi, batch := range batches {
		d.log.Info("sending batch", logx.Int("batch", bi+1), logx.Int("of", len(batches)), logx.Int("size", len(batch)))

		for _, addr := range batch {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if err := d.sendOne(ctx, addr, &rep); err != nil {
				return rep, err
			}
			if d.status != nil {
				d.status(rep)
			}
			if err := d.sleep(ctx, d.Pacing().DelayBetweenEmails); err != nil {
				return rep, err
			}
		}

		p := d.Pacing()
		if bi == len(batches)-1 && !p.SleepAfterFinalBatch {
			d.log.Info("batch completed", logx.Int("batch", bi+1))
			break
		}
		d.log.Info("batch completed; waiting before next batch",
			logx.Int("batch", bi+1), logx.Duration("wait", p.DelayBetweenBatches))
		if err := d.sleep(ctx, p.DelayBetweenBatches); err != nil {
			return rep, err
		}
	}

	d.log.Info("run complete",
		logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed), logx.Int("skipped", rep.Start))
	return rep, nil
}

// sendOne returns an error only when the run must stop.
func (d *Dispatcher) sendOne(ctx context.Context, addr string, rep *Report) error {
	rep.Attempted++
	// An address the log cannot hold would be re-sent on every restart.
	if err := progress.CheckAddress(addr); err != nil {
		d.itemFailed(rep, &Error{Kind: KindItem, Op: "check", Email: addr, Err: err},
			"unrecordable address; skipping without sending")
		return nil
	}
	if d.dryRun {
		d.log.Info("dry run; not sending", logx.Email("email", addr))
		return nil
	}

	if err := d.transport.Send(ctx, addr); err != nil {
		d.itemFailed(rep, &Error{Kind: KindItem, Op: "send", Email: addr, Err: err}, "send failed; skipping address")
		return nil
	}

	rec, err := d.progress.Append(ctx, addr)
	if err != nil {
		d.log.Error("email sent but recording it failed", logx.Email("email", addr), logx.Err(err))
		return &Error{Kind: KindFatal, Op: "record", Email: addr, Err: err}
	}
	rep.Sent++
	rep.LastSeq = rec.Seq
	d.log.Info("email sent", logx.Email("email", addr), logx.Uint64("seq", rec.Seq))
	return nil
}

func (d *Dispatcher) itemFailed(rep *Report, ie *Error, msg string) {
	rep.Failed++
	d.log.Error(msg, logx.Email("email", ie.Email), logx.String("reason", failureReason(ie.Err)), logx.Err(ie.Err))
	if d.onItemFailure != nil {
		d.onItemFailure(ie)
	}
}

// failureReason reads the classification a transport attached to err.
func failureReason(err error) string {
	var r interface{ FailureReason() string }
	if errors.As(err, &r) {
		return r.FailureReason()
	}
	return "other"
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
