package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailblast/internal/dispatch"
)

// Notifier receives run lifecycle events. Implementations must not block
// the run for long; errors are logged by the caller and otherwise ignored.
type Notifier interface {
	SendText(ctx context.Context, text string) error
	RunStarted(ctx context.Context, info RunInfo) error
	RunFinished(ctx context.Context, info RunInfo, rep dispatch.Report, runErr error) error
}

// RunInfo identifies one run in messages.
type RunInfo struct {
	ID      string
	Source  string
	Mailer  string
	DryRun  bool
	Started time.Time
}

type Nop struct{}

func (Nop) SendText(context.Context, string) error                             { return nil }
func (Nop) RunStarted(context.Context, RunInfo) error                          { return nil }
func (Nop) RunFinished(context.Context, RunInfo, dispatch.Report, error) error { return nil }

func formatStarted(info RunInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📨 mailblast run %s started", info.ID)
	if info.DryRun {
		b.WriteString(" (dry run)")
	}
	fmt.Fprintf(&b, "\nsource: %s\nmailer: %s", info.Source, info.Mailer)
	return b.String()
}

func formatFinished(info RunInfo, rep dispatch.Report, runErr error, now time.Time) string {
	var b strings.Builder
	switch {
	case runErr == nil:
		fmt.Fprintf(&b, "✅ mailblast run %s finished", info.ID)
	case dispatch.IsFatal(runErr):
		fmt.Fprintf(&b, "❌ mailblast run %s aborted", info.ID)
	default:
		fmt.Fprintf(&b, "⏸ mailblast run %s interrupted", info.ID)
	}
	fmt.Fprintf(&b, "\nrecipients: %d (resumed at %d)", rep.Total, rep.Start)
	fmt.Fprintf(&b, "\nsent: %d, failed: %d, remaining: %d", rep.Sent, rep.Failed, rep.Remaining())
	if rep.LastSeq > 0 {
		fmt.Fprintf(&b, "\nlast seq: %d", rep.LastSeq)
	}
	if !info.Started.IsZero() {
		fmt.Fprintf(&b, "\nelapsed: %s", now.Sub(info.Started).Round(time.Second))
	}
	if runErr != nil {
		fmt.Fprintf(&b, "\nerror: %v", runErr)
	}
	return b.String()
}
