package config

import (
	"net/url"
	"strings"

	logx "mailblast/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe fields
// for logging them. Secrets are reported only as *_set booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 24)

	if o, n := oldCfg.Source, newCfg.Source; o != n {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.driver", n.Driver),
			logx.String("source.host", hostOf(n.URL)),
			logx.String("source.function", n.Function),
			logx.Bool("source.key_set", n.Key != ""),
			logx.Bool("source.dsn_set", n.DSN != ""),
			logx.String("source.path", n.Path),
		)
	}

	if o, n := oldCfg.Mailer, newCfg.Mailer; o != n {
		changed = append(changed, "mailer")
		attrs = append(attrs,
			logx.String("mailer.driver", n.Driver),
			logx.Email("mailer.from", n.From),
			logx.String("mailer.subject", n.Subject),
			logx.String("mailer.template", n.Template),
			logx.String("mailer.smtp.host", n.SMTP.Host),
			logx.Bool("mailer.smtp.password_set", n.SMTP.Password != ""),
			logx.String("mailer.ses.region", n.SES.Region),
		)
	}

	if o, n := oldCfg.Dispatch, newCfg.Dispatch; o != n {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.batch_size", n.BatchSize),
			logx.String("dispatch.delay_between_emails", n.DelayBetweenEmails),
			logx.String("dispatch.delay_between_batches", n.DelayBetweenBatches),
			logx.Bool("dispatch.sleep_after_final_batch", n.SleepAfterFinalBatch),
			logx.Bool("dispatch.dry_run", n.DryRun),
		)
	}

	if o, n := oldCfg.Progress, newCfg.Progress; o != n {
		changed = append(changed, "progress")
		attrs = append(attrs,
			logx.String("progress.dir", n.Dir),
			logx.String("progress.index", n.Index),
			logx.Int("progress.segment_size", n.SegmentSize),
		)
	}

	if o, n := oldCfg.Logging, newCfg.Logging; o.Level != n.Level ||
		o.Console != n.Console ||
		o.RedactEmailsEnabled() != n.RedactEmailsEnabled() ||
		o.File != n.File ||
		o.Telegram != n.Telegram {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Level),
			logx.Bool("logging.console", n.Console),
			logx.Bool("logging.redact_emails", n.RedactEmailsEnabled()),
			logx.Bool("logging.file_enabled", n.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Telegram.Enabled),
		)
	}

	if o, n := oldCfg.Notify, newCfg.Notify; o != n {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.token_set", n.Token != ""),
			logx.Int64("notify.chat_id", n.ChatID),
			logx.Int("notify.thread_id", n.ThreadID),
		)
	}

	if o, n := oldCfg.Schedule, newCfg.Schedule; o != n {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.spec", n.Spec),
			logx.String("schedule.timezone", n.Timezone),
		)
	}

	return changed, attrs
}

// RestartRequired reports whether a change touches anything other than
// pacing and logging, which are the only sections applied live.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		if s != "dispatch" && s != "logging" {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Host
}
