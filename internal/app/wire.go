package app

import (
	"time"

	"mailblast/internal/config"
	"mailblast/internal/dispatch"
	"mailblast/internal/mailer"
	"mailblast/internal/notify"
	"mailblast/internal/progress"
	"mailblast/internal/schedule"
	"mailblast/internal/source"
	logx "mailblast/pkg/logx"
)

// The map* functions translate validated config sections into component
// configs. Durations were checked by config.Validate, so parse failures
// fall back to defaults here.

func mapPacing(cfg *config.Config) dispatch.Pacing {
	return dispatch.Pacing{
		BatchSize:            cfg.Dispatch.BatchSize,
		DelayBetweenEmails:   config.MustDuration(cfg.Dispatch.DelayBetweenEmails, dispatch.DefaultDelayBetweenEmails),
		DelayBetweenBatches:  config.MustDuration(cfg.Dispatch.DelayBetweenBatches, dispatch.DefaultDelayBetweenBatches),
		SleepAfterFinalBatch: cfg.Dispatch.SleepAfterFinalBatch,
	}
}

func mapSource(cfg *config.Config) source.Config {
	s := cfg.Source
	return source.Config{
		Driver:     s.Driver,
		URL:        s.URL,
		Key:        s.Key,
		Function:   s.Function,
		DSN:        s.DSN,
		Query:      s.Query,
		Path:       s.Path,
		SkipHeader: s.SkipHeader,
		Timeout:    config.MustDuration(s.Timeout, source.DefaultTimeout),
		MaxRetries: s.MaxRetries,
	}
}

func mapMailer(cfg *config.Config) mailer.Config {
	m := cfg.Mailer
	return mailer.Config{
		Driver:   m.Driver,
		From:     m.From,
		Subject:  m.Subject,
		Template: m.Template,
		SMTP: mailer.SMTPConfig{
			Host:     m.SMTP.Host,
			Port:     m.SMTP.Port,
			Username: m.SMTP.Username,
			Password: m.SMTP.Password,
			Timeout:  config.MustDuration(m.SMTP.Timeout, 30*time.Second),
		},
		SES: mailer.SESConfig{
			Region:           m.SES.Region,
			ConfigurationSet: m.SES.ConfigurationSet,
		},
	}
}

func mapProgress(cfg *config.Config) progress.Config {
	p := cfg.Progress
	return progress.Config{
		Dir:         p.Dir,
		SegmentSize: p.SegmentSize,
		Index:       p.Index,
		IndexPath:   p.IndexPath,
	}
}

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:        l.Level,
		Console:      l.Console,
		RedactEmails: l.RedactEmailsEnabled(),
		File:         logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapNotify(cfg *config.Config) notify.Config {
	n := cfg.Notify
	return notify.Config{
		Token:    n.Token,
		ChatID:   n.ChatID,
		ThreadID: n.ThreadID,
		Timeout:  config.MustDuration(n.Timeout, 10*time.Second),
	}
}

func mapSchedule(cfg *config.Config) schedule.Config {
	return schedule.Config{
		Spec:       cfg.Schedule.Spec,
		Timezone:   cfg.Schedule.Timezone,
		RunOnStart: cfg.Schedule.RunOnStart,
	}
}
