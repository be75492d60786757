package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mailblast/internal/schedule"
)

const (
	DefaultBatchSize           = 10
	DefaultDelayBetweenEmails  = "10s"
	DefaultDelayBetweenBatches = "2h"
	DefaultProgressDir         = "./log"
	DefaultLogLevel            = "INFO"
)

// Defaults fills every empty field that has a default. It is applied after
// the environment overlay so env values win over defaults.
func Defaults(cfg *Config) {
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = DefaultBatchSize
	}
	if strings.TrimSpace(cfg.Dispatch.DelayBetweenEmails) == "" {
		cfg.Dispatch.DelayBetweenEmails = DefaultDelayBetweenEmails
	}
	if strings.TrimSpace(cfg.Dispatch.DelayBetweenBatches) == "" {
		cfg.Dispatch.DelayBetweenBatches = DefaultDelayBetweenBatches
	}
	if strings.TrimSpace(cfg.Progress.Dir) == "" {
		cfg.Progress.Dir = DefaultProgressDir
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if strings.TrimSpace(cfg.Mailer.From) == "" {
		cfg.Mailer.From = cfg.Mailer.SMTP.Username
	}
}

// Validate reports every problem at once so a bad reload is rejected whole.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if cfg.Dispatch.BatchSize < 0 {
		add("dispatch.batch_size: must be > 0")
	}
	for _, f := range [][2]string{
		{"dispatch.delay_between_emails", cfg.Dispatch.DelayBetweenEmails},
		{"dispatch.delay_between_batches", cfg.Dispatch.DelayBetweenBatches},
		{"source.timeout", cfg.Source.Timeout},
		{"mailer.smtp.timeout", cfg.Mailer.SMTP.Timeout},
		{"notify.timeout", cfg.Notify.Timeout},
	} {
		if _, err := ParseDurationField(f[0], f[1]); err != nil {
			errs = append(errs, err)
		}
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Source.Driver)); d {
	case "", "supabase":
		if strings.TrimSpace(cfg.Source.URL) == "" || strings.TrimSpace(cfg.Source.Key) == "" {
			add("source: supabase needs url and key (SUPABASE_URL, SUPABASE_KEY)")
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Source.DSN) == "" {
			add("source: postgres needs dsn (DATABASE_URL)")
		}
	case "csv":
		if strings.TrimSpace(cfg.Source.Path) == "" {
			add("source: csv needs path")
		}
	default:
		add("source.driver: unknown driver %q", d)
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Mailer.Driver)); d {
	case "", "smtp":
		if strings.TrimSpace(cfg.Mailer.SMTP.Username) == "" || cfg.Mailer.SMTP.Password == "" {
			add("mailer: smtp needs username and password (EMAIL_ADDRESS, EMAIL_PASSWORD)")
		}
	case "ses":
	default:
		add("mailer.driver: unknown driver %q", d)
	}
	if strings.TrimSpace(cfg.Mailer.From) == "" && strings.TrimSpace(cfg.Mailer.SMTP.Username) == "" {
		add("mailer.from: required")
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Progress.Index)); d {
	case "", "dir", "sqlite", "sqlite3":
	default:
		add("progress.index: unknown index %q", d)
	}
	if cfg.Progress.SegmentSize < 0 {
		add("progress.segment_size: must be > 0")
	}

	if (cfg.Notify.Token == "") != (cfg.Notify.ChatID == 0) {
		add("notify: token and chat_id must be set together")
	}
	if cfg.Logging.Telegram.Enabled && cfg.Notify.Token == "" {
		add("logging.telegram: needs notify.token and notify.chat_id")
	}

	if s := strings.TrimSpace(cfg.Schedule.Spec); s != "" {
		if _, err := schedule.Parse(s); err != nil {
			add("schedule.spec: %v", err)
		}
		if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				add("schedule.timezone: %v", err)
			}
		}
	}

	return errors.Join(errs...)
}
