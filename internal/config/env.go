package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. A set variable always
// wins over the config file. Delay variables are whole seconds, as in the
// classic .env layout, but a Go duration ("90m") is accepted too.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	seconds := func(key string, dst *string) {
		v, ok := get(key)
		if !ok {
			return
		}
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d.String()
	}

	if v, ok := get("BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("BATCH_SIZE: want a positive integer, got %q", v))
		} else {
			cfg.Dispatch.BatchSize = n
		}
	}
	seconds("DELAY_BETWEEN_EMAILS", &cfg.Dispatch.DelayBetweenEmails)
	seconds("DELAY_BETWEEN_BATCHES", &cfg.Dispatch.DelayBetweenBatches)
	if v, ok := get("SLEEP_AFTER_FINAL_BATCH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLEEP_AFTER_FINAL_BATCH: %w", err))
		} else {
			cfg.Dispatch.SleepAfterFinalBatch = b
		}
	}

	str("SUPABASE_URL", &cfg.Source.URL)
	str("SUPABASE_KEY", &cfg.Source.Key)
	if v, ok := get("DATABASE_URL"); ok {
		cfg.Source.DSN = v
		if cfg.Source.Driver == "" && cfg.Source.URL == "" {
			cfg.Source.Driver = "postgres"
		}
	}

	str("EMAIL_ADDRESS", &cfg.Mailer.SMTP.Username)
	str("EMAIL_PASSWORD", &cfg.Mailer.SMTP.Password)

	str("PROGRESS_DIR", &cfg.Progress.Dir)
	str("LOG_LEVEL", &cfg.Logging.Level)

	str("TELEGRAM_BOT_TOKEN", &cfg.Notify.Token)
	if v, ok := get("TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		} else {
			cfg.Notify.ChatID = id
		}
	}

	return errors.Join(errs...)
}

func parseSecondsOrDuration(v string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("must be >= 0")
		}
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("want seconds or a duration like 90m, got %q", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("must be >= 0")
	}
	return d, nil
}
