package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "mailblast/pkg/logx"
)

// ErrSourceUnavailable wraps every failure to produce a recipient list.
var ErrSourceUnavailable = errors.New("recipient source unavailable")

const (
	DefaultFunction = "select_from_auth_users"
	DefaultQuery    = "SELECT email FROM auth.users WHERE email IS NOT NULL ORDER BY created_at"
	DefaultTimeout  = 30 * time.Second
)

type Config struct {
	Driver string

	// supabase
	URL      string
	Key      string
	Function string

	// postgres
	DSN   string
	Query string

	// csv
	Path       string
	SkipHeader bool

	Timeout    time.Duration
	MaxRetries int
}

// Source yields recipients in the order the backend returns them.
type Source interface {
	FetchRecipients(ctx context.Context) ([]string, error)
}

// Open builds the configured driver. The returned closer is a no-op for
// drivers that hold nothing open.
func Open(cfg Config, log logx.Logger) (Source, func() error, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	noop := func() error { return nil }

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "supabase":
		s, err := NewSupabase(cfg, nil, log)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "postgres", "postgresql":
		p, err := OpenPostgres(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "csv":
		c, err := NewCSV(cfg.Path, cfg.SkipHeader)
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown source driver %q", ErrSourceUnavailable, driver)
	}
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, fmt.Sprintf(format, args...))
}

// clean trims addresses and drops empty ones, keeping order.
func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
