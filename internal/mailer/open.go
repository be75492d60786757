package mailer

import (
	"context"
	"fmt"
	"strings"

	logx "mailblast/pkg/logx"
)

type Config struct {
	Driver   string // "smtp" (default) or "ses"
	From     string
	Subject  string
	Template string // path; empty uses the built-in campaign
	SMTP     SMTPConfig
	SES      SESConfig
}

// Transport delivers the campaign message to one address.
type Transport interface {
	Send(ctx context.Context, to string) error
}

func Open(ctx context.Context, cfg Config, log logx.Logger) (Transport, error) {
	from := cfg.From
	if strings.TrimSpace(from) == "" {
		from = cfg.SMTP.Username
	}
	r, err := NewRenderer(cfg.Template, from, cfg.Subject)
	if err != nil {
		return nil, err
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "smtp":
		return NewSMTP(cfg.SMTP, r, log), nil
	case "ses":
		s, err := NewSES(ctx, cfg.SES, r, log)
		if err != nil {
			return nil, fmt.Errorf("ses: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown mailer driver: %s", driver)
	}
}
