package mailer

import (
	"context"
	"errors"
	"net/textproto"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/mail.v2"

	logx "mailblast/pkg/logx"
)

const (
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 587
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// mailDialer is the part of *mail.Dialer SMTP uses.
type mailDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTP opens one authenticated STARTTLS session per message.
type SMTP struct {
	render *Renderer
	dial   mailDialer
	log    logx.Logger
}

func NewSMTP(cfg SMTPConfig, r *Renderer, log logx.Logger) *SMTP {
	if cfg.Host == "" {
		cfg.Host = DefaultSMTPHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SMTP{render: r, dial: d, log: log}
}

func (s *SMTP) Send(ctx context.Context, to string) error {
	if err := ctx.Err(); err != nil {
		return &SendError{Reason: ReasonOther, To: to, Err: err}
	}
	msg, err := s.render.Render(to)
	if err != nil {
		return &SendError{Reason: ReasonOther, To: to, Err: err}
	}
	if err := s.dial.DialAndSend(buildMessage(msg)); err != nil {
		return &SendError{Reason: classifySMTP(err), To: to, Err: err}
	}
	return nil
}

func buildMessage(msg Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else {
		m.SetBody("text/html", msg.HTML)
	}
	return m
}

// replyCode matches a reply line at the start of the text or of a wrapped
// message segment ("gomail: could not send email 1: 452 4.5.3 ...").
var replyCode = regexp.MustCompile(`(?:^|: )([45]\d\d)[ -]`)

// classifySMTP maps a reply code to a Reason. The mail package does not
// always keep the *textproto.Error in the chain, so the message text is
// scanned as a fallback.
func classifySMTP(err error) Reason {
	code := 0
	var te *textproto.Error
	if errors.As(err, &te) {
		code = te.Code
	} else if m := replyCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ = strconv.Atoi(m[1])
	}
	switch {
	case code == 530 || code == 534 || code == 535:
		return ReasonAuth
	case code >= 400:
		return ReasonProtocol
	default:
		return ReasonOther
	}
}
