package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"mailblast/internal/dispatch"
	logx "mailblast/pkg/logx"
)

const telegramTextLimit = 4096

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	Timeout  time.Duration
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Token) != "" && c.ChatID != 0 }

// sender is the part of *tele.Bot Telegram uses.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram posts plain-text messages to one chat (and optional forum topic).
type Telegram struct {
	cfg Config
	bot sender
	log logx.Logger
	now func() time.Time
}

// NewTelegram builds an offline bot: it only sends and never polls updates.
func NewTelegram(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return newTelegram(cfg, b, log), nil
}

func newTelegram(cfg Config, bot sender, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{cfg: cfg, bot: bot, log: log, now: time.Now}
}

// New returns a Telegram notifier when cfg is complete, Nop otherwise.
func New(cfg Config, log logx.Logger) (Notifier, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}
	t, err := NewTelegram(cfg, log)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Telegram) SendText(ctx context.Context, text string) error {
	chat := &tele.Chat{ID: t.cfg.ChatID}
	for _, chunk := range splitText(text, telegramTextLimit) {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		opt := &tele.SendOptions{ThreadID: t.cfg.ThreadID, DisableWebPagePreview: true}
		if _, err := t.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) RunStarted(ctx context.Context, info RunInfo) error {
	return t.SendText(ctx, formatStarted(info))
}

func (t *Telegram) RunFinished(ctx context.Context, info RunInfo, rep dispatch.Report, runErr error) error {
	return t.SendText(ctx, formatFinished(info, rep, runErr, t.now()))
}

// splitText cuts s into chunks of at most limit runes, preferring a newline
// in the last two thirds of each window.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i-start >= limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
	}
	return out
}
