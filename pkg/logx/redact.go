package logx

import (
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var redactEmails atomic.Bool

func init() { redactEmails.Store(true) }

// SetRedactEmails toggles masking for fields created with Email.
func SetRedactEmails(on bool) { redactEmails.Store(on) }

// Email logs a recipient address, masked when redaction is enabled.
func Email(k, v string) Field {
	return func(e *zerolog.Event) {
		if redactEmails.Load() {
			e.Str(k, RedactEmail(v))
			return
		}
		e.Str(k, v)
	}
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	i := strings.LastIndexByte(email, '@')
	if i < 0 || strings.Count(email, "@") != 1 {
		return "***@***"
	}
	name, domain := email[:i], email[i+1:]
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}
