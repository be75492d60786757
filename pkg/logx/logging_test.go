package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	tests := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"no-at-sign":           "***@***",
		"a@b@example.com":      "***@***",
	}
	for in, want := range tests {
		assert.Equal(t, want, RedactEmail(in), in)
	}
}

func TestEmailFieldFollowsRedactionSwitch(t *testing.T) {
	t.Cleanup(func() { SetRedactEmails(true) })

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	SetRedactEmails(true)
	log.Info("sent", Email("email", "alice@example.com"))
	SetRedactEmails(false)
	log.Info("sent", Email("email", "alice@example.com"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "al***@example.com", first["email"])
	assert.Equal(t, "alice@example.com", second["email"])
}

func TestWithKeepsParentFields(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWriter(&buf, "info").With(String("comp", "dispatch"))
	child := parent.With(Int("batch", 2))

	parent.Debug("hidden")
	child.Info("batch done", Uint64("seq", 7))

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	assert.Equal(t, "dispatch", m["comp"])
	assert.EqualValues(t, 2, m["batch"])
	assert.EqualValues(t, 7, m["seq"])
	assert.Equal(t, "batch done", m["message"])
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	assert.NotPanics(t, func() { l.Error("nothing", Err(nil)) })
	assert.False(t, Nop().IsZero())
}

func TestFormatTelegramJSON(t *testing.T) {
	got := formatTelegramJSON([]byte(`{"level":"warn","time":"x","message":"send failed","email":"jo***@example.com"}`))
	assert.Equal(t, "[WARN] send failed\n- email=jo***@example.com", got)

	assert.Equal(t, "not json", formatTelegramJSON([]byte("  not json \n")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
}

type fakeSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *fakeSink) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
	return nil
}

func (s *fakeSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func TestServiceForwardsWarningsToSink(t *testing.T) {
	sink := &fakeSink{}
	svc, log := New(Config{
		Level:    "debug",
		Console:  true,
		Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, sink)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("progress")
	log.Warn("last sent address not in recipient list")

	require.Eventually(t, func() bool { return len(sink.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, sink.messages()[0], "[WARN] last sent address not in recipient list")
}
