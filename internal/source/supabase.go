package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	logx "mailblast/pkg/logx"
)

// Supabase calls a PostgREST RPC function that returns rows with an
// "email" column, e.g. a SECURITY DEFINER wrapper over auth.users.
type Supabase struct {
	endpoint string
	key      string
	http     HTTPDoer
	log      logx.Logger
}

// NewSupabase validates cfg and builds the driver. A nil client gets a
// default *http.Client with cfg.Timeout; either way requests are retried
// cfg.MaxRetries times on transient failures.
func NewSupabase(cfg Config, client HTTPDoer, log logx.Logger) (*Supabase, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	key := strings.TrimSpace(cfg.Key)
	if base == "" || key == "" {
		return nil, unavailable("supabase url and key are required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: supabase url: %w", ErrSourceUnavailable, err)
	}
	fn := strings.TrimSpace(cfg.Function)
	if fn == "" {
		fn = DefaultFunction
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Supabase{
		endpoint: base + "/rest/v1/rpc/" + url.PathEscape(fn),
		key:      key,
		http:     newRetryClient(client, cfg.MaxRetries, log),
		log:      log,
	}, nil
}

type emailRow struct {
	Email *string `json:"email"`
}

func (s *Supabase) FetchRecipients(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, unavailable("supabase rpc: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []emailRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode rpc response: %w", ErrSourceUnavailable, err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Email != nil {
			out = append(out, *r.Email)
		}
	}
	out = clean(out)
	s.log.Debug("supabase rpc returned rows", logx.Int("rows", len(rows)), logx.Int("emails", len(out)))
	return out, nil
}
