package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "mailblast/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupabase(t *testing.T, srv *httptest.Server, retries int) *Supabase {
	t.Helper()
	s, err := NewSupabase(Config{URL: srv.URL + "/", Key: "service-key", MaxRetries: retries}, srv.Client(), logx.Nop())
	require.NoError(t, err)
	s.http.(*retryClient).baseDelay = time.Millisecond
	return s
}

func TestSupabaseFetchRecipients(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/select_from_auth_users", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"email":"b@example.com"},{"email":null},{"email":" a@example.com "},{"email":""},{"email":"c@example.com"}]`))
	}))
	defer srv.Close()

	got, err := newTestSupabase(t, srv, 0).FetchRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b@example.com", "a@example.com", "c@example.com"}, got)
}

func TestSupabaseErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestSupabase(t, srv, 3).FetchRecipients(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "401")
}

func TestSupabaseRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"email":"a@example.com"}]`))
	}))
	defer srv.Close()

	got, err := newTestSupabase(t, srv, 3).FetchRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSupabaseMalformedBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	_, err := newTestSupabase(t, srv, 0).FetchRecipients(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestNewSupabaseRequiresCredentials(t *testing.T) {
	t.Parallel()
	_, err := NewSupabase(Config{URL: "https://x.supabase.co"}, nil, logx.Nop())
	require.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = NewSupabase(Config{Key: "k"}, nil, logx.Nop())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}
