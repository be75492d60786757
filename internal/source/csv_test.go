package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	logx "mailblast/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVFetchRecipients(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "list.csv")
	body := "email,name\n# paused\na@example.com,Ann\n\n b@example.com ,Bob\n,Nobody\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := NewCSV(path, true)
	require.NoError(t, err)
	got, err := c.FetchRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got)
}

func TestCSVMissingFile(t *testing.T) {
	t.Parallel()
	c, err := NewCSV(filepath.Join(t.TempDir(), "nope.csv"), false)
	require.NoError(t, err)
	_, err = c.FetchRecipients(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(path, []byte("a@example.com\n"), 0o644))

	src, closeFn, err := Open(Config{Driver: "CSV", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, closeFn())
	assert.IsType(t, &CSV{}, src)

	src, _, err = Open(Config{URL: "https://abc.supabase.co", Key: "k"}, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Supabase{}, src)

	_, _, err = Open(Config{Driver: "ldap"}, logx.Nop())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}
