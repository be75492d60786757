package progress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "mailblast/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dir string, index string) *FileStore {
	t.Helper()
	st, err := Open(context.Background(), Config{Dir: dir, Index: index}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func appendN(t *testing.T, st *FileStore, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		_, err := st.Append(context.Background(), fmt.Sprintf("user%03d@example.com", i))
		require.NoError(t, err)
	}
}

func TestResumeCursorEmptyDir(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, t.TempDir(), "")

	c, err := st.ResumeCursor(context.Background())
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Equal(t, Cursor{}, c)
}

func TestAppendRotatesEveryHundredRecords(t *testing.T) {
	t.Parallel()
	for _, index := range []string{"dir", "sqlite"} {
		index := index
		t.Run(index, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			st := openTestStore(t, dir, index)
			// A frozen clock forces the monotonic name nudge on every rotation.
			frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
			st.now = func() time.Time { return frozen }

			appendN(t, st, 1, 250)

			segs, err := st.Segments(context.Background())
			require.NoError(t, err)
			require.Len(t, segs, 3)

			var counts []int
			for _, seg := range segs {
				recs, err := readRecords(seg.Path)
				require.NoError(t, err)
				counts = append(counts, len(recs))
			}
			assert.Equal(t, []int{100, 100, 50}, counts)

			recs, err := st.Records(context.Background())
			require.NoError(t, err)
			require.Len(t, recs, 250)
			for i, r := range recs {
				assert.Equal(t, uint64(i+1), r.Seq)
			}

			files, err := filepath.Glob(filepath.Join(dir, "sent_emails_*.log"))
			require.NoError(t, err)
			assert.Len(t, files, 3)
		})
	}
}

func TestResumeCursorAfterCrash(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := openTestStore(t, dir, "")
	appendN(t, st, 1, 137)

	// No Close: a second store over the same directory sees what was flushed.
	again := openTestStore(t, dir, "")
	c, err := again.ResumeCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Cursor{Seq: 137, Email: "user137@example.com"}, c)
}

func TestSequenceContinuesAcrossRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := openTestStore(t, dir, "")
	appendN(t, st, 1, 37)
	require.NoError(t, st.Close())

	again := openTestStore(t, dir, "")
	rec, err := again.Append(context.Background(), "next@example.com")
	require.NoError(t, err)
	assert.Equal(t, Record{Seq: 38, Email: "next@example.com"}, rec)

	segs, err := again.Segments(context.Background())
	require.NoError(t, err)
	assert.Len(t, segs, 2, "a restarted store opens a fresh segment")
}

func TestResumeCursorSkipsEmptyNewestSegment(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := openTestStore(t, dir, "")
	appendN(t, st, 1, 5)
	require.NoError(t, st.Close())

	empty := filepath.Join(dir, segmentName(time.Now().Add(time.Hour)))
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	again := openTestStore(t, dir, "")
	c, err := again.ResumeCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c.Seq)
	assert.Equal(t, "user005@example.com", c.Email)
}

func TestResumeCursorMalformedLastLine(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "sent_emails_20240101_120000.log")
	require.NoError(t, os.WriteFile(path, []byte("1. a@example.com\ngarbage\n"), 0o644))

	st := openTestStore(t, dir, "")
	_, err := st.ResumeCursor(context.Background())
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestLegacySegmentNamesAreRead(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "sent_emails_20240101_120000.log"),
		[]byte("1. a@example.com\n2. b@example.com\n"), 0o644))

	st := openTestStore(t, dir, "")
	st.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local) }

	c, err := st.ResumeCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Cursor{Seq: 2, Email: "b@example.com"}, c)

	rec, err := st.Append(context.Background(), "c@example.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Seq)

	segs, err := st.Segments(context.Background())
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "sent_emails_20240101_120000.log", segs[0].Name)
}

func TestSQLiteIndexAdoptsExistingSegments(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := openTestStore(t, dir, "dir")
	appendN(t, st, 1, 3)
	require.NoError(t, st.Close())

	again := openTestStore(t, dir, "sqlite")
	c, err := again.ResumeCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), c.Seq)
	assert.FileExists(t, filepath.Join(dir, "segments.db"))
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	for _, index := range []string{"dir", "sqlite"} {
		index := index
		t.Run(index, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, t.TempDir(), index)
			appendN(t, st, 1, 2)
			require.NoError(t, st.Close())
			require.NoError(t, st.Close())

			ctx := context.Background()
			_, err := st.Append(ctx, "a@example.com")
			require.ErrorIs(t, err, ErrClosed)
			_, err = st.ResumeCursor(ctx)
			require.ErrorIs(t, err, ErrClosed)
			_, err = st.Records(ctx)
			require.ErrorIs(t, err, ErrClosed)
			_, err = st.Segments(ctx)
			require.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestAppendRejectsMultilineAddress(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, t.TempDir(), "")
	_, err := st.Append(context.Background(), "a@example.com\n2. forged@example.com")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestOpenUnknownIndex(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Dir: t.TempDir(), Index: "etcd"}, logx.Nop())
	require.Error(t, err)
}
