package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mailblast/internal/progress"
	logx "mailblast/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	list []string
	err  error
}

func (s staticSource) FetchRecipients(context.Context) ([]string, error) {
	return append([]string(nil), s.list...), s.err
}

type recordingTransport struct {
	fail map[string]error
	sent []string
}

func (t *recordingTransport) Send(_ context.Context, to string) error {
	if err := t.fail[to]; err != nil {
		return err
	}
	t.sent = append(t.sent, to)
	return nil
}

type recordingSleeper struct {
	calls []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

// MockProgress is a testify mock of the progress log.
type MockProgress struct {
	mock.Mock
}

func (m *MockProgress) ResumeCursor(ctx context.Context) (progress.Cursor, error) {
	args := m.Called(ctx)
	return args.Get(0).(progress.Cursor), args.Error(1)
}

func (m *MockProgress) Append(ctx context.Context, email string) (progress.Record, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(progress.Record), args.Error(1)
}

func (m *MockProgress) Close() error {
	return m.Called().Error(0)
}

func recipients(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("r%02d@example.com", i)
	}
	return out
}

func openStore(t *testing.T, dir string) *progress.FileStore {
	t.Helper()
	st, err := progress.Open(context.Background(), progress.Config{Dir: dir}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func recordedEmails(t *testing.T, dir string) []string {
	t.Helper()
	st := openStore(t, dir)
	recs, err := st.Records(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Email)
	}
	return out
}

func fastPacing(batch int) Pacing {
	return Pacing{BatchSize: batch, DelayBetweenEmails: time.Second, DelayBetweenBatches: time.Hour}
}

func TestRunColdStartSendsEverythingInOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	list := recipients(25)
	tr := &recordingTransport{}
	sl := &recordingSleeper{}

	d := New(staticSource{list: list}, tr, openStore(t, dir),
		WithPacing(fastPacing(10)), WithSleeper(sl.Sleep))
	rep, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, list, tr.sent)
	assert.Equal(t, list, recordedEmails(t, dir))
	assert.Equal(t, Report{Total: 25, Start: 0, Batches: 3, Attempted: 25, Sent: 25, LastSeq: 25}, rep)
	assert.Zero(t, rep.Remaining())
}

func TestRunResumesAfterLastRecordedAddress(t *testing.T) {
	t.Parallel()
	list := recipients(12)
	for _, k := range []int{0, 4, 10, 11} {
		k := k
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			seed := openStore(t, dir)
			for _, e := range list[:k+1] {
				_, err := seed.Append(context.Background(), e)
				require.NoError(t, err)
			}
			require.NoError(t, seed.Close())

			tr := &recordingTransport{}
			d := New(staticSource{list: list}, tr, openStore(t, dir),
				WithPacing(fastPacing(5)), WithSleeper((&recordingSleeper{}).Sleep))
			rep, err := d.Run(context.Background())
			require.NoError(t, err)

			want := list[k+1:]
			if len(want) == 0 {
				assert.Empty(t, tr.sent)
			} else {
				assert.Equal(t, want, tr.sent)
			}
			assert.Equal(t, k+1, rep.Start)
			assert.Equal(t, list, recordedEmails(t, dir), "nothing before the cursor is sent twice")
		})
	}
}

func TestRunRestartsWhenLastAddressVanished(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	seed := openStore(t, dir)
	_, err := seed.Append(context.Background(), "gone@example.com")
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	list := recipients(4)
	tr := &recordingTransport{}
	d := New(staticSource{list: list}, tr, openStore(t, dir),
		WithPacing(fastPacing(10)), WithSleeper((&recordingSleeper{}).Sleep))
	rep, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Start)
	assert.Equal(t, list, tr.sent)
	assert.Equal(t, uint64(5), rep.LastSeq, "sequence keeps counting after the restart")
}

func TestRunSkipsFailedAddressAndContinues(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	list := recipients(5)
	tr := &recordingTransport{fail: map[string]error{list[2]: errors.New("550 mailbox unavailable")}}
	var failures []*Error

	d := New(staticSource{list: list}, tr, openStore(t, dir),
		WithPacing(fastPacing(10)),
		WithSleeper((&recordingSleeper{}).Sleep),
		WithItemFailureHook(func(e *Error) { failures = append(failures, e) }))
	rep, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, rep.Attempted)
	assert.Equal(t, 4, rep.Sent)
	assert.Equal(t, 1, rep.Failed)

	recorded := recordedEmails(t, dir)
	assert.NotContains(t, recorded, list[2])
	assert.Contains(t, recorded, list[3])

	require.Len(t, failures, 1)
	assert.Equal(t, KindItem, failures[0].Kind)
	assert.Equal(t, list[2], failures[0].Email)
	assert.False(t, IsFatal(failures[0]))
}

func TestRunSkipsUnrecordableAddressWithoutSending(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	list := []string{"a@example.com", "bad@example.com\r\nBcc: c@example.com", "d@example.com"}

	tr := &recordingTransport{}
	var failures []*Error
	d := New(staticSource{list: list}, tr, openStore(t, dir),
		WithPacing(fastPacing(10)),
		WithSleeper((&recordingSleeper{}).Sleep),
		WithItemFailureHook(func(e *Error) { failures = append(failures, e) }))
	rep, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "d@example.com"}, tr.sent)
	assert.Equal(t, 3, rep.Attempted)
	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, failures, 1)
	assert.Equal(t, KindItem, failures[0].Kind)
	assert.Equal(t, list[1], failures[0].Email)
	assert.ErrorIs(t, failures[0], progress.ErrInvalidAddress)
	assert.Equal(t, []string{"a@example.com", "d@example.com"}, recordedEmails(t, dir))

	// A restart resumes after d and never retries the bad address.
	again := &recordingTransport{}
	rep, err = New(staticSource{list: list}, again, openStore(t, dir),
		WithPacing(fastPacing(10)),
		WithSleeper((&recordingSleeper{}).Sleep)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Start)
	assert.Zero(t, rep.Attempted)
	assert.Empty(t, again.sent)
}

func TestRunSleepPattern(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		finalSleep bool
		want       []time.Duration
	}{
		{
			name: "no trailing batch pause",
			want: []time.Duration{
				time.Second, time.Second, time.Second, time.Hour,
				time.Second, time.Second, time.Second, time.Hour,
				time.Second,
			},
		},
		{
			name:       "trailing batch pause",
			finalSleep: true,
			want: []time.Duration{
				time.Second, time.Second, time.Second, time.Hour,
				time.Second, time.Second, time.Second, time.Hour,
				time.Second, time.Hour,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := fastPacing(3)
			p.SleepAfterFinalBatch = tt.finalSleep
			sl := &recordingSleeper{}
			d := New(staticSource{list: recipients(7)}, &recordingTransport{}, openStore(t, t.TempDir()),
				WithPacing(p), WithSleeper(sl.Sleep))
			_, err := d.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, sl.calls)
		})
	}
}

func TestRunFetchFailureIsFatalAndClosesProgress(t *testing.T) {
	t.Parallel()
	prog := &MockProgress{}
	prog.On("Close").Return(nil).Once()

	d := New(staticSource{err: errors.New("supabase down")}, &recordingTransport{}, prog)
	_, err := d.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "fetch", de.Op)
	prog.AssertExpectations(t)
	prog.AssertNotCalled(t, "ResumeCursor", mock.Anything)
}

func TestRunCursorFailureIsFatal(t *testing.T) {
	t.Parallel()
	prog := &MockProgress{}
	prog.On("ResumeCursor", mock.Anything).Return(progress.Cursor{}, progress.ErrMalformedRecord)
	prog.On("Close").Return(nil).Once()

	tr := &recordingTransport{}
	d := New(staticSource{list: recipients(3)}, tr, prog)
	_, err := d.Run(context.Background())

	assert.True(t, IsFatal(err))
	require.ErrorIs(t, err, progress.ErrMalformedRecord)
	assert.Empty(t, tr.sent)
	prog.AssertExpectations(t)
}

func TestRunRecordFailureAbortsRun(t *testing.T) {
	t.Parallel()
	list := recipients(3)
	prog := &MockProgress{}
	prog.On("ResumeCursor", mock.Anything).Return(progress.Cursor{}, nil)
	prog.On("Append", mock.Anything, list[0]).Return(progress.Record{}, errors.New("disk full"))
	prog.On("Close").Return(nil).Once()

	tr := &recordingTransport{}
	d := New(staticSource{list: list}, tr, prog, WithSleeper((&recordingSleeper{}).Sleep))
	rep, err := d.Run(context.Background())

	assert.True(t, IsFatal(err))
	assert.Equal(t, []string{list[0]}, tr.sent)
	assert.Equal(t, 0, rep.Sent)
	prog.AssertExpectations(t)
}

func TestRunInterruptedDuringSleep(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &recordingTransport{}
	sleeps := 0
	sleeper := func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	}
	d := New(staticSource{list: recipients(6)}, tr, openStore(t, dir),
		WithPacing(fastPacing(10)), WithSleeper(sleeper))
	rep, err := d.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsFatal(err))
	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, tr.sent, recordedEmails(t, dir))
}

func TestRunDryRunSendsAndRecordsNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tr := &recordingTransport{}
	d := New(staticSource{list: recipients(4)}, tr, openStore(t, dir),
		WithDryRun(true), WithSleeper((&recordingSleeper{}).Sleep))
	rep, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Attempted)
	assert.Empty(t, tr.sent)
	assert.Empty(t, recordedEmails(t, dir))
}

func TestStatusCallbackSeesRunningTotals(t *testing.T) {
	t.Parallel()
	var seen []int
	d := New(staticSource{list: recipients(3)}, &recordingTransport{}, openStore(t, t.TempDir()),
		WithSleeper((&recordingSleeper{}).Sleep),
		WithStatus(func(r Report) { seen = append(seen, r.Sent) }))
	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestSetPacingAppliesToNextPause(t *testing.T) {
	t.Parallel()
	sl := &recordingSleeper{}
	var d *Dispatcher
	d = New(staticSource{list: recipients(2)}, &recordingTransport{}, openStore(t, t.TempDir()),
		WithPacing(fastPacing(10)),
		WithSleeper(sl.Sleep),
		WithStatus(func(r Report) {
			if r.Attempted == 1 {
				d.SetPacing(Pacing{BatchSize: 10, DelayBetweenEmails: 5 * time.Second})
			}
		}))
	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sl.calls)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
