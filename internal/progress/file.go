package progress

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "mailblast/pkg/logx"
)

// FileStore is the segment-file implementation of the send log.
//
// Files (in Dir):
//   - sent_emails_<YYYYMMDD_HHMMSS.ffffff>.log (one "<seq>. <address>" per line)
//   - segments.db (sqlite index only)
//
// Every Append is fsync'ed before it returns.
type FileStore struct {
	log logx.Logger
	now func() time.Time

	dir         string
	segmentSize int
	index       Index

	mu sync.Mutex

	cur      *os.File
	curSeg   Segment
	curCount int

	seq       uint64
	seqLoaded bool
	closed    bool
}

func newFileStore(dir string, segmentSize int, index Index, log logx.Logger) *FileStore {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileStore{
		log:         log,
		now:         time.Now,
		dir:         dir,
		segmentSize: segmentSize,
		index:       index,
	}
}

// ResumeCursor returns the last record of the newest non-empty segment,
// or the zero Cursor when nothing was ever recorded.
func (s *FileStore) ResumeCursor(ctx context.Context) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Cursor{}, ErrClosed
	}
	return s.resumeCursorLocked(ctx)
}

func (s *FileStore) resumeCursorLocked(ctx context.Context) (Cursor, error) {
	segs, err := s.index.Segments(ctx)
	if err != nil {
		return Cursor{}, fmt.Errorf("list segments: %w", err)
	}
	for i := len(segs) - 1; i >= 0; i-- {
		rec, ok, err := lastRecord(segs[i].Path)
		if err != nil {
			return Cursor{}, err
		}
		if !ok {
			s.log.Debug("skipping empty segment", logx.String("segment", segs[i].Name))
			continue
		}
		return Cursor(rec), nil
	}
	return Cursor{}, nil
}

// Append records email as the next sequence number.
// A new segment is opened when none is open yet or the open one is full.
func (s *FileStore) Append(ctx context.Context, email string) (Record, error) {
	email = strings.TrimSpace(email)
	if err := CheckAddress(email); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrClosed
	}

	if !s.seqLoaded {
		c, err := s.resumeCursorLocked(ctx)
		if err != nil {
			return Record{}, err
		}
		s.seq = c.Seq
		s.seqLoaded = true
	}

	if s.cur == nil || s.curCount >= s.segmentSize {
		if err := s.rotateLocked(ctx); err != nil {
			return Record{}, err
		}
	}

	rec := Record{Seq: s.seq + 1, Email: email}
	if _, err := s.cur.WriteString(FormatRecord(rec)); err != nil {
		return Record{}, fmt.Errorf("write %s: %w", s.curSeg.Name, err)
	}
	if err := s.cur.Sync(); err != nil {
		return Record{}, fmt.Errorf("sync %s: %w", s.curSeg.Name, err)
	}
	s.seq = rec.Seq
	s.curCount++
	return rec, nil
}

func (s *FileStore) rotateLocked(ctx context.Context) error {
	if s.cur != nil {
		if err := s.cur.Close(); err != nil {
			s.log.Warn("close segment failed", logx.String("segment", s.curSeg.Name), logx.Err(err))
		}
		s.cur = nil
	}

	created, err := s.nextCreated(ctx)
	if err != nil {
		return err
	}
	seg := Segment{Name: segmentName(created), Created: created}
	seg.Path = filepath.Join(s.dir, seg.Name)

	f, err := os.OpenFile(seg.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	syncDir(s.dir)
	if err := s.index.Add(ctx, seg); err != nil {
		_ = f.Close()
		return fmt.Errorf("index segment: %w", err)
	}

	s.cur = f
	s.curSeg = seg
	s.curCount = 0
	s.log.Info("created new progress segment", logx.String("segment", seg.Name), logx.Uint64("next_seq", s.seq+1))
	return nil
}

// nextCreated returns a creation time whose segment name sorts after every
// existing segment, even when the clock stalls or steps backwards.
func (s *FileStore) nextCreated(ctx context.Context) (time.Time, error) {
	t := s.now().Truncate(time.Microsecond)
	segs, err := s.index.Segments(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("list segments: %w", err)
	}
	if len(segs) == 0 {
		return t, nil
	}
	last := segs[len(segs)-1]
	if segmentName(t) > last.Name {
		return t, nil
	}
	t = last.Created.Truncate(time.Microsecond).Add(time.Microsecond)
	if segmentName(t) <= last.Name {
		// Legacy second-resolution names; step past the whole second.
		t = last.Created.Truncate(time.Second).Add(time.Second)
	}
	return t, nil
}

// Records returns every record in segment order.
func (s *FileStore) Records(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	segs, err := s.index.Segments(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, seg := range segs {
		recs, err := readRecords(seg.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Segments exposes the index listing, oldest first.
func (s *FileStore) Segments(ctx context.Context) ([]Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.index.Segments(ctx)
}

// Close releases the open segment and the index. It is idempotent.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err1, err2 error
	if s.cur != nil {
		err1 = s.cur.Close()
		s.cur = nil
	}
	if s.index != nil {
		err2 = s.index.Close()
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func lastRecord(path string) (Record, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return Record{}, false, err
	}
	if last == "" {
		return Record{}, false, nil
	}
	rec, err := ParseRecord(last)
	if err != nil {
		return Record{}, false, fmt.Errorf("%s: %w", path, err)
	}
	return rec, true, nil
}

func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// syncDir makes a newly created segment's directory entry durable.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
