package progress

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultSegmentSize is the record cap of one segment file.
	DefaultSegmentSize = 100

	segmentPrefix = "sent_emails_"
	segmentSuffix = ".log"
	segmentLayout = "20060102_150405.000000"
	legacyLayout  = "20060102_150405"
)

var (
	ErrClosed          = errors.New("progress store closed")
	ErrMalformedRecord = errors.New("malformed progress record")
	ErrInvalidAddress  = errors.New("address cannot be recorded")
)

// Config configures the progress store.
//
// Index values:
//   - "dir": segment order comes from sorted file names (default)
//   - "sqlite": segment order comes from a manifest database at IndexPath
type Config struct {
	Dir         string
	SegmentSize int
	Index       string
	IndexPath   string // sqlite only; default <Dir>/segments.db
}

// Record is one durable line of the send log.
type Record struct {
	Seq   uint64
	Email string
}

// Cursor is the resume point derived from the newest record.
// The zero value means nothing has been sent yet.
type Cursor struct {
	Seq   uint64
	Email string
}

// Empty reports whether no record exists.
func (c Cursor) Empty() bool { return c.Seq == 0 && c.Email == "" }

// Segment identifies one segment file.
type Segment struct {
	Name    string
	Path    string
	Created time.Time
}

// Index lists the segments of one progress directory, oldest first.
type Index interface {
	Segments(ctx context.Context) ([]Segment, error)
	Add(ctx context.Context, seg Segment) error
	Close() error
}
