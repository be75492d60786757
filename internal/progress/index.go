package progress

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// dirIndex is the default Index: a manifest rebuilt from the directory
// listing when the store opens, then kept in memory.
type dirIndex struct {
	mu   sync.Mutex
	segs []Segment
}

func newDirIndex(dir string) (*dirIndex, error) {
	segs, err := scanSegments(dir)
	if err != nil {
		return nil, err
	}
	return &dirIndex{segs: segs}, nil
}

func (x *dirIndex) Segments(ctx context.Context) ([]Segment, error) {
	_ = ctx
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]Segment(nil), x.segs...), nil
}

func (x *dirIndex) Add(ctx context.Context, seg Segment) error {
	_ = ctx
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, s := range x.segs {
		if s.Name == seg.Name {
			return nil
		}
	}
	x.segs = append(x.segs, seg)
	sortSegments(x.segs)
	return nil
}

func (x *dirIndex) Close() error { return nil }

// scanSegments lists segment files in dir, oldest first.
// A missing directory yields no segments.
func scanSegments(dir string) ([]Segment, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Segment, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		created, ok := parseSegmentName(e.Name())
		if !ok {
			continue
		}
		out = append(out, Segment{Name: e.Name(), Path: filepath.Join(dir, e.Name()), Created: created})
	}
	sortSegments(out)
	return out, nil
}

// Segment names embed their creation time so that lexicographic order is
// creation order.
func sortSegments(segs []Segment) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Name < segs[j].Name })
}

func segmentName(t time.Time) string {
	return segmentPrefix + t.Format(segmentLayout) + segmentSuffix
}

func parseSegmentName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	for _, layout := range []string{segmentLayout, legacyLayout} {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
