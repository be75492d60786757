package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSV reads the first column of a local file. It is re-read on every fetch
// so edits between scheduled runs are picked up.
type CSV struct {
	path       string
	skipHeader bool
}

func NewCSV(path string, skipHeader bool) (*CSV, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, unavailable("csv path is required")
	}
	return &CSV{path: path, skipHeader: skipHeader}, nil
}

func (c *CSV) FetchRecipients(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	var out []string
	for line := 0; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, c.path, err)
		}
		if line == 0 && c.skipHeader {
			continue
		}
		if len(rec) > 0 {
			out = append(out, rec[0])
		}
	}
	return clean(out), nil
}
