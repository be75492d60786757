package progress

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	logx "mailblast/pkg/logx"
)

// Open prepares the progress directory and the configured index.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*FileStore, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("progress.dir is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var (
		idx Index
		err error
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Index)); driver {
	case "", "dir":
		idx, err = newDirIndex(dir)
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(cfg.IndexPath)
		if path == "" {
			path = filepath.Join(dir, "segments.db")
		}
		idx, err = openSQLiteIndex(ctx, dir, path)
	default:
		return nil, errors.New("unknown progress index: " + driver)
	}
	if err != nil {
		return nil, err
	}
	return newFileStore(dir, cfg.SegmentSize, idx, log), nil
}
