package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS segments (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);`

// sqliteIndex keeps the segment manifest in a SQLite table instead of
// relying on the directory listing alone.
type sqliteIndex struct {
	db  *sql.DB
	dir string
}

func openSQLiteIndex(ctx context.Context, dir, path string) (*sqliteIndex, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite index path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the send loop is sequential anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = FULL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite index migrate: %w", err)
	}

	x := &sqliteIndex{db: db, dir: dir}
	if err := x.adopt(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return x, nil
}

// adopt registers segment files that exist on disk but not in the manifest
// (first switch from the dir index, or a crash between file create and Add).
func (x *sqliteIndex) adopt(ctx context.Context) error {
	segs, err := scanSegments(x.dir)
	if err != nil {
		return err
	}
	for _, s := range segs {
		if err := x.Add(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (x *sqliteIndex) Segments(ctx context.Context) ([]Segment, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT name, created_at FROM segments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var (
			name string
			us   int64
		)
		if err := rows.Scan(&name, &us); err != nil {
			return nil, err
		}
		out = append(out, Segment{
			Name:    name,
			Path:    filepath.Join(x.dir, name),
			Created: time.UnixMicro(us),
		})
	}
	return out, rows.Err()
}

func (x *sqliteIndex) Add(ctx context.Context, seg Segment) error {
	_, err := x.db.ExecContext(ctx,
		`INSERT INTO segments(name, created_at) VALUES(?, ?) ON CONFLICT(name) DO NOTHING`,
		seg.Name, seg.Created.UnixMicro(),
	)
	return err
}

func (x *sqliteIndex) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}
