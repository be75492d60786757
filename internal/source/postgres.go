package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	logx "mailblast/pkg/logx"
)

// Postgres reads recipients straight from the database behind Supabase.
type Postgres struct {
	db    *sql.DB
	query string
	log   logx.Logger
}

func OpenPostgres(cfg Config, log logx.Logger) (*Postgres, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, unavailable("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %w", ErrSourceUnavailable, err)
	}
	db.SetMaxOpenConns(2)
	return NewPostgres(db, cfg.Query, log), nil
}

// NewPostgres wraps an existing handle. An empty query selects every
// non-null address from auth.users in signup order.
func NewPostgres(db *sql.DB, query string, log logx.Logger) *Postgres {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Postgres{db: db, query: query, log: log}
}

func (p *Postgres) FetchRecipients(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, p.query)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email sql.NullString
		if err := rows.Scan(&email); err != nil {
			return nil, p.wrap(err)
		}
		if email.Valid {
			out = append(out, email.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap(err)
	}
	return clean(out), nil
}

func (p *Postgres) wrap(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		p.log.Error("postgres query failed",
			logx.String("code", string(pqErr.Code)), logx.String("code_name", pqErr.Code.Name()))
	}
	return fmt.Errorf("%w: postgres: %w", ErrSourceUnavailable, err)
}

func (p *Postgres) Close() error { return p.db.Close() }
