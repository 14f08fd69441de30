package cities

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/config"
)

// Querier is the part of a pgx pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres lists cities from a table of urban audit areas.
type Postgres struct {
	db                Querier
	table             pgx.Identifier
	codeColumn        string
	memberStateColumn string
	codeLength        int
}

// NewPostgres creates a Postgres source from the cities configuration.
func NewPostgres(db Querier, cfg config.CitiesConfig) *Postgres {
	return &Postgres{
		db:                db,
		table:             pgx.Identifier(strings.Split(cfg.Table, ".")),
		codeColumn:        cfg.CodeColumn,
		memberStateColumn: cfg.MemberStateColumn,
		codeLength:        cfg.CodeLength,
	}
}

// OpenPool connects to the city database.
func OpenPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "cities: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "cities: ping")
	}
	return pool, nil
}

func (p *Postgres) query(memberState string) (string, []any) {
	code := pgx.Identifier{p.codeColumn}.Sanitize()
	ms := pgx.Identifier{p.memberStateColumn}.Sanitize()
	q := fmt.Sprintf("SELECT %s, %s FROM %s", code, ms, p.table.Sanitize())
	var args []any
	if memberState != "" {
		q += fmt.Sprintf(" WHERE %s = $1", ms)
		args = append(args, memberState)
	}
	q += fmt.Sprintf(" ORDER BY %s", code)
	return q, args
}

// Cities implements Source. Codes are truncated to the configured length
// and deduplicated.
func (p *Postgres) Cities(ctx context.Context, memberState string) ([]City, error) {
	q, args := p.query(memberState)
	rows, err := p.db.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "cities: query %s", p.table.Sanitize())
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []City
	for rows.Next() {
		var code, ms string
		if err := rows.Scan(&code, &ms); err != nil {
			return nil, eris.Wrap(err, "cities: scan")
		}
		code = truncate(code, p.codeLength)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, City{Code: code, MemberState: strings.TrimSpace(ms)})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "cities: iterate")
	}

	zap.L().Info("cities loaded",
		zap.String("table", p.table.Sanitize()),
		zap.String("member_state", memberState),
		zap.Int("count", len(out)),
	)
	return out, nil
}
