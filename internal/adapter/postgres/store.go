// Package postgres persists station history. Tables are append-only:
// rows are only ever inserted, never updated or deleted, because they
// are the durable record of what the station transmitted.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
)

// Store implements pipeline.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore opens a connection pool against databaseURL.
func NewStore(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store pool: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping verifies connectivity, for startup checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ReadTail returns the most recent limit rows of a tier table, newest
// first. NULL cells stay absent from the record's field map.
func (s *Store) ReadTail(ctx context.Context, table string, columns []string, limit int) (domain.StoreTail, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s DESC LIMIT $1`,
		selectList(columns), quoteIdent(table), quoteIdent("DateTime"))

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return domain.StoreTail{}, fmt.Errorf("read tail of %s: %w", table, err)
	}
	defer rows.Close()

	tail := domain.StoreTail{}
	for rows.Next() {
		var ts time.Time
		vals := make([]*float64, len(columns))
		dest := make([]any, 0, len(columns)+1)
		dest = append(dest, &ts)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return domain.StoreTail{}, fmt.Errorf("scan tail row of %s: %w", table, err)
		}

		fields := make(map[string]float64, len(columns))
		for i, col := range columns {
			if vals[i] != nil {
				fields[col] = *vals[i]
			}
		}
		tail.Records = append(tail.Records, domain.Record{Time: ts, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return domain.StoreTail{}, fmt.Errorf("read tail of %s: %w", table, err)
	}
	return tail, nil
}

// AppendRows inserts rows in order inside one transaction, so a cycle
// either lands completely or not at all. Absent fields become NULL.
func (s *Store) AppendRows(ctx context.Context, table string, columns []string, rows []domain.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append to %s: %w", table, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := insertStatement(table, columns)
	batch := &pgx.Batch{}
	for _, row := range rows {
		args := make([]any, 0, len(columns)+1)
		args = append(args, row.Time)
		for _, col := range columns {
			if v, ok := row.Fields[col]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		batch.Queue(query, args...)
	}

	res := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := res.Exec(); err != nil {
			res.Close() //nolint:errcheck // already failing
			return fmt.Errorf("append to %s: %w", table, err)
		}
	}
	if err := res.Close(); err != nil {
		return fmt.Errorf("append to %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append to %s: %w", table, err)
	}

	s.logger.Debug("appended rows", "table", table, "rows", len(rows))
	return nil
}

func insertStatement(table string, columns []string) string {
	cols := make([]string, 0, len(columns)+1)
	cols = append(cols, quoteIdent("DateTime"))
	placeholders := make([]string, 0, len(columns)+1)
	placeholders = append(placeholders, "$1")
	for i, col := range columns {
		cols = append(cols, quoteIdent(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func selectList(columns []string) string {
	parts := make([]string, 0, len(columns)+1)
	parts = append(parts, quoteIdent("DateTime"))
	for _, col := range columns {
		parts = append(parts, quoteIdent(col))
	}
	return strings.Join(parts, ", ")
}

// quoteIdent quotes a table or column identifier. Names come from the
// station registry, not user input, but mixed-case column names need
// quoting either way.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
