package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one table row keyed by column name.
type Row map[string]any

// Store persists entity tables in a single PostgreSQL schema.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool, schema string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:   pool,
		schema: schema,
		logger: logger,
	}
}

// Schema returns the schema the store writes into.
func (s *Store) Schema() string {
	return s.schema
}

// TableExists reports whether table exists in the store's schema.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = $1 AND tablename = $2)`,
		s.schema, table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}

// CreateTable creates table with each column's type inferred from its
// first non-null value across the batch. Creating an already existing
// table is a no-op.
func (s *Store) CreateTable(ctx context.Context, table string, columns []string, rows []Row) error {
	sql := createTableSQL(s.schema, table, columns, rows)
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	s.logger.Info("created table", "schema", s.schema, "table", table, "columns", len(columns))
	return nil
}

// Append inserts rows using a single pgx batch. Values for columns a
// row does not carry are stored as NULL.
func (s *Store) Append(ctx context.Context, table string, columns []string, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sql := insertSQL(s.schema, table, columns)
	batch := &pgx.Batch{}
	for _, row := range rows {
		args := make([]any, 0, len(columns))
		for _, col := range columns {
			args = append(args, row[col])
		}
		batch.Queue(sql, args...)
	}

	start := time.Now()
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("append to %s, row %d of %d: %w", table, i+1, len(rows), err)
		}
	}

	s.logger.Debug("appended rows",
		"table", table,
		"count", len(rows),
		"duration", time.Since(start),
	)
	return len(rows), nil
}

// ReadKeyRows reads the named columns of every row, optionally scoped
// to a set of calendar dates of dateColumn. Dates are YYYY-MM-DD
// strings.
func (s *Store) ReadKeyRows(ctx context.Context, table string, columns []string, dateColumn string, dates []string) ([]Row, error) {
	quoted := make([]string, 0, len(columns))
	for _, col := range columns {
		quoted = append(quoted, pgx.Identifier{col}.Sanitize())
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), qualify(s.schema, table))
	var args []any
	if dateColumn != "" && len(dates) > 0 {
		sql += fmt.Sprintf(" WHERE %s::date = ANY($1::date[])", pgx.Identifier{dateColumn}.Sanitize())
		args = append(args, dates)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ReadIDs returns the distinct non-null values of idColumn, optionally
// scoped to a set of calendar dates of dateColumn.
func (s *Store) ReadIDs(ctx context.Context, table, idColumn, dateColumn string, dates []string) ([]any, error) {
	id := pgx.Identifier{idColumn}.Sanitize()
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL",
		id, qualify(s.schema, table), id)
	var args []any
	if dateColumn != "" && len(dates) > 0 {
		sql += fmt.Sprintf(" AND %s::date = ANY($1::date[])", pgx.Identifier{dateColumn}.Sanitize())
		args = append(args, dates)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("read ids from %s: %w", table, err)
	}
	defer rows.Close()

	var ids []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan id from %s: %w", table, err)
		}
		ids = append(ids, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ids from %s: %w", table, err)
	}
	return ids, nil
}

// scanRows drains a result set into column-keyed rows.
func scanRows(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
