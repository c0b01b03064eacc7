package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// qualify renders a schema-qualified, quoted table name.
func qualify(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// columnType infers the PostgreSQL column type from a sample value.
// Unknown and nil values get text, which any later value can still be
// stored into.
func columnType(v any) string {
	switch v.(type) {
	case time.Time:
		return "timestamp"
	case float64, float32:
		return "double precision"
	case int, int32, int64:
		return "bigint"
	case bool:
		return "boolean"
	default:
		return "text"
	}
}

// createTableSQL builds a CREATE TABLE statement. Each column's type
// comes from its first non-null value anywhere in the batch; a column
// that is null throughout falls back to text.
func createTableSQL(schema, table string, columns []string, rows []Row) string {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, fmt.Sprintf("%s %s",
			pgx.Identifier{col}.Sanitize(), columnType(columnSample(rows, col))))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		qualify(schema, table), strings.Join(defs, ", "))
}

// columnSample returns the first non-null value of col across the
// batch.
func columnSample(rows []Row, col string) any {
	for _, row := range rows {
		if v := row[col]; v != nil {
			return v
		}
	}
	return nil
}

// insertSQL builds a positional INSERT statement over columns.
func insertSQL(schema, table string, columns []string) string {
	quoted := make([]string, 0, len(columns))
	args := make([]string, 0, len(columns))
	for i, col := range columns {
		quoted = append(quoted, pgx.Identifier{col}.Sanitize())
		args = append(args, fmt.Sprintf("$%d", i+1))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualify(schema, table), strings.Join(quoted, ", "), strings.Join(args, ", "))
}
