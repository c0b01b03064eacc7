package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/southbay-capital/fundsync/internal/store"
)

// ErrReadExisting marks a failure to read the rows already persisted.
// A merge aborts on it rather than inserting unchecked.
var ErrReadExisting = errors.New("read existing rows")

// Store is the persistence surface a merge needs. *store.Store
// satisfies it.
type Store interface {
	TableExists(ctx context.Context, table string) (bool, error)
	CreateTable(ctx context.Context, table string, columns []string, rows []store.Row) error
	Append(ctx context.Context, table string, columns []string, rows []store.Row) (int, error)
	ReadKeyRows(ctx context.Context, table string, columns []string, dateColumn string, dates []string) ([]store.Row, error)
	ReadIDs(ctx context.Context, table, idColumn, dateColumn string, dates []string) ([]any, error)
}

// Report summarizes one merge.
type Report struct {
	Inserted          int
	DuplicatesSkipped int
	InternalCollapsed int
	TableCreated      bool
}

// Merger merges entity batches into their tables.
type Merger struct {
	st     Store
	logger *slog.Logger
}

// New creates a Merger.
func New(st Store, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{st: st, logger: logger}
}

// Merge appends the rows of one batch that are not already persisted
// under key. When the key is date-scoped, existing-row reads cover the
// calendar dates carried by the batch itself, so off-date rows served
// by the upstream still dedupe against what is already stored.
//
// The batch's internal duplicates are collapsed first, keeping the
// first occurrence of each key, so even a fresh table never receives
// two rows with the same key.
func (m *Merger) Merge(ctx context.Context, table string, columns []string, rows []store.Row, key Key) (Report, error) {
	var report Report
	if len(rows) == 0 {
		return report, nil
	}

	rows, report.InternalCollapsed = collapse(rows, key)

	exists, err := m.st.TableExists(ctx, table)
	if err != nil {
		// An inspection failure is treated as a missing table; the
		// create below is idempotent.
		m.logger.Warn("table existence check failed, assuming missing",
			"table", table, "error", err)
		exists = false
	}

	if !exists {
		if err := m.st.CreateTable(ctx, table, columns, rows); err != nil {
			return report, fmt.Errorf("merge into %s: %w", table, err)
		}
		report.TableCreated = true

		n, err := m.st.Append(ctx, table, columns, rows)
		if err != nil {
			return report, fmt.Errorf("merge into %s: %w", table, err)
		}
		report.Inserted = n
		return report, nil
	}

	var dates []string
	if key.DateColumn != "" {
		dates = batchDates(rows, key.DateColumn)
	}

	existing, err := m.existingKeys(ctx, table, key, dates)
	if err != nil {
		return report, fmt.Errorf("merge into %s: %w", table, errors.Join(ErrReadExisting, err))
	}

	fresh := make([]store.Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := existing[key.Of(row)]; ok {
			report.DuplicatesSkipped++
			continue
		}
		fresh = append(fresh, row)
	}

	if len(fresh) > 0 {
		n, err := m.st.Append(ctx, table, columns, fresh)
		if err != nil {
			return report, fmt.Errorf("merge into %s: %w", table, err)
		}
		report.Inserted = n
	}
	return report, nil
}

// existingKeys reads the keys already persisted in table.
func (m *Merger) existingKeys(ctx context.Context, table string, key Key, dates []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})

	if key.IDColumn != "" {
		ids, err := m.st.ReadIDs(ctx, table, key.IDColumn, key.DateColumn, dates)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			existing[formatKeyValue(id)] = struct{}{}
		}
		return existing, nil
	}

	keyRows, err := m.st.ReadKeyRows(ctx, table, key.Columns, key.DateColumn, dates)
	if err != nil {
		return nil, err
	}
	for _, row := range keyRows {
		existing[key.Of(row)] = struct{}{}
	}
	return existing, nil
}

// batchDates collects the distinct calendar dates present in the
// batch's date column, sorted, as YYYY-MM-DD strings.
func batchDates(rows []store.Row, dateColumn string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range rows {
		d := dateOf(row[dateColumn])
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// dateOf renders the calendar-date part of a date column value.
func dateOf(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case string:
		s := strings.TrimSpace(t)
		if len(s) > 10 {
			return s[:10]
		}
		return s
	default:
		return ""
	}
}

// collapse drops the batch's internal duplicates, keeping first
// occurrences in order.
func collapse(rows []store.Row, key Key) ([]store.Row, int) {
	seen := make(map[string]struct{}, len(rows))
	out := make([]store.Row, 0, len(rows))
	collapsed := 0
	for _, row := range rows {
		k := key.Of(row)
		if _, ok := seen[k]; ok {
			collapsed++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out, collapsed
}
