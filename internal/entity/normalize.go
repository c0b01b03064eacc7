package entity

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/southbay-capital/fundsync/internal/api"
	"github.com/southbay-capital/fundsync/internal/store"
)

// dateLayouts are the wire formats date columns arrive in.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize projects a raw batch onto the definition's columns and
// coerces values to their column types. It returns the rows and the
// effective column list, which excludes declared columns the whole
// batch lacks.
func (d *Definition) Normalize(recs []api.Record) ([]store.Row, []string) {
	if d.PostProcess != nil {
		for _, rec := range recs {
			d.PostProcess(rec)
		}
	}

	present := make(map[string]struct{})
	for _, rec := range recs {
		for k := range rec {
			present[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(d.Columns))
	for _, col := range d.Columns {
		if _, ok := present[col]; ok {
			columns = append(columns, col)
		}
	}

	numeric := toSet(d.NumericColumns)
	dates := toSet(d.DateColumns)
	ints := toSet(d.IntColumns)

	rows := make([]store.Row, 0, len(recs))
	for _, rec := range recs {
		row := make(store.Row, len(columns))
		for _, col := range columns {
			v := rec[col]
			switch {
			case numeric[col]:
				v = toFloat(v)
			case dates[col]:
				v = toDate(v)
			case ints[col]:
				v = toInt(v)
			}
			row[col] = v
		}
		if d.NonNullColumn != "" && row[d.NonNullColumn] == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, columns
}

func toSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}

// toFloat coerces v to float64, or nil when it cannot be read as a
// number.
func toFloat(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		return f
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		return d.InexactFloat64()
	default:
		return nil
	}
}

// toDate coerces v to a time.Time in UTC, or nil. Zoned values are
// converted so that dedup keys and date scoping agree with what a
// timestamp column reads back.
func toDate(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
		return nil
	default:
		return nil
	}
}

// toInt coerces v to int64, or nil. Fractional values truncate.
func toInt(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
		return nil
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		return d.IntPart()
	default:
		return nil
	}
}

// Aggregation groups rows and combines their measure columns.
type Aggregation struct {
	GroupBy []string
	Sum     []string
	Mean    []string
	First   []string
}

// Apply groups rows by the GroupBy columns, in first-seen order. Sum
// and Mean skip NULL values; a measure NULL across the whole group
// stays NULL.
func (a *Aggregation) Apply(rows []store.Row) []store.Row {
	type group struct {
		row    store.Row
		sums   map[string]float64
		seen   map[string]bool
		counts map[string]int
	}

	index := make(map[string]*group)
	var order []*group

	for _, row := range rows {
		key := a.groupKey(row)
		g, ok := index[key]
		if !ok {
			g = &group{
				row:    make(store.Row),
				sums:   make(map[string]float64),
				seen:   make(map[string]bool),
				counts: make(map[string]int),
			}
			for _, col := range a.GroupBy {
				g.row[col] = row[col]
			}
			for _, col := range a.First {
				g.row[col] = row[col]
			}
			index[key] = g
			order = append(order, g)
		}

		for _, col := range a.Sum {
			if f, ok := row[col].(float64); ok {
				g.sums[col] += f
				g.seen[col] = true
			}
		}
		for _, col := range a.Mean {
			if f, ok := row[col].(float64); ok {
				g.sums[col] += f
				g.counts[col]++
			}
		}
		for _, col := range a.First {
			if g.row[col] == nil {
				g.row[col] = row[col]
			}
		}
	}

	out := make([]store.Row, 0, len(order))
	for _, g := range order {
		for _, col := range a.Sum {
			if g.seen[col] {
				g.row[col] = g.sums[col]
			} else {
				g.row[col] = nil
			}
		}
		for _, col := range a.Mean {
			if n := g.counts[col]; n > 0 {
				g.row[col] = g.sums[col] / float64(n)
			} else {
				g.row[col] = nil
			}
		}
		out = append(out, g.row)
	}
	return out
}

func (a *Aggregation) groupKey(row store.Row) string {
	parts := make([]string, 0, len(a.GroupBy))
	for _, col := range a.GroupBy {
		parts = append(parts, groupValue(row[col]))
	}
	return strings.Join(parts, "|")
}

func groupValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05")
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
