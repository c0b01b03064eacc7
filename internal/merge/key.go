package merge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/southbay-capital/fundsync/internal/store"
)

// Key declares how rows of one table are identified for deduplication.
// Exactly one of IDColumn or Columns is set.
type Key struct {
	// IDColumn is the surrogate id column of an id-keyed table.
	IDColumn string

	// Columns form a composite business key, joined in order.
	Columns []string

	// RoundColumns are key columns rounded to two decimal places
	// before comparison, so that float formatting differences between
	// the source and the database never split a key.
	RoundColumns []string

	// DateColumn scopes existing-row reads to the run date. Empty
	// means the key is checked against the whole table.
	DateColumn string
}

// Of assembles the dedup key of one row.
func (k Key) Of(row store.Row) string {
	if k.IDColumn != "" {
		return formatKeyValue(row[k.IDColumn])
	}

	parts := make([]string, 0, len(k.Columns))
	for _, col := range k.Columns {
		v := row[col]
		if k.rounded(col) {
			parts = append(parts, roundedKeyValue(v))
			continue
		}
		parts = append(parts, formatKeyValue(v))
	}
	return strings.Join(parts, "|")
}

func (k Key) rounded(col string) bool {
	for _, r := range k.RoundColumns {
		if r == col {
			return true
		}
	}
	return false
}

// formatKeyValue renders a value so that the same logical value always
// produces the same string, whether it came from the API decoder or
// from a database read.
func formatKeyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(t)
	}
}

// roundedKeyValue renders a numeric value at fixed two decimal places.
// Values that do not parse as numbers fall back to plain formatting.
func roundedKeyValue(v any) string {
	var d decimal.Decimal
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		d = decimal.NewFromFloat(t)
	case int64:
		d = decimal.NewFromInt(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return t
		}
		d = parsed
	default:
		return formatKeyValue(v)
	}
	return d.StringFixed(2)
}
