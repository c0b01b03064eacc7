package api

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Record is one raw item from a page response, prior to normalization.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FlattenNested JSON-encodes map- and slice-valued fields so that a
// record can be stored in flat relational columns. Empty containers
// become nil.
func FlattenNested(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		switch t := v.(type) {
		case map[string]any:
			out[k] = encodeOrNil(t, len(t))
		case []any:
			out[k] = encodeOrNil(t, len(t))
		default:
			out[k] = v
		}
	}
	return out
}

func encodeOrNil(v any, n int) any {
	if n == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

// formatValue renders a field value for identity purposes. Numbers use
// the shortest exact representation so that equal values compare equal
// regardless of how the decoder produced them.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// sortedKeys returns the record's field names in ascending order.
func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
