package api

import (
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Identity derives the deduplication identity of a record. Records with
// equal identities are the same logical record even when they appear on
// different pages.
//
// The key is two tier: if any of the declared identity fields are
// present, the key is the ordered field:value join over those that are;
// otherwise it falls back to a digest of the whole record's canonical
// (sorted key) serialization, so that field order never matters.
func Identity(rec Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			parts = append(parts, f+":"+formatValue(v))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "|")
	}
	return canonicalDigest(rec)
}

func canonicalDigest(rec Record) string {
	h := xxhash.New()
	for _, k := range sortedKeys(rec) {
		h.WriteString(k)
		h.WriteString("=")
		h.WriteString(formatValue(rec[k]))
		h.WriteString(";")
	}
	return hex.EncodeToString(h.Sum(nil))
}
