package entity

import (
	"time"

	"github.com/southbay-capital/fundsync/internal/api"
	"github.com/southbay-capital/fundsync/internal/merge"
)

// Definition describes one ingested entity.
type Definition struct {
	// Name is the table the entity is persisted into.
	Name string

	// Endpoint and PayloadKey locate the entity's data upstream.
	Endpoint   string
	PayloadKey string

	// SingleShot endpoints return everything on page zero.
	SingleShot bool

	// FlattenNested JSON-encodes nested values in the fetcher.
	FlattenNested bool

	// KeepObjectKey preserves map-payload object keys; see
	// api.ObjectKeyField.
	KeepObjectKey bool

	// IdentityFields drive fetch-time deduplication.
	IdentityFields []string

	// RequiredColumns must be present somewhere in the batch; a batch
	// missing one aborts without inserting (schema drift guard).
	RequiredColumns []string

	// Columns is the projection, in table order. Columns absent from
	// the whole batch are dropped rather than stored as all-NULL.
	Columns []string

	// Column classes for coercion.
	NumericColumns []string
	DateColumns    []string
	IntColumns     []string

	// NonNullColumn drops rows where the named column is NULL after
	// coercion.
	NonNullColumn string

	// Key deduplicates the table across runs.
	Key merge.Key

	// BatchMonthEnds enumerates month ends instead of business days
	// in batch runs.
	BatchMonthEnds bool

	// DefaultPrevMonthEnd selects the last trading day of the
	// previous month as the default run date instead of the previous
	// trading day.
	DefaultPrevMonthEnd bool

	// BuildFilter renders the request filter for one run date.
	BuildFilter func(date time.Time) map[string]any

	// PostProcess adjusts one raw record before projection.
	PostProcess func(rec api.Record)

	// Filter drops raw records returning false.
	Filter func(rec api.Record) bool

	// Expand replaces the fetched records with derived ones, for
	// payloads that arrive as containers rather than rows.
	Expand func(recs []api.Record) []api.Record

	// Aggregate groups normalized rows before merging.
	Aggregate *Aggregation

	// Children are dimension projections persisted alongside the
	// entity.
	Children []Derived
}

// Derived is a dimension table projected from a parent entity's rows.
type Derived struct {
	Name     string
	Columns  []string
	IDColumn string
}

// FetchOptions renders the fetcher options for this entity.
func (d *Definition) FetchOptions() api.FetchOptions {
	return api.FetchOptions{
		PayloadKey:     d.PayloadKey,
		IdentityFields: d.IdentityFields,
		SingleShot:     d.SingleShot,
		FlattenNested:  d.FlattenNested,
		KeepObjectKey:  d.KeepObjectKey,
	}
}

// Key of a derived dimension: id-keyed against the whole table.
func (c Derived) Key() merge.Key {
	return merge.Key{IDColumn: c.IDColumn}
}

// Validate reports the required columns absent from the whole batch.
func (d *Definition) Validate(recs []api.Record) []string {
	present := make(map[string]struct{})
	for _, rec := range recs {
		for k := range rec {
			present[k] = struct{}{}
		}
	}

	var missing []string
	for _, col := range d.RequiredColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}
