// Package entity declares the ingested entities and normalizes their
// raw API records into relational rows.
//
// Each entity is a Definition: where its data comes from, which
// columns it keeps, how values are coerced, and under which key its
// table is deduplicated. Coercion never fails; a value that cannot be
// read as its column's type becomes NULL.
package entity
