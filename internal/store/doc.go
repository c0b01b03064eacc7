// Package store provides PostgreSQL persistence for ingested entity
// tables.
//
// Tables are created on first write from the shape of the incoming
// batch, so a fresh database needs no migration step. All writes are
// append-only; deduplication happens upstream in the merge layer.
package store
