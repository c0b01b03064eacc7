// Package merge implements duplicate-safe, append-only persistence of
// entity batches.
//
// A batch is merged against the rows already in its table under a
// declared key, either a surrogate id column or a composite of
// business columns. Only rows whose key is absent are inserted;
// nothing is ever updated or deleted. Re-merging the same batch is a
// no-op, which makes every ingestion run safe to repeat.
package merge
