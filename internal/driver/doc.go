// Package driver orchestrates ingestion runs: fetch, normalize, merge,
// one entity and one date at a time.
//
// Batch runs enumerate dates from the trading calendar and isolate
// each date, so a failing date is logged and skipped rather than
// aborting the rest of the batch.
package driver
