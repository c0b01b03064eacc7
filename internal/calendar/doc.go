// Package calendar implements the B3 (São Paulo) trading calendar.
//
// The calendar is built from a static table of holiday rules (fixed
// dates, Easter-relative offsets, rules limited to a date window or a
// single year) and answers business-day questions: previous trading
// day, first/last trading day of a month, N-months-back month-end
// lookups, and business-day enumeration over a range. It performs no
// I/O and is safe for concurrent use.
package calendar
