package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/southbay-capital/fundsync/internal/api"
	"github.com/southbay-capital/fundsync/internal/calendar"
	"github.com/southbay-capital/fundsync/internal/entity"
	"github.com/southbay-capital/fundsync/internal/merge"
	"github.com/southbay-capital/fundsync/internal/store"
)

// Fetcher is the API surface a run needs. *api.Client satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, endpoint string, filter map[string]any, opts api.FetchOptions) ([]api.Record, error)
}

// Driver runs entity ingestions.
type Driver struct {
	client Fetcher
	merger *merge.Merger
	cal    *calendar.Calendar
	logger *slog.Logger

	// pageSize overrides the fetcher's per_page when positive.
	pageSize int

	// delay is the pause between dates in a batch run, to stay polite
	// with the upstream.
	delay time.Duration
}

// New creates a Driver.
func New(client Fetcher, merger *merge.Merger, cal *calendar.Calendar, pageSize int, delay time.Duration, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		client:   client,
		merger:   merger,
		cal:      cal,
		logger:   logger,
		pageSize: pageSize,
		delay:    delay,
	}
}

// DefaultDate returns the date an entity ingests when none is given:
// the previous trading day, or the last trading day of the previous
// month for month-end entities.
func (d *Driver) DefaultDate(def *entity.Definition, now time.Time) time.Time {
	if def.DefaultPrevMonthEnd {
		return d.cal.LastTradingDayOfMonthOffset(now, 1)
	}
	return d.cal.PreviousTradingDay(now)
}

// Run ingests one entity for one date.
func (d *Driver) Run(ctx context.Context, date time.Time, def *entity.Definition) error {
	dateStr := date.Format(calendar.DateFormat)
	logger := d.logger.With(
		"run_id", uuid.New().String(),
		"entity", def.Name,
		"date", dateStr,
	)
	logger.Info("starting run")

	opts := def.FetchOptions()
	opts.PageSize = d.pageSize

	recs, err := d.client.FetchAll(ctx, def.Endpoint, def.BuildFilter(date), opts)
	if err != nil {
		return fmt.Errorf("run %s for %s: %w", def.Name, dateStr, err)
	}
	if len(recs) == 0 {
		// Nothing fetched is not the same as nothing exists; leave
		// the table untouched.
		logger.Info("no data fetched")
		return nil
	}

	if def.Expand != nil {
		recs = def.Expand(recs)
	}
	if def.Filter != nil {
		kept := recs[:0]
		for _, rec := range recs {
			if def.Filter(rec) {
				kept = append(kept, rec)
			}
		}
		logger.Info("filtered records", "kept", len(kept), "dropped", len(recs)-len(kept))
		recs = kept
	}
	if len(recs) == 0 {
		logger.Info("no records left after filtering")
		return nil
	}

	if missing := def.Validate(recs); len(missing) > 0 {
		logger.Warn("required columns missing, skipping", "missing", missing)
		return nil
	}

	rows, columns := def.Normalize(recs)
	if def.Aggregate != nil {
		before := len(rows)
		rows = def.Aggregate.Apply(rows)
		logger.Info("aggregated rows", "before", before, "after", len(rows))
	}
	if len(rows) == 0 {
		logger.Info("no valid rows to persist")
		return nil
	}

	report, err := d.merger.Merge(ctx, def.Name, columns, rows, def.Key)
	if err != nil {
		return fmt.Errorf("run %s for %s: %w", def.Name, dateStr, err)
	}
	logger.Info("merged batch",
		"table", def.Name,
		"inserted", report.Inserted,
		"duplicates_skipped", report.DuplicatesSkipped,
		"internal_collapsed", report.InternalCollapsed,
		"table_created", report.TableCreated,
	)

	for _, child := range def.Children {
		if err := d.mergeChild(ctx, child, rows, logger); err != nil {
			return fmt.Errorf("run %s for %s: %w", def.Name, dateStr, err)
		}
	}

	return nil
}

// mergeChild projects and merges one dimension table from the parent
// rows.
func (d *Driver) mergeChild(ctx context.Context, child entity.Derived, rows []store.Row, logger *slog.Logger) error {
	childRows := make([]store.Row, 0, len(rows))
	for _, row := range rows {
		if row[child.IDColumn] == nil {
			continue
		}
		projected := make(store.Row, len(child.Columns))
		for _, col := range child.Columns {
			projected[col] = row[col]
		}
		childRows = append(childRows, projected)
	}
	if len(childRows) == 0 {
		return nil
	}

	report, err := d.merger.Merge(ctx, child.Name, child.Columns, childRows, child.Key())
	if err != nil {
		return err
	}
	logger.Info("merged dimension",
		"table", child.Name,
		"inserted", report.Inserted,
		"duplicates_skipped", report.DuplicatesSkipped,
	)
	return nil
}

// RunAll ingests every registered entity for one date. Entities fail
// independently; the joined error reports every failure.
func (d *Driver) RunAll(ctx context.Context, date time.Time) error {
	var errs []error
	for _, def := range entity.Definitions() {
		if err := d.Run(ctx, date, def); err != nil {
			d.logger.Error("entity run failed", "entity", def.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Batch ingests one entity for every business day in [from, to].
func (d *Driver) Batch(ctx context.Context, from, to time.Time, def *entity.Definition) error {
	return d.batch(ctx, d.cal.BusinessDaysInRange(from, to), def)
}

// BatchMonthEnds ingests one entity for the last trading day of every
// month in [from, to].
func (d *Driver) BatchMonthEnds(ctx context.Context, from, to time.Time, def *entity.Definition) error {
	return d.batch(ctx, d.cal.MonthEndsInRange(from, to), def)
}

func (d *Driver) batch(ctx context.Context, dates []time.Time, def *entity.Definition) error {
	d.logger.Info("starting batch", "entity", def.Name, "dates", len(dates))

	failed := 0
	for i, date := range dates {
		if err := d.runIsolated(ctx, date, def); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d.logger.Error("date failed, continuing batch",
				"entity", def.Name,
				"date", date.Format(calendar.DateFormat),
				"error", err,
			)
			failed++
		}

		if i < len(dates)-1 && d.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.delay):
			}
		}
	}

	d.logger.Info("batch finished", "entity", def.Name, "dates", len(dates), "failed", failed)
	return nil
}

// runIsolated runs one date, converting a panic into an error so a
// poisoned date cannot take down the batch.
func (d *Driver) runIsolated(ctx context.Context, date time.Time, def *entity.Definition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s for %s: %v",
				def.Name, date.Format(calendar.DateFormat), r)
		}
	}()
	return d.Run(ctx, date, def)
}
