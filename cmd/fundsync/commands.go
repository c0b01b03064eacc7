package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/subcommands"

	"github.com/southbay-capital/fundsync/internal/calendar"
	"github.com/southbay-capital/fundsync/internal/driver"
	"github.com/southbay-capital/fundsync/internal/entity"
)

// ingestCmd runs one entity for a single date or a date range.
type ingestCmd struct {
	name     string
	synopsis string
	def      *entity.Definition
	drv      *driver.Driver
	logger   *slog.Logger

	date string
	from string
	to   string
}

func newIngestCmd(name, synopsis string, def *entity.Definition, drv *driver.Driver, logger *slog.Logger) *ingestCmd {
	return &ingestCmd{
		name:     name,
		synopsis: synopsis,
		def:      def,
		drv:      drv,
		logger:   logger,
	}
}

func (c *ingestCmd) Name() string     { return c.name }
func (c *ingestCmd) Synopsis() string { return c.synopsis }

func (c *ingestCmd) Usage() string {
	return fmt.Sprintf("%s [-date YYYY-MM-DD | -from YYYY-MM-DD -to YYYY-MM-DD]:\n  %s\n", c.name, c.synopsis)
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "run date (default: the entity's default date rule)")
	f.StringVar(&c.from, "from", "", "batch start date, inclusive")
	f.StringVar(&c.to, "to", "", "batch end date, inclusive")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if c.from != "" || c.to != "" {
		return c.executeBatch(ctx)
	}

	date, err := c.resolveDate()
	if err != nil {
		c.logger.Error("invalid date", "error", err)
		return subcommands.ExitUsageError
	}

	if err := c.drv.Run(ctx, date, c.def); err != nil {
		c.logger.Error("run failed", "entity", c.def.Name, "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *ingestCmd) executeBatch(ctx context.Context) subcommands.ExitStatus {
	if c.from == "" || c.to == "" {
		c.logger.Error("batch mode needs both -from and -to")
		return subcommands.ExitUsageError
	}
	from, err := time.Parse(calendar.DateFormat, c.from)
	if err != nil {
		c.logger.Error("invalid -from date", "error", err)
		return subcommands.ExitUsageError
	}
	to, err := time.Parse(calendar.DateFormat, c.to)
	if err != nil {
		c.logger.Error("invalid -to date", "error", err)
		return subcommands.ExitUsageError
	}

	if c.def.BatchMonthEnds {
		err = c.drv.BatchMonthEnds(ctx, from, to, c.def)
	} else {
		err = c.drv.Batch(ctx, from, to, c.def)
	}
	if err != nil {
		c.logger.Error("batch failed", "entity", c.def.Name, "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *ingestCmd) resolveDate() (time.Time, error) {
	if c.date == "" {
		return c.drv.DefaultDate(c.def, time.Now().UTC()), nil
	}
	return time.Parse(calendar.DateFormat, c.date)
}

// allCmd runs every registered entity for one date.
type allCmd struct {
	drv    *driver.Driver
	logger *slog.Logger

	date string
}

func (c *allCmd) Name() string     { return "all" }
func (c *allCmd) Synopsis() string { return "ingest every entity for one date" }

func (c *allCmd) Usage() string {
	return "all [-date YYYY-MM-DD]:\n  ingest every entity for one date\n"
}

func (c *allCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "run date (default: previous trading day)")
}

func (c *allCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	var date time.Time
	if c.date == "" {
		date = calendar.NewB3().PreviousTradingDay(time.Now().UTC())
	} else {
		parsed, err := time.Parse(calendar.DateFormat, c.date)
		if err != nil {
			c.logger.Error("invalid date", "error", err)
			return subcommands.ExitUsageError
		}
		date = parsed
	}

	if err := c.drv.RunAll(ctx, date); err != nil {
		c.logger.Error("one or more entities failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
