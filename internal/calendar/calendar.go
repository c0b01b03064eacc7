package calendar

import "time"

// DateFormat is the wire format for calendar dates.
const DateFormat = "2006-01-02"

// Calendar answers business-day questions for one holiday rule set.
// The zero value is not usable; construct with New or NewB3.
type Calendar struct {
	rules []Rule
}

// NewB3 returns a calendar with the default B3 rule set.
func NewB3() *Calendar {
	return New(B3Rules)
}

// New returns a calendar evaluating the given rules.
func New(rules []Rule) *Calendar {
	return &Calendar{rules: rules}
}

// Normalize truncates t to midnight UTC.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Holidays returns the evaluated holiday dates for one year.
func (c *Calendar) Holidays(year int) []time.Time {
	var out []time.Time
	for _, r := range c.rules {
		if d, ok := r.Evaluate(year); ok {
			out = append(out, d)
		}
	}
	return out
}

// IsBusinessDay reports whether t is neither a weekend day nor a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	t = Normalize(t)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	for _, r := range c.rules {
		if d, ok := r.Evaluate(t.Year()); ok && d.Equal(t) {
			return false
		}
	}
	return true
}

// PreviousTradingDay returns the latest business day strictly before t.
func (c *Calendar) PreviousTradingDay(t time.Time) time.Time {
	d := Normalize(t).AddDate(0, 0, -1)
	for !c.IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the earliest business day strictly after t.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	d := Normalize(t).AddDate(0, 0, 1)
	for !c.IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// FirstTradingDayOfMonth returns the first business day of t's month.
func (c *Calendar) FirstTradingDayOfMonth(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !c.IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// LastTradingDayOfMonth returns the last business day of t's month.
func (c *Calendar) LastTradingDayOfMonth(t time.Time) time.Time {
	// Day zero of the next month is the last day of this month.
	d := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	for !c.IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastTradingDayOfMonthOffset returns the last business day of the
// month monthsBack calendar months before t's month. monthsBack of 0
// is t's own month; 1 is the previous month; 12 the same month one
// year earlier, and so on.
func (c *Calendar) LastTradingDayOfMonthOffset(t time.Time, monthsBack int) time.Time {
	d := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -monthsBack, 0)
	return c.LastTradingDayOfMonth(d)
}

// LastTradingDayOfPreviousYear returns the last business day of the
// year before t's year.
func (c *Calendar) LastTradingDayOfPreviousYear(t time.Time) time.Time {
	return c.LastTradingDayOfMonth(time.Date(t.Year()-1, time.December, 1, 0, 0, 0, 0, time.UTC))
}

// BusinessDaysInRange returns the business days between start and end
// inclusive, in ascending order. The result is empty when end is
// before start.
func (c *Calendar) BusinessDaysInRange(start, end time.Time) []time.Time {
	start, end = Normalize(start), Normalize(end)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// BusinessDaysInMonth returns the business days of one calendar month.
func (c *Calendar) BusinessDaysInMonth(year int, month time.Month) []time.Time {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return c.BusinessDaysInRange(start, end)
}

// MonthEndsInRange returns the last trading day of every month touched
// by the inclusive range, keeping only those that fall inside it.
func (c *Calendar) MonthEndsInRange(start, end time.Time) []time.Time {
	start, end = Normalize(start), Normalize(end)
	var out []time.Time
	cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(end) {
		d := c.LastTradingDayOfMonth(cursor)
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
	return out
}
