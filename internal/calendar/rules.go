package calendar

import "time"

// Rule describes one holiday. A rule is either a fixed month/day or an
// offset in days from Easter Sunday. Optionally it applies only inside
// the [From, Until) window, or only in a single year.
type Rule struct {
	Name string

	// Fixed-date rules.
	Month time.Month
	Day   int

	// Easter-relative rules. Offset is in days from Easter Sunday;
	// used when EasterBased is true.
	EasterBased bool
	Offset      int

	// Year restricts the rule to a single year when non-zero.
	Year int

	// From and Until bound the rule's validity. Zero values mean
	// unbounded. Until is exclusive.
	From  time.Time
	Until time.Time
}

// Evaluate returns the holiday's date in the given year and whether the
// rule is active for that year.
func (r Rule) Evaluate(year int) (time.Time, bool) {
	if r.Year != 0 && r.Year != year {
		return time.Time{}, false
	}

	var d time.Time
	if r.EasterBased {
		d = easter(year).AddDate(0, 0, r.Offset)
	} else {
		d = time.Date(year, r.Month, r.Day, 0, 0, 0, 0, time.UTC)
	}

	if !r.From.IsZero() && d.Before(r.From) {
		return time.Time{}, false
	}
	if !r.Until.IsZero() && !d.Before(r.Until) {
		return time.Time{}, false
	}
	return d, true
}

// B3Rules is the default holiday rule set for the São Paulo exchange.
// Constitutionalist Revolution day was observed only until 2020, and
// the exchange closed for the World Cup opening in 2014.
var B3Rules = []Rule{
	{Name: "New Year's Day", Month: time.January, Day: 1},
	{Name: "Carnival Monday", EasterBased: true, Offset: -48},
	{Name: "Carnival Tuesday", EasterBased: true, Offset: -47},
	{Name: "Good Friday", EasterBased: true, Offset: -2},
	{Name: "Corpus Christi", EasterBased: true, Offset: 60},
	{Name: "Tiradentes", Month: time.April, Day: 21},
	{Name: "Labour Day", Month: time.May, Day: 1},
	{
		Name:  "Constitutionalist Revolution",
		Month: time.July, Day: 9,
		From:  time.Date(1998, time.January, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
	},
	{Name: "Independence Day", Month: time.September, Day: 7},
	{Name: "World Cup Opening", Month: time.June, Day: 12, Year: 2014},
	{Name: "Our Lady of Aparecida", Month: time.October, Day: 12},
	{Name: "All Souls' Day", Month: time.November, Day: 2},
	{Name: "Republic Proclamation", Month: time.November, Day: 15},
	{Name: "Christmas Eve", Month: time.December, Day: 24},
	{Name: "Christmas", Month: time.December, Day: 25},
}

// easter returns Easter Sunday for the given year using the anonymous
// Gregorian computus.
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
