package ccb

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIMESTAMPS - Day-first wall clock in one configured zone
// =============================================================================

// TimestampLayout is how createdAt is written to the ledger.
const TimestampLayout = "02/01/2006 15:04:05"

// MonthKeyLayout renders the MM/YYYY bucket.
const MonthKeyLayout = "01/2006"

// Accepted on read, in order. Day-first always wins over month-first.
// Day, month and hour take one or two digits.
var timestampLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp reads a ledger timestamp as wall-clock time in loc.
// RFC 3339 values carry their own offset and are converted into loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp writes t as the ledger expects, in loc.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}

// MonthKey returns the MM/YYYY bucket of the case's createdAt. Cases without
// a parseable createdAt have no bucket.
func MonthKey(c Case) (string, bool) {
	if !c.HasCreatedAt() {
		return "", false
	}
	return c.CreatedAt.Format(MonthKeyLayout), true
}

// ParseMonthKey accepts "MM/YYYY" or "M/YYYY" (and the "-" forms for URLs).
func ParseMonthKey(key string) (time.Month, int, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "-", "/")
	t, err := time.Parse("1/2006", key)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q: want MM/YYYY", ErrInvalidInput, key)
	}
	return t.Month(), t.Year(), nil
}

// =============================================================================
// PERIOD - Inclusive reporting window
// =============================================================================

// Period is the closed interval [Start, End].
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + "]"
}

// DayPeriod covers whole calendar days in loc: from the first instant of
// from to the last instant of to.
func DayPeriod(from, to time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	from, to = from.In(loc), to.In(loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
	return Period{Start: start, End: end}
}

// MonthPeriod covers one calendar month in loc.
func MonthPeriod(month time.Month, year int, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}
