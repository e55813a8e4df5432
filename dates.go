package main

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DateLayout is the display format events are stored and rendered with,
// e.g. "Dec 12, 2025".
const DateLayout = "Jan 2, 2006"

var monthTable = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// DateOnly is a calendar day pinned to local midnight. Comparisons between
// two DateOnly values compare whole days.
type DateOnly struct {
	time.Time
}

func NewDateOnly(year int, month time.Month, day int) DateOnly {
	return DateOnly{time.Date(year, month, day, 0, 0, 0, 0, time.Local)}
}

func DateOnlyFromTime(t time.Time) DateOnly {
	return NewDateOnly(t.Year(), t.Month(), t.Day())
}

// Today returns the current local calendar day.
func Today() DateOnly {
	return DateOnlyFromTime(time.Now())
}

func (d DateOnly) AddMonths(n int) DateOnly {
	t := d.Time.AddDate(0, n, 0)
	return DateOnlyFromTime(t)
}

func (d DateOnly) Before(other DateOnly) bool { return d.Time.Before(other.Time) }
func (d DateOnly) After(other DateOnly) bool  { return d.Time.After(other.Time) }

func (d DateOnly) String() string {
	return d.Format(DateLayout)
}

// ParseFlexibleDate normalizes the date representations the mobile clients
// have historically produced: epoch seconds, display strings like
// "December 12, 2025" or "dec 12 2025", RFC3339 timestamps, and plain
// "2006-01-02". The boolean is false when the value cannot be understood;
// an empty value is never reported as a valid zero day.
func ParseFlexibleDate(v any) (DateOnly, bool) {
	switch val := v.(type) {
	case nil:
		return DateOnly{}, false
	case DateOnly:
		if val.IsZero() {
			return DateOnly{}, false
		}
		return val, true
	case *DateOnly:
		if val == nil || val.IsZero() {
			return DateOnly{}, false
		}
		return *val, true
	case time.Time:
		if val.IsZero() {
			return DateOnly{}, false
		}
		return DateOnlyFromTime(val), true
	case int:
		return fromEpochSeconds(int64(val))
	case int64:
		return fromEpochSeconds(val)
	case float64:
		return fromEpochSeconds(int64(val))
	case string:
		return parseDateString(val)
	default:
		return DateOnly{}, false
	}
}

func fromEpochSeconds(sec int64) (DateOnly, bool) {
	if sec <= 0 {
		return DateOnly{}, false
	}
	return DateOnlyFromTime(time.Unix(sec, 0)), true
}

func parseDateString(s string) (DateOnly, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateOnly{}, false
	}

	// "<Month> <Day>, <Year>" with the comma optional and the month name
	// matched by its first three letters, case-insensitive.
	parts := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(parts) == 3 {
		key := strings.ToLower(parts[0])
		if len(key) >= 3 {
			key = key[:3]
		}
		month, monthOK := monthTable[key]
		day, dayErr := strconv.Atoi(parts[1])
		year, yearErr := strconv.Atoi(parts[2])
		if monthOK && dayErr == nil && yearErr == nil && day >= 1 && day <= 31 {
			return NewDateOnly(year, month, day), true
		}
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOnlyFromTime(t), true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return DateOnlyFromTime(t), true
	}
	return DateOnly{}, false
}

// ----- JSON -----

func (d DateOnly) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

func (d *DateOnly) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = DateOnly{}
		return nil
	}
	parsed, ok := parseDateString(s)
	if !ok {
		return fmt.Errorf("unrecognized date %q (use %q)", s, DateLayout)
	}
	*d = parsed
	return nil
}

// ----- database/sql -----

func (d DateOnly) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *DateOnly) Scan(src any) error {
	switch val := src.(type) {
	case nil:
		*d = DateOnly{}
		return nil
	case string:
		return d.scanString(val)
	case []byte:
		return d.scanString(string(val))
	case time.Time:
		*d = DateOnlyFromTime(val)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into DateOnly", src)
	}
}

func (d *DateOnly) scanString(s string) error {
	if s == "" {
		*d = DateOnly{}
		return nil
	}
	parsed, ok := parseDateString(s)
	if !ok {
		// A corrupt stored date must not fail the whole query. Scan it as
		// the zero date, which the classifier excludes from every bucket.
		log.Warn().Str("stored_date", s).Msg("unparseable stored date, treating as unset")
		*d = DateOnly{}
		return nil
	}
	*d = parsed
	return nil
}
