package bar

import "time"

// Timestamp is a UTC instant at nanosecond precision. Constructing one from
// a naive (non-UTC) time.Time coerces it to UTC rather than rejecting it,
// matching the spec's "coerced to UTC" rule.
type Timestamp struct {
	t time.Time
}

// NewTimestamp coerces t to UTC and wraps it.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

// TimestampFromNanos builds a Timestamp from nanoseconds since the Unix epoch.
func TimestampFromNanos(ns int64) Timestamp {
	return Timestamp{t: time.Unix(0, ns).UTC()}
}

// Now returns the current instant.
func Now() Timestamp { return NewTimestamp(time.Now()) }

// Time returns the underlying UTC time.Time.
func (ts Timestamp) Time() time.Time { return ts.t }

// UnixNano returns nanoseconds since the Unix epoch.
func (ts Timestamp) UnixNano() int64 { return ts.t.UnixNano() }

// ISO8601 renders the timestamp as an RFC3339Nano string.
func (ts Timestamp) ISO8601() string { return ts.t.Format(time.RFC3339Nano) }

// TradingDate returns the UTC calendar date this timestamp falls on, used
// as the partition key throughout the pipeline.
func (ts Timestamp) TradingDate() TradingDate {
	y, m, d := ts.t.Date()
	return TradingDate{year: y, month: m, day: d}
}

// Before reports ts < other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// After reports ts > other.
func (ts Timestamp) After(other Timestamp) bool { return ts.t.After(other.t) }

// Equal reports ts == other.
func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

// Add returns ts shifted by d.
func (ts Timestamp) Add(d time.Duration) Timestamp { return Timestamp{t: ts.t.Add(d)} }

// Sub returns the duration between ts and other.
func (ts Timestamp) Sub(other Timestamp) time.Duration { return ts.t.Sub(other.t) }

// Truncate returns ts floored to the nearest multiple of d, UTC-aligned.
func (ts Timestamp) Truncate(d time.Duration) Timestamp { return Timestamp{t: ts.t.Truncate(d)} }

// TradingDate is the UTC calendar date used as a partition key.
type TradingDate struct {
	year  int
	month time.Month
	day   int
}

// NewTradingDate builds a TradingDate from a calendar date, independent of
// any time-of-day component.
func NewTradingDate(year int, month time.Month, day int) TradingDate {
	return TradingDate{year: year, month: month, day: day}
}

// String renders the date as YYYY-MM-DD, the partition directory segment.
func (d TradingDate) String() string {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// Equal reports whether two trading dates are the same calendar day.
func (d TradingDate) Equal(other TradingDate) bool {
	return d.year == other.year && d.month == other.month && d.day == other.day
}

// StartOfDay returns the Timestamp at 00:00:00 UTC on this date.
func (d TradingDate) StartOfDay() Timestamp {
	return NewTimestamp(time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC))
}

// AddDays returns the TradingDate n days later (n may be negative).
func (d TradingDate) AddDays(n int) TradingDate {
	t := time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	y, m, dd := t.Date()
	return TradingDate{year: y, month: m, day: dd}
}

// Before reports whether d is strictly earlier than other.
func (d TradingDate) Before(other TradingDate) bool {
	return d.StartOfDay().Before(other.StartOfDay())
}

// ParseTradingDate parses a YYYY-MM-DD string, as found in a `date=` partition segment.
func ParseTradingDate(s string) (TradingDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return TradingDate{}, err
	}
	y, m, d := t.Date()
	return TradingDate{year: y, month: m, day: d}, nil
}
