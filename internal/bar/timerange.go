package bar

// TimeRange is a half-open interval [Start, End) of Timestamps.
type TimeRange struct {
	Start Timestamp
	End   Timestamp
}

// NewTimeRange builds a TimeRange. The caller is responsible for Start <= End;
// an inverted range simply contains nothing and overlaps nothing.
func NewTimeRange(start, end Timestamp) TimeRange {
	return TimeRange{Start: start, End: end}
}

// SingleDay returns the TimeRange spanning exactly one UTC trading date.
func SingleDay(d TradingDate) TimeRange {
	start := d.StartOfDay()
	end := d.AddDays(1).StartOfDay()
	return TimeRange{Start: start, End: end}
}

// Contains reports whether ts falls in [Start, End).
func (r TimeRange) Contains(ts Timestamp) bool {
	return !ts.Before(r.Start) && ts.Before(r.End)
}

// Overlaps reports whether r and other share any instant.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// DurationSeconds returns the range's length in seconds.
func (r TimeRange) DurationSeconds() float64 {
	return r.End.Sub(r.Start).Seconds()
}

// Days enumerates the UTC trading dates the range spans, inclusive of the
// start date, exclusive of End when End falls exactly on a day boundary
// (consistent with the half-open contract).
func (r TimeRange) Days() []TradingDate {
	if !r.Start.Before(r.End) {
		return nil
	}
	var days []TradingDate
	cur := r.Start.TradingDate()
	endExclusive := r.End.Add(-1).TradingDate() // End is exclusive; last included instant is End-1ns
	for {
		days = append(days, cur)
		if !cur.Before(endExclusive) {
			break
		}
		cur = cur.AddDays(1)
	}
	return days
}
