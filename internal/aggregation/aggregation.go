// Package aggregation derives 5m/15m/1h/1d bars from a job's 1-minute
// partitions, bucketing by UTC-aligned windows and writing results through
// the same ColumnarWriter contract used for ingestion.
package aggregation

import (
	"sort"
	"time"

	"github.com/marketpipe/marketpipe/internal/bar"
)

// Frame is an output aggregation window.
type Frame string

const (
	Frame5Min  Frame = "5m"
	Frame15Min Frame = "15m"
	Frame1Hour Frame = "1h"
	Frame1Day  Frame = "1d"
)

// Frames is every output frame the AggregationEngine derives, in the order
// they are produced.
var Frames = []Frame{Frame5Min, Frame15Min, Frame1Hour, Frame1Day}

func (f Frame) duration() time.Duration {
	switch f {
	case Frame5Min:
		return 5 * time.Minute
	case Frame15Min:
		return 15 * time.Minute
	case Frame1Hour:
		return time.Hour
	case Frame1Day:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Bucket aggregates bars into a UTC-aligned window, sorted ascending by
// timestamp before bucketing. Each bucket's bar is constructed from its
// constituent bars via NewOHLCVBar, so the OHLC invariant is re-checked on
// every aggregated output, not just the 1-minute inputs.
//
// Buckets with zero constituent bars never appear (there is nothing to
// range over); partial buckets at the start or end of the input are
// emitted as long as they contain at least one bar.
func Bucket(bars []bar.OHLCVBar, frame Frame) ([]bar.OHLCVBar, error) {
	d := frame.duration()
	if d == 0 {
		return nil, nil
	}

	sorted := make([]bar.OHLCVBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.UnixNano() < sorted[j].Timestamp.UnixNano()
	})

	buckets := make(map[int64][]bar.OHLCVBar)
	var order []int64
	for _, b := range sorted {
		start := b.Timestamp.Truncate(d).UnixNano()
		if _, ok := buckets[start]; !ok {
			order = append(order, start)
		}
		buckets[start] = append(buckets[start], b)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]bar.OHLCVBar, 0, len(order))
	for _, start := range order {
		members := buckets[start]
		agg, err := bucketBar(members, start)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func bucketBar(members []bar.OHLCVBar, startNs int64) (bar.OHLCVBar, error) {
	open := members[0].Open
	closeP := members[len(members)-1].Close
	high := members[0].High
	low := members[0].Low
	volume := members[0].Volume
	for _, m := range members[1:] {
		high = bar.Max(high, m.High)
		low = bar.Min(low, m.Low)
		volume = volume.Add(m.Volume)
	}

	return bar.NewOHLCVBar(bar.NewBarParams{
		Symbol:    members[0].Symbol,
		Timestamp: bar.TimestampFromNanos(startNs),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	})
}
