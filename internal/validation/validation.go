// Package validation applies the bar-sequence quality rules to a completed
// job's 1-minute bars and writes a per-symbol CSV audit report.
package validation

import (
	"fmt"

	"github.com/marketpipe/marketpipe/internal/bar"
)

// Severity classifies a BarError. Every rule in this package raises Error;
// the type exists so downstream consumers (reports, metrics) can
// distinguish hard violations from advisories without a second pass.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// BarError is one rule violation found while validating a symbol's bar
// sequence.
type BarError struct {
	TimestampNs int64
	Reason      string
	Severity    Severity
}

// Result is the outcome of validating one symbol's bar sequence.
type Result struct {
	Symbol            bar.Symbol
	TotalBarsExamined int
	Errors            []BarError
}

// IsValid reports whether the symbol's bar sequence had no violations.
func (r Result) IsValid() bool { return len(r.Errors) == 0 }

const nanosPerMinute = int64(60e9)

// extremeMoveThreshold is the maximum fractional open-vs-previous-close
// move before a bar is flagged, evaluated between each consecutive pair of
// bars in a symbol's sorted sequence (not against a rolling average).
const extremeMoveThreshold = 0.5

// Validate applies the ordered rule set to bars, which must already be
// sorted ascending by timestamp (the same order ColumnarWriter persists
// them in). Every violation is recorded against the zero-based index of
// the offending bar within bars.
func Validate(symbol bar.Symbol, bars []bar.OHLCVBar) Result {
	result := Result{Symbol: symbol, TotalBarsExamined: len(bars)}

	var prevClose bar.Price
	var havePrev bool
	var prevTs int64
	var haveTs bool

	for i, b := range bars {
		if reason, ok := checkOHLCInvariant(b, i); ok {
			result.Errors = append(result.Errors, barError(b, reason))
		}
		if reason, ok := checkPositivePrices(b, i); ok {
			result.Errors = append(result.Errors, barError(b, reason))
		}
		if reason, ok := checkNonNegativeVolume(b, i); ok {
			result.Errors = append(result.Errors, barError(b, reason))
		}
		if haveTs {
			if reason, ok := checkMonotoneTimestamp(b, prevTs, i); ok {
				result.Errors = append(result.Errors, barError(b, reason))
			}
		}
		if reason, ok := checkMinuteAlignment(b, i); ok {
			result.Errors = append(result.Errors, barError(b, reason))
		}
		if havePrev {
			if reason, ok := checkExtremeMove(b, prevClose, i); ok {
				result.Errors = append(result.Errors, barError(b, reason))
			}
		}

		prevClose, havePrev = b.Close, true
		prevTs, haveTs = b.Timestamp.UnixNano(), true
	}

	return result
}

func barError(b bar.OHLCVBar, reason string) BarError {
	return BarError{
		TimestampNs: b.Timestamp.UnixNano(),
		Reason:      reason,
		Severity:    SeverityError,
	}
}

func checkOHLCInvariant(b bar.OHLCVBar, index int) (string, bool) {
	maxOCL := bar.Max(b.Open, b.Close, b.Low)
	if b.High.Compare(maxOCL) < 0 {
		return fmt.Sprintf("ohlc invariant at index %d: high %s < max(open,close,low) %s", index, b.High, maxOCL), true
	}
	minOCH := bar.Min(b.Open, b.Close, b.High)
	if b.Low.Compare(minOCH) > 0 {
		return fmt.Sprintf("ohlc invariant at index %d: low %s > min(open,close,high) %s", index, b.Low, minOCH), true
	}
	return "", false
}

func checkPositivePrices(b bar.OHLCVBar, index int) (string, bool) {
	if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
		return fmt.Sprintf("non-positive price at index %d: o=%s h=%s l=%s c=%s", index, b.Open, b.High, b.Low, b.Close), true
	}
	return "", false
}

func checkNonNegativeVolume(b bar.OHLCVBar, index int) (string, bool) {
	if b.Volume.Int64() < 0 {
		return fmt.Sprintf("negative volume at index %d: %d", index, b.Volume.Int64()), true
	}
	return "", false
}

func checkMonotoneTimestamp(b bar.OHLCVBar, prevTs int64, index int) (string, bool) {
	ts := b.Timestamp.UnixNano()
	if ts <= prevTs {
		return fmt.Sprintf("non-monotone timestamp at index %d: %d does not exceed previous %d", index, ts, prevTs), true
	}
	return "", false
}

func checkMinuteAlignment(b bar.OHLCVBar, index int) (string, bool) {
	if b.Timestamp.UnixNano()%nanosPerMinute != 0 {
		return fmt.Sprintf("minute alignment at index %d: timestamp %d is not minute-aligned", index, b.Timestamp.UnixNano()), true
	}
	return "", false
}

func checkExtremeMove(b bar.OHLCVBar, prevClose bar.Price, index int) (string, bool) {
	if prevClose.IsZero() {
		return "", false
	}
	ratio := b.Open.AbsDiffRatio(prevClose)
	if ratio > extremeMoveThreshold {
		return fmt.Sprintf("extreme price movement at index %d: %.1f%%", index, ratio*100), true
	}
	return "", false
}
