package bar

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrBarInvariant is returned when the OHLC/volume invariant is violated at
// construction. It wraps a more specific reason.
var ErrBarInvariant = errors.New("bar: invariant violated")

// OHLCVBar is one OHLCV observation for a symbol over a time bucket. Its
// invariant (high/low bounds, positive prices, non-negative volume) is
// enforced once, at construction; a *Bar that exists is always valid.
type OHLCVBar struct {
	ID         uuid.UUID
	Symbol     Symbol
	Timestamp  Timestamp
	Open       Price
	High       Price
	Low        Price
	Close      Price
	Volume     Volume
	TradeCount *int64 // optional
	VWAP       *Price // optional
}

// NewBarParams carries the raw fields for NewOHLCVBar.
type NewBarParams struct {
	Symbol     Symbol
	Timestamp  Timestamp
	Open       Price
	High       Price
	Low        Price
	Close      Price
	Volume     Volume
	TradeCount *int64
	VWAP       *Price
}

// NewOHLCVBar constructs a bar, enforcing:
//
//	high >= max(open, close, low)
//	low  <= min(open, close, high)
//	open, high, low, close > 0
//	volume >= 0 (guaranteed by the Volume type itself)
//
// Construction fails with ErrBarInvariant if any rule is violated.
func NewOHLCVBar(p NewBarParams) (OHLCVBar, error) {
	if !p.Open.IsPositive() || !p.High.IsPositive() || !p.Low.IsPositive() || !p.Close.IsPositive() {
		return OHLCVBar{}, fmt.Errorf("%w: prices must be positive (o=%s h=%s l=%s c=%s)",
			ErrBarInvariant, p.Open, p.High, p.Low, p.Close)
	}

	maxOCL := Max(p.Open, p.Close, p.Low)
	if p.High.Compare(maxOCL) < 0 {
		return OHLCVBar{}, fmt.Errorf("%w: high %s must be >= max(open,close,low) %s", ErrBarInvariant, p.High, maxOCL)
	}

	minOCH := Min(p.Open, p.Close, p.High)
	if p.Low.Compare(minOCH) > 0 {
		return OHLCVBar{}, fmt.Errorf("%w: low %s must be <= min(open,close,high) %s", ErrBarInvariant, p.Low, minOCH)
	}

	return OHLCVBar{
		ID:         uuid.New(),
		Symbol:     p.Symbol,
		Timestamp:  p.Timestamp,
		Open:       p.Open,
		High:       p.High,
		Low:        p.Low,
		Close:      p.Close,
		Volume:     p.Volume,
		TradeCount: p.TradeCount,
		VWAP:       p.VWAP,
	}, nil
}

// TradingDate returns the UTC calendar date this bar belongs to.
func (b OHLCVBar) TradingDate() TradingDate { return b.Timestamp.TradingDate() }

// SameData reports whether b and other carry identical market data —
// symbol, timestamp, OHLCV fields, and optional trade count/VWAP — ignoring
// their distinct generated IDs. Used to allow a duplicate-timestamp row that
// is otherwise a byte-identical repeat of an already-collected bar.
func (b OHLCVBar) SameData(other OHLCVBar) bool {
	if !b.Symbol.Equal(other.Symbol) || !b.Timestamp.Equal(other.Timestamp) {
		return false
	}
	if b.Open.Compare(other.Open) != 0 || b.High.Compare(other.High) != 0 ||
		b.Low.Compare(other.Low) != 0 || b.Close.Compare(other.Close) != 0 {
		return false
	}
	if b.Volume.Compare(other.Volume) != 0 {
		return false
	}
	if (b.TradeCount == nil) != (other.TradeCount == nil) {
		return false
	}
	if b.TradeCount != nil && *b.TradeCount != *other.TradeCount {
		return false
	}
	if (b.VWAP == nil) != (other.VWAP == nil) {
		return false
	}
	if b.VWAP != nil && b.VWAP.Compare(*other.VWAP) != 0 {
		return false
	}
	return true
}
