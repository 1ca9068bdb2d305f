package bar

import (
	"errors"
	"fmt"
	"math"
)

// priceScale is the fixed-point scale: 4 fractional digits.
const priceScale = 10000

// ErrNegativePrice is returned when a Price would be constructed as negative.
var ErrNegativePrice = errors.New("bar: price must be non-negative")

// Price is a non-negative fixed-point decimal quantized to 4 fractional
// digits using half-up rounding. Internally represented as an integer count
// of ten-thousandths to avoid float accumulation error across add/subtract.
type Price struct {
	scaled int64 // value * 10000
}

// NewPrice quantizes v to 4 fractional digits (half-up) and validates non-negativity.
func NewPrice(v float64) (Price, error) {
	if v < 0 {
		return Price{}, ErrNegativePrice
	}
	scaled := int64(math.Floor(v*priceScale + 0.5))
	return Price{scaled: scaled}, nil
}

// MustPrice is NewPrice that panics on error; for tests and literals.
func MustPrice(v float64) Price {
	p, err := NewPrice(v)
	if err != nil {
		panic(err)
	}
	return p
}

// ZeroPrice is the zero-valued Price (used as the "unset" sentinel for prev_close).
var ZeroPrice = Price{}

// Float64 returns the price as a float64.
func (p Price) Float64() float64 { return float64(p.scaled) / priceScale }

// IsPositive reports p > 0.
func (p Price) IsPositive() bool { return p.scaled > 0 }

// IsZero reports p == 0.
func (p Price) IsZero() bool { return p.scaled == 0 }

// Add returns p + other.
func (p Price) Add(other Price) Price { return Price{scaled: p.scaled + other.scaled} }

// Sub returns p - other. The result may be negative; callers that require a
// non-negative Price must validate via NewPrice(result.Float64()).
func (p Price) Sub(other Price) Price { return Price{scaled: p.scaled - other.scaled} }

// Compare returns -1, 0, or 1 as p is less than, equal to, or greater than other.
func (p Price) Compare(other Price) int {
	switch {
	case p.scaled < other.scaled:
		return -1
	case p.scaled > other.scaled:
		return 1
	default:
		return 0
	}
}

// Max returns the larger of a set of prices.
func Max(first Price, rest ...Price) Price {
	m := first
	for _, p := range rest {
		if p.Compare(m) > 0 {
			m = p
		}
	}
	return m
}

// Min returns the smaller of a set of prices.
func Min(first Price, rest ...Price) Price {
	m := first
	for _, p := range rest {
		if p.Compare(m) < 0 {
			m = p
		}
	}
	return m
}

// String renders the price with 4 fractional digits.
func (p Price) String() string {
	return fmt.Sprintf("%.4f", p.Float64())
}

// AbsDiffRatio returns |p-other|/other as a float64. Callers must guard
// other == 0 themselves (used for the extreme-move validation rule).
func (p Price) AbsDiffRatio(other Price) float64 {
	diff := p.scaled - other.scaled
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(other.scaled)
}
