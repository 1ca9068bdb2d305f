package bar

import (
	"errors"
	"fmt"
)

// ErrDuplicateTimestamp is returned by AddBar when a second, non-identical
// row arrives for a timestamp already present in the collection. A
// byte-identical repeat is deduplicated silently instead.
var ErrDuplicateTimestamp = errors.New("bar: duplicate timestamp with conflicting data")

// SymbolBarsAggregate is the consistency boundary for one symbol's bars on one
// trading date: every mutation is funneled through start_collection/add_bar/
// complete_collection so invariants hold for the whole collection, not just a
// single bar. Version increments on every accepted mutation; pending domain
// events accumulate until drained by PendingEvents/ClearPendingEvents.
type SymbolBarsAggregate struct {
	symbol    Symbol
	date      TradingDate
	bars      map[int64]OHLCVBar // keyed by Timestamp.UnixNano()
	version   int
	completed bool
	started   bool
	pending   []DomainEvent
}

// NewSymbolBarsAggregate constructs an aggregate not yet collecting.
func NewSymbolBarsAggregate() *SymbolBarsAggregate {
	return &SymbolBarsAggregate{bars: make(map[int64]OHLCVBar)}
}

// StartCollection begins accumulating bars for symbol on date. Calling it
// twice on the same aggregate is rejected; construct a fresh aggregate per
// symbol/date pair instead.
func (a *SymbolBarsAggregate) StartCollection(symbol Symbol, date TradingDate) error {
	if a.started {
		return fmt.Errorf("bar: collection already started for %s %s", a.symbol, a.date)
	}
	a.symbol = symbol
	a.date = date
	a.started = true
	a.version++
	return nil
}

// AddBar adds a single validated bar to the in-flight collection. Rejected if
// collection hasn't started, the collection is already complete, the bar's
// symbol or trading date doesn't match this aggregate, or a bar with
// different data already exists at that timestamp (ErrDuplicateTimestamp).
// A repeat whose data matches the existing bar is dropped and returns nil.
func (a *SymbolBarsAggregate) AddBar(b OHLCVBar) error {
	if !a.started {
		return fmt.Errorf("bar: collection not started")
	}
	if a.completed {
		return fmt.Errorf("bar: collection for %s %s is already complete", a.symbol, a.date)
	}
	if !b.Symbol.Equal(a.symbol) {
		return fmt.Errorf("bar: symbol mismatch: collection is for %s, bar is for %s", a.symbol, b.Symbol)
	}
	if !b.TradingDate().Equal(a.date) {
		return fmt.Errorf("bar: trading date mismatch: collection is for %s, bar is for %s", a.date, b.TradingDate())
	}
	key := b.Timestamp.UnixNano()
	if existing, exists := a.bars[key]; exists {
		if existing.SameData(b) {
			// A byte-identical repeat of an already-collected bar is a
			// harmless dedup, not a conflict: the vendor re-sent the same
			// row (e.g. overlapping pagination), so it is silently dropped.
			return nil
		}
		return fmt.Errorf("%w: duplicate bar at timestamp %s with different data", ErrDuplicateTimestamp, b.Timestamp.ISO8601())
	}
	a.bars[key] = b
	a.version++
	return nil
}

// CompleteCollection closes the collection and enqueues a BarCollectionCompleted
// event. A zero-bar collection is permitted to complete (an empty trading day
// is a valid outcome, not an error). Completing twice is rejected.
func (a *SymbolBarsAggregate) CompleteCollection() error {
	if !a.started {
		return fmt.Errorf("bar: collection not started")
	}
	if a.completed {
		return fmt.Errorf("bar: collection for %s %s already completed", a.symbol, a.date)
	}
	a.completed = true
	a.version++
	a.pending = append(a.pending, NewBarCollectionCompleted(a.symbol, a.date, len(a.bars)))
	return nil
}

// Symbol returns the symbol this aggregate is collecting for.
func (a *SymbolBarsAggregate) Symbol() Symbol { return a.symbol }

// Date returns the trading date this aggregate is collecting for.
func (a *SymbolBarsAggregate) Date() TradingDate { return a.date }

// Version returns the monotone mutation counter.
func (a *SymbolBarsAggregate) Version() int { return a.version }

// Completed reports whether CompleteCollection has been called successfully.
func (a *SymbolBarsAggregate) Completed() bool { return a.completed }

// Bars returns the collected bars in ascending timestamp order.
func (a *SymbolBarsAggregate) Bars() []OHLCVBar {
	out := make([]OHLCVBar, 0, len(a.bars))
	for _, b := range a.bars {
		out = append(out, b)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Timestamp.Before(out[j-1].Timestamp); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// PendingEvents returns the events queued since the last ClearPendingEvents.
func (a *SymbolBarsAggregate) PendingEvents() []DomainEvent {
	return a.pending
}

// ClearPendingEvents drains the pending event queue, typically after the
// event bus has published them.
func (a *SymbolBarsAggregate) ClearPendingEvents() {
	a.pending = nil
}
