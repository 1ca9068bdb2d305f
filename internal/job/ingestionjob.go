// Package job implements the IngestionJob state machine and the
// JobCoordinator that plans, dispatches, and supervises a job's
// (symbol, day) work units.
package job

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marketpipe/marketpipe/internal/bar"
)

// State is one of an IngestionJob's lifecycle states.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// ErrInvalidTransition is returned when a state transition is attempted
// from a state that does not permit it.
var ErrInvalidTransition = errors.New("job: invalid state transition")

// ErrIncompleteSymbols is returned by Complete when a symbol in the job's
// symbol list never received a MarkSymbolProcessed call.
var ErrIncompleteSymbols = errors.New("job: not every symbol was processed")

// SymbolProgress tracks one symbol's accumulated work within a job.
type SymbolProgress struct {
	BarsWritten int
	Partitions  []string
}

// IngestionJob is the top-level work descriptor for one ingestion run: an
// ID, a symbol list, a time range, a state, per-symbol progress, and a queue
// of pending domain events awaiting publication.
type IngestionJob struct {
	mu sync.Mutex

	ID      string
	Symbols []bar.Symbol
	Range   bar.TimeRange

	state      State
	progress   map[string]*SymbolProgress
	failReason string
	pending    []bar.DomainEvent
}

// NewIngestionJob constructs a Pending job over symbols and r, identified by id.
func NewIngestionJob(id string, symbols []bar.Symbol, r bar.TimeRange) *IngestionJob {
	return &IngestionJob{
		ID:       id,
		Symbols:  symbols,
		Range:    r,
		state:    StatePending,
		progress: make(map[string]*SymbolProgress),
	}
}

// State returns the job's current state.
func (j *IngestionJob) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Start transitions Pending -> InProgress.
func (j *IngestionJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending {
		return fmt.Errorf("%w: start requires Pending, have %s", ErrInvalidTransition, j.state)
	}
	j.state = StateInProgress
	j.pending = append(j.pending, bar.NewIngestionJobStarted(j.ID))
	return nil
}

// MarkSymbolProcessed records one unit's outcome for symbol and enqueues an
// IngestionBatchProcessed event. Valid only while InProgress.
func (j *IngestionJob) MarkSymbolProcessed(symbol bar.Symbol, nBars int, partition string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateInProgress {
		return fmt.Errorf("%w: mark_symbol_processed requires InProgress, have %s", ErrInvalidTransition, j.state)
	}
	key := symbol.String()
	p, ok := j.progress[key]
	if !ok {
		p = &SymbolProgress{}
		j.progress[key] = p
	}
	p.BarsWritten += nBars
	if partition != "" {
		p.Partitions = append(p.Partitions, partition)
	}
	j.pending = append(j.pending, bar.NewIngestionBatchProcessed(symbol, nBars, 0))
	return nil
}

// Complete transitions InProgress -> Completed, requiring every configured
// symbol to have received at least one MarkSymbolProcessed call.
func (j *IngestionJob) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateInProgress {
		return fmt.Errorf("%w: complete requires InProgress, have %s", ErrInvalidTransition, j.state)
	}
	for _, s := range j.Symbols {
		if _, ok := j.progress[s.String()]; !ok {
			return fmt.Errorf("%w: %s", ErrIncompleteSymbols, s.String())
		}
	}
	j.state = StateCompleted
	j.pending = append(j.pending, bar.NewIngestionJobCompleted(j.ID, true))
	return nil
}

// Fail transitions Pending or InProgress -> Failed.
func (j *IngestionJob) Fail(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending && j.state != StateInProgress {
		return fmt.Errorf("%w: fail requires Pending or InProgress, have %s", ErrInvalidTransition, j.state)
	}
	j.state = StateFailed
	j.failReason = reason
	j.pending = append(j.pending, bar.NewIngestionJobCompleted(j.ID, false))
	return nil
}

// Cancel transitions Pending or InProgress -> Cancelled.
func (j *IngestionJob) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending && j.state != StateInProgress {
		return fmt.Errorf("%w: cancel requires Pending or InProgress, have %s", ErrInvalidTransition, j.state)
	}
	j.state = StateCancelled
	return nil
}

// FailReason returns the reason passed to Fail, if the job has failed.
func (j *IngestionJob) FailReason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failReason
}

// Progress returns a snapshot of per-symbol progress, keyed by symbol string.
func (j *IngestionJob) Progress() map[string]SymbolProgress {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]SymbolProgress, len(j.progress))
	for k, v := range j.progress {
		out[k] = *v
	}
	return out
}

// PendingEvents returns and clears the job's queued domain events.
func (j *IngestionJob) PendingEvents() []bar.DomainEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	events := j.pending
	j.pending = nil
	return events
}
