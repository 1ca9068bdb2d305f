package bar

import "github.com/google/uuid"

// EventKind tags a DomainEvent's concrete payload.
type EventKind string

const (
	EventIngestionJobStarted     EventKind = "ingestion_job_started"
	EventIngestionBatchProcessed EventKind = "ingestion_batch_processed"
	EventBarCollectionCompleted  EventKind = "bar_collection_completed"
	EventIngestionJobCompleted   EventKind = "ingestion_job_completed"
	EventValidationFailed        EventKind = "validation_failed"
	EventAggregationCompleted    EventKind = "aggregation_completed"
)

// DomainEvent is the envelope common to every event the pipeline raises.
// Concrete payloads are carried in the exported fields relevant to Kind;
// fields that don't apply to a given Kind are left zero-valued.
type DomainEvent struct {
	ID         uuid.UUID
	Kind       EventKind
	OccurredAt Timestamp

	// IngestionJobStarted / IngestionJobCompleted
	JobID string

	// IngestionBatchProcessed
	Symbol     Symbol
	BatchSize  int
	RowsFailed int

	// BarCollectionCompleted
	Date     TradingDate
	BarCount int

	// IngestionJobCompleted
	Success bool

	// ValidationFailed
	Reason string

	// AggregationCompleted
	Frame string
}

// newEvent stamps a DomainEvent with a fresh identity and the current instant.
func newEvent(kind EventKind) DomainEvent {
	return DomainEvent{ID: uuid.New(), Kind: kind, OccurredAt: Now()}
}

// NewIngestionJobStarted builds the event raised when a job transitions to InProgress.
func NewIngestionJobStarted(jobID string) DomainEvent {
	e := newEvent(EventIngestionJobStarted)
	e.JobID = jobID
	return e
}

// NewIngestionBatchProcessed builds the event raised each time a job records a unit's outcome for a symbol.
func NewIngestionBatchProcessed(symbol Symbol, batchSize, rowsFailed int) DomainEvent {
	e := newEvent(EventIngestionBatchProcessed)
	e.Symbol = symbol
	e.BatchSize = batchSize
	e.RowsFailed = rowsFailed
	return e
}

// NewBarCollectionCompleted builds the event raised by complete_collection.
func NewBarCollectionCompleted(symbol Symbol, date TradingDate, barCount int) DomainEvent {
	e := newEvent(EventBarCollectionCompleted)
	e.Symbol = symbol
	e.Date = date
	e.BarCount = barCount
	return e
}

// NewIngestionJobCompleted builds the event raised when a job completes or fails; cancellation raises none.
func NewIngestionJobCompleted(jobID string, success bool) DomainEvent {
	e := newEvent(EventIngestionJobCompleted)
	e.JobID = jobID
	e.Success = success
	return e
}

// NewValidationFailed builds the event raised when a row or bar fails validation.
func NewValidationFailed(symbol Symbol, reason string) DomainEvent {
	e := newEvent(EventValidationFailed)
	e.Symbol = symbol
	e.Reason = reason
	return e
}

// NewAggregationCompleted builds the event raised after a higher timeframe is derived.
func NewAggregationCompleted(symbol Symbol, date TradingDate, frame string) DomainEvent {
	e := newEvent(EventAggregationCompleted)
	e.Symbol = symbol
	e.Date = date
	e.Frame = frame
	return e
}
