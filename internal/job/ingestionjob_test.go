package job_test

import (
	"errors"
	"testing"

	"github.com/marketpipe/marketpipe/internal/bar"
	"github.com/marketpipe/marketpipe/internal/job"
)

func newTestJob(t *testing.T, symbols ...string) *job.IngestionJob {
	t.Helper()
	syms := make([]bar.Symbol, 0, len(symbols))
	for _, s := range symbols {
		syms = append(syms, bar.MustSymbol(s))
	}
	day := bar.NewTradingDate(2026, 3, 2)
	r := bar.SingleDay(day)
	return job.NewIngestionJob("job-1", syms, r)
}

func TestIngestionJob_StartTransitionsPendingToInProgress(t *testing.T) {
	j := newTestJob(t, "AAPL")
	if j.State() != job.StatePending {
		t.Fatalf("expected Pending, got %s", j.State())
	}
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if j.State() != job.StateInProgress {
		t.Fatalf("expected InProgress, got %s", j.State())
	}
	events := j.PendingEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 pending event after Start, got %d", len(events))
	}
}

func TestIngestionJob_StartTwiceIsInvalidTransition(t *testing.T) {
	j := newTestJob(t, "AAPL")
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := j.Start()
	if !errors.Is(err, job.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestIngestionJob_CompleteRequiresEverySymbolProcessed(t *testing.T) {
	j := newTestJob(t, "AAPL", "MSFT")
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.MarkSymbolProcessed(bar.MustSymbol("AAPL"), 10, "partition-a"); err != nil {
		t.Fatalf("MarkSymbolProcessed: %v", err)
	}
	err := j.Complete()
	if !errors.Is(err, job.ErrIncompleteSymbols) {
		t.Fatalf("expected ErrIncompleteSymbols, got %v", err)
	}
	if j.State() != job.StateInProgress {
		t.Fatalf("expected job to remain InProgress after failed Complete, got %s", j.State())
	}
}

func TestIngestionJob_CompleteSucceedsWhenEverySymbolProcessed(t *testing.T) {
	j := newTestJob(t, "AAPL", "MSFT")
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.MarkSymbolProcessed(bar.MustSymbol("AAPL"), 10, "partition-a"); err != nil {
		t.Fatalf("MarkSymbolProcessed AAPL: %v", err)
	}
	if err := j.MarkSymbolProcessed(bar.MustSymbol("MSFT"), 0, ""); err != nil {
		t.Fatalf("MarkSymbolProcessed MSFT: %v", err)
	}
	if err := j.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if j.State() != job.StateCompleted {
		t.Fatalf("expected Completed, got %s", j.State())
	}

	progress := j.Progress()
	if progress["AAPL"].BarsWritten != 10 {
		t.Fatalf("expected AAPL BarsWritten=10, got %d", progress["AAPL"].BarsWritten)
	}
	if len(progress["AAPL"].Partitions) != 1 || progress["AAPL"].Partitions[0] != "partition-a" {
		t.Fatalf("expected AAPL partitions=[partition-a], got %v", progress["AAPL"].Partitions)
	}
}

func TestIngestionJob_MarkSymbolProcessedRequiresInProgress(t *testing.T) {
	j := newTestJob(t, "AAPL")
	err := j.MarkSymbolProcessed(bar.MustSymbol("AAPL"), 10, "partition-a")
	if !errors.Is(err, job.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for Pending job, got %v", err)
	}
}

func TestIngestionJob_FailFromPending(t *testing.T) {
	j := newTestJob(t, "AAPL")
	if err := j.Fail("vendor unreachable"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if j.State() != job.StateFailed {
		t.Fatalf("expected Failed, got %s", j.State())
	}
	if j.FailReason() != "vendor unreachable" {
		t.Fatalf("expected stored fail reason, got %q", j.FailReason())
	}
}

func TestIngestionJob_FailFromInProgress(t *testing.T) {
	j := newTestJob(t, "AAPL")
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.PendingEvents()
	if err := j.Fail("all units failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if j.State() != job.StateFailed {
		t.Fatalf("expected Failed, got %s", j.State())
	}
	events := j.PendingEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 completion event after Fail, got %d", len(events))
	}
}

func TestIngestionJob_CancelFromPending(t *testing.T) {
	j := newTestJob(t, "AAPL")
	if err := j.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if j.State() != job.StateCancelled {
		t.Fatalf("expected Cancelled, got %s", j.State())
	}
}

func TestIngestionJob_CancelFromInProgress(t *testing.T) {
	j := newTestJob(t, "AAPL")
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if j.State() != job.StateCancelled {
		t.Fatalf("expected Cancelled, got %s", j.State())
	}
}

func TestIngestionJob_TerminalStatesRejectFurtherTransitions(t *testing.T) {
	j := newTestJob(t, "AAPL")
	if err := j.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := j.Start(); !errors.Is(err, job.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after Cancelled, got %v", err)
	}
	if err := j.Fail("x"); !errors.Is(err, job.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on Fail after Cancelled, got %v", err)
	}
	if err := j.Cancel(); !errors.Is(err, job.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double Cancel, got %v", err)
	}
}
