package common

import (
	"sync"
)

// Aggregator collects ErrorRecords from concurrent stages without raising them.
type Aggregator struct {
	records []ErrorRecord
	mu      sync.Mutex
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add stores a record.
func (a *Aggregator) Add(rec ErrorRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

// Record classifies err and stores the result.
func (a *Aggregator) Record(err error, ec ErrorContext) ErrorRecord {
	rec := Classify(err, ec)
	a.Add(rec)
	return rec
}

// Len returns the number of stored records.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Records returns a copy of every stored record.
func (a *Aggregator) Records() []ErrorRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ErrorRecord, len(a.records))
	copy(out, a.records)
	return out
}

// CountsByKind tallies records per kind.
func (a *Aggregator) CountsByKind() map[ErrorKind]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[ErrorKind]int)
	for _, r := range a.records {
		counts[r.Kind]++
	}
	return counts
}

// CountsBySeverity tallies records per severity.
func (a *Aggregator) CountsBySeverity() map[Severity]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[Severity]int)
	for _, r := range a.records {
		counts[r.Severity]++
	}
	return counts
}

// HasCritical reports whether any critical record was stored.
func (a *Aggregator) HasCritical() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records {
		if r.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// RetryableErrors returns the records whose failures may succeed on a later attempt.
func (a *Aggregator) RetryableErrors() []ErrorRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []ErrorRecord
	for _, r := range a.records {
		if r.Retryable {
			out = append(out, r)
		}
	}
	return out
}

// ShouldAbort reports whether a systemic failure was seen: any auth error, or
// an unclassified error marked critical.
func (a *Aggregator) ShouldAbort() bool {
	return a.ShouldAbortSince(0)
}

// ShouldAbortSince is ShouldAbort restricted to records added after the
// first mark records, so a caller can tell a new systemic failure from an
// earlier one.
func (a *Aggregator) ShouldAbortSince(mark int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records[min(max(mark, 0), len(a.records)):] {
		if r.Systemic() {
			return true
		}
	}
	return false
}

// Samples returns up to n messages, first-seen first.
func (a *Aggregator) Samples(n int) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > len(a.records) {
		n = len(a.records)
	}
	out := make([]string, 0, n)
	for _, r := range a.records[:n] {
		out = append(out, r.String())
	}
	return out
}

// ErrorSummary is the user-visible digest of a run's failures.
type ErrorSummary struct {
	ByKind      map[ErrorKind]int
	BySeverity  map[Severity]int
	Samples     []string
	Total       int
	HasCritical bool
}

// Summary condenses the stored records.
func (a *Aggregator) Summary(samples int) ErrorSummary {
	return ErrorSummary{
		Total:       a.Len(),
		ByKind:      a.CountsByKind(),
		BySeverity:  a.CountsBySeverity(),
		HasCritical: a.HasCritical(),
		Samples:     a.Samples(samples),
	}
}
