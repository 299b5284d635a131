package batch

// ItemStatus is the processing outcome of a single ingested record.
type ItemStatus string

// Item status values.
const (
	StatusEmbedded ItemStatus = "embedded"
	StatusSkipped  ItemStatus = "skipped"
)

// SkipReason explains why a record was left out of the output.
type SkipReason string

// Skip reasons reported by ingestion.
const (
	ReasonEmptyText         SkipReason = "empty_text"
	ReasonEmbeddingError    SkipReason = "embedding_error"
	ReasonDimensionMismatch SkipReason = "dimension_mismatch"
)

// Result is the outcome of processing one record in an ingestion run.
type Result struct {
	id     string
	status ItemStatus
	reason SkipReason
	err    error
}

// NewEmbedded creates a successful result.
func NewEmbedded(id string) Result { return Result{id: id, status: StatusEmbedded} }

// NewSkipped creates a result for a record left out of the output.
func NewSkipped(id string, reason SkipReason, err error) Result {
	return Result{id: id, status: StatusSkipped, reason: reason, err: err}
}

// ID returns the record identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Reason returns the skip reason (empty for embedded records).
func (r Result) Reason() SkipReason { return r.reason }

// Err returns the underlying error, if any.
func (r Result) Err() error { return r.err }
