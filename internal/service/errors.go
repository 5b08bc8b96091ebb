package service

import "fmt"

// MalformedRecordError marks an input row whose date or amount could not be
// parsed. Such rows go to the rejects log; they are never defaulted.
type MalformedRecordError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// IdempotencyViolationError marks an attempt to relink an already-linked
// record to a different target. Fatal for the record, never silently applied.
type IdempotencyViolationError struct {
	RecordID     string
	ExistingLink string
	WantedLink   string
}

func (e *IdempotencyViolationError) Error() string {
	return fmt.Sprintf("record %s already linked to %s, refusing relink to %s",
		e.RecordID, e.ExistingLink, e.WantedLink)
}

// TransientStoreError wraps a retriable store failure that exhausted its
// retry budget. The affected record surfaces as UNMATCHED.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store failure during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }
