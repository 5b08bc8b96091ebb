package repository

import "time"

// SourceKind identifies the origin table of a ledger record.
type SourceKind string

const (
	SourceBank    SourceKind = "BANK"
	SourceReceipt SourceKind = "RECEIPT"
	SourcePayment SourceKind = "PAYMENT"
	SourcePayroll SourceKind = "PAYROLL"
)

// ParseSourceKind validates a user-supplied kind string.
func ParseSourceKind(s string) (SourceKind, bool) {
	switch SourceKind(s) {
	case SourceBank, SourceReceipt, SourcePayment, SourcePayroll:
		return SourceKind(s), true
	}
	return "", false
}

// LedgerRecord is the canonical representation of one financial event.
type LedgerRecord struct {
	ID               string
	SourceKind       SourceKind
	SourceID         string
	EventDate        time.Time
	AmountCents      int64 // signed: positive inflow, negative outflow
	RawDescription   string
	NormalizedVendor string
	AccountRef       *string
	BatchRef         *string
	LinkID           *string
	ContentHash      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Outcome is the terminal state of resolving one record.
type Outcome string

const (
	OutcomeAutoLinked        Outcome = "AUTO_LINKED"
	OutcomeAmbiguous         Outcome = "AMBIGUOUS"
	OutcomeUnmatched         Outcome = "UNMATCHED"
	OutcomeRejectedDuplicate Outcome = "REJECTED_DUPLICATE"
)

// MatchDecision is the persisted outcome of resolving one record.
type MatchDecision struct {
	ID             string
	RunID          string
	RecordID       string
	CounterpartID  *string
	Outcome        Outcome
	LinkID         *string
	Score          *int
	Reason         string
	CandidatesJSON *string
	CreatedAt      time.Time
}

// RecordBackup is a pre-write snapshot of a row about to be mutated.
type RecordBackup struct {
	ID           string
	RunID        string
	RecordID     string
	SnapshotJSON string
	CreatedAt    time.Time
}

// AuditEntry is one append-only row per mutation.
type AuditEntry struct {
	ID        int64
	RunID     string
	Actor     string
	RecordIDs []string
	Decision  string
	Score     *int
	Reason    string
	BackupID  *string
	CreatedAt time.Time
}

// Run is one reconciliation run with its parameters and per-state counters.
type Run struct {
	ID                string
	SourceKind        SourceKind
	TargetKind        SourceKind
	AccountRef        *string
	DryRun            bool
	AutoLinked        int
	Ambiguous         int
	Unmatched         int
	RejectedDuplicate int
	StartedAt         time.Time
	FinishedAt        *time.Time
}
