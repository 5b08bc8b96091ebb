package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RunRepo handles runs and the advisory run_locks table.
type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

// ErrLockHeld is returned when another run holds the advisory lock for the
// same (source, target, account) triple.
var ErrLockHeld = fmt.Errorf("reconciliation lock already held")

// LockKey builds the advisory lock key for a run scope.
func LockKey(source, target SourceKind, accountRef string) string {
	return strings.Join([]string{string(source), string(target), accountRef}, "|")
}

// AcquireLock inserts the advisory lock row, failing fast with ErrLockHeld
// when a concurrent run owns it.
func (r *RunRepo) AcquireLock(ctx context.Context, key, runID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO run_locks(lock_key, run_id) VALUES(?, ?)`, key, runID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrLockHeld
		}
		return err
	}
	return nil
}

// ReleaseLock removes the advisory lock owned by runID.
func (r *RunRepo) ReleaseLock(ctx context.Context, key, runID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM run_locks WHERE lock_key = ? AND run_id = ?`, key, runID)
	return err
}

func (r *RunRepo) Insert(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO runs(id, source_kind, target_kind, account_ref, dry_run, started_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, run.ID, run.SourceKind, run.TargetKind, run.AccountRef, run.DryRun)
	return err
}

// Finish stores the per-state counters and marks the run complete.
func (r *RunRepo) Finish(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE runs SET auto_linked = ?, ambiguous = ?, unmatched = ?, rejected_duplicate = ?,
	 finished_at = CURRENT_TIMESTAMP WHERE id = ?
	`, run.AutoLinked, run.Ambiguous, run.Unmatched, run.RejectedDuplicate, run.ID)
	return err
}

func (r *RunRepo) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, source_kind, target_kind, account_ref, dry_run, auto_linked, ambiguous,
	 unmatched, rejected_duplicate, started_at, finished_at FROM runs WHERE id = ?`, id)
	var run Run
	var source, target string
	var account sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &source, &target, &account, &run.DryRun, &run.AutoLinked,
		&run.Ambiguous, &run.Unmatched, &run.RejectedDuplicate, &run.StartedAt, &finished); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	run.SourceKind = SourceKind(source)
	run.TargetKind = SourceKind(target)
	if account.Valid {
		run.AccountRef = &account.String
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
