package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jask/ledgermatch/internal/database"
	"github.com/jask/ledgermatch/internal/database/repository"
)

// MaintenanceService houses destructive/ops actions.
type MaintenanceService struct {
	DB        *sql.DB
	Records   *repository.RecordRepo
	Decisions *repository.DecisionRepo
	Audit     *repository.AuditRepo
	Actor     string
}

// ConfirmDuplicate deletes a record previously routed to REJECTED_DUPLICATE.
// The engine never deletes on its own; this is the explicit operator
// confirmation. The row is snapshotted and the deletion audited.
func (s *MaintenanceService) ConfirmDuplicate(ctx context.Context, recordID string) error {
	rec, err := s.Records.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s not found", recordID)
	}
	if rec.LinkID != nil {
		return fmt.Errorf("record %s is linked, refusing to delete", recordID)
	}
	latest, err := s.Decisions.Latest(ctx, recordID)
	if err != nil {
		return err
	}
	if latest == nil || latest.Outcome != repository.OutcomeRejectedDuplicate {
		return fmt.Errorf("record %s is not routed as a rejected duplicate", recordID)
	}

	runID := uuid.NewString()
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		snap, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		backupID := uuid.NewString()
		if err := s.Decisions.InsertBackup(ctx, tx, repository.RecordBackup{
			ID: backupID, RunID: runID, RecordID: rec.ID, SnapshotJSON: string(snap),
		}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_records WHERE id = ? AND link_id IS NULL`, rec.ID); err != nil {
			return err
		}
		return s.Audit.Append(ctx, tx, repository.AuditEntry{
			RunID: runID, Actor: s.Actor, RecordIDs: []string{rec.ID},
			Decision: "DELETED_DUPLICATE",
			Reason:   "operator confirmed duplicate import",
			BackupID: &backupID,
		})
	})
}

// Reset wipes all engine data. It keeps the schema intact.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"audit_log",
			"record_backups",
			"match_decisions",
			"reject_log",
			"run_locks",
			"runs",
			"ledger_records",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
