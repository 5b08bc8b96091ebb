package repository

import (
	"context"
	"database/sql"
	"strings"
)

// AuditRepo handles the append-only audit_log. There is no update or delete.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

const auditCols = `id, run_id, actor, record_ids, decision, score, reason, backup_id, created_at`

func (r *AuditRepo) Append(ctx context.Context, tx *sql.Tx, e AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO audit_log(run_id, actor, record_ids, decision, score, reason, backup_id, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, e.RunID, e.Actor, strings.Join(e.RecordIDs, ","), e.Decision, e.Score, e.Reason, e.BackupID)
	return err
}

// ByRun answers "what changed in run N".
func (r *AuditRepo) ByRun(ctx context.Context, runID string) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditCols+` FROM audit_log WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAudit(rows)
}

// ByRecord answers "why was X linked to Y": every audit row that names the record.
func (r *AuditRepo) ByRecord(ctx context.Context, recordID string) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+auditCols+` FROM audit_log
	WHERE record_ids = ? OR record_ids LIKE ? OR record_ids LIKE ? OR record_ids LIKE ?
	ORDER BY id ASC`,
		recordID, recordID+",%", "%,"+recordID, "%,"+recordID+",%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAudit(rows)
}

// CountByRun supports the idempotency check in tests and run summaries.
func (r *AuditRepo) CountByRun(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// Count returns the total number of audit rows.
func (r *AuditRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n)
	return n, err
}

func collectAudit(rows *sql.Rows) ([]AuditEntry, error) {
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ids string
		var score sql.NullInt64
		var backup sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Actor, &ids, &e.Decision, &score, &e.Reason, &backup, &e.CreatedAt); err != nil {
			return nil, err
		}
		if ids != "" {
			e.RecordIDs = strings.Split(ids, ",")
		}
		if score.Valid {
			n := int(score.Int64)
			e.Score = &n
		}
		if backup.Valid {
			e.BackupID = &backup.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
