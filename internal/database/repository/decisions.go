package repository

import (
	"context"
	"database/sql"
)

// DecisionRepo handles match_decisions and record_backups.
type DecisionRepo struct {
	db *sql.DB
}

func NewDecisionRepo(db *sql.DB) *DecisionRepo { return &DecisionRepo{db: db} }

const decisionCols = `id, run_id, record_id, counterpart_id, outcome, link_id, score, reason, candidates_json, created_at`

func (r *DecisionRepo) Insert(ctx context.Context, tx *sql.Tx, d MatchDecision) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO match_decisions(
	 id, run_id, record_id, counterpart_id, outcome, link_id, score, reason, candidates_json, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, d.ID, d.RunID, d.RecordID, d.CounterpartID, d.Outcome, d.LinkID, d.Score, d.Reason, d.CandidatesJSON)
	return err
}

func (r *DecisionRepo) InsertBackup(ctx context.Context, tx *sql.Tx, b RecordBackup) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO record_backups(id, run_id, record_id, snapshot_json, created_at)
	VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, b.ID, b.RunID, b.RecordID, b.SnapshotJSON)
	return err
}

// ByRun returns all decisions recorded in one run, oldest first.
func (r *DecisionRepo) ByRun(ctx context.Context, runID string) ([]MatchDecision, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+decisionCols+` FROM match_decisions WHERE run_id = ? ORDER BY created_at ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

// Latest returns the most recent decision for a record, nil if none.
func (r *DecisionRepo) Latest(ctx context.Context, recordID string) (*MatchDecision, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+decisionCols+` FROM match_decisions WHERE record_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, recordID)
	d, err := scanDecision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// ReviewQueue returns the latest decision per record that still needs a human:
// AMBIGUOUS and UNMATCHED outcomes not superseded by a later terminal decision.
func (r *DecisionRepo) ReviewQueue(ctx context.Context) ([]MatchDecision, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+decisionCols+` FROM match_decisions d
	WHERE d.outcome IN ('AMBIGUOUS', 'UNMATCHED', 'REJECTED_DUPLICATE')
	  AND d.created_at = (SELECT MAX(d2.created_at) FROM match_decisions d2 WHERE d2.record_id = d.record_id)
	  AND NOT EXISTS (SELECT 1 FROM ledger_records lr WHERE lr.id = d.record_id AND lr.link_id IS NOT NULL)
	ORDER BY d.created_at ASC, d.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func collectDecisions(rows *sql.Rows) ([]MatchDecision, error) {
	var out []MatchDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDecision(row scanner) (MatchDecision, error) {
	var d MatchDecision
	var counterpart, link, candidates sql.NullString
	var score sql.NullInt64
	var outcome string
	if err := row.Scan(&d.ID, &d.RunID, &d.RecordID, &counterpart, &outcome, &link, &score,
		&d.Reason, &candidates, &d.CreatedAt); err != nil {
		return MatchDecision{}, err
	}
	d.Outcome = Outcome(outcome)
	if counterpart.Valid {
		d.CounterpartID = &counterpart.String
	}
	if link.Valid {
		d.LinkID = &link.String
	}
	if candidates.Valid {
		d.CandidatesJSON = &candidates.String
	}
	if score.Valid {
		n := int(score.Int64)
		d.Score = &n
	}
	return d, nil
}
