package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// RecordRepo handles ledger_records.
type RecordRepo struct {
	db *sql.DB
}

func NewRecordRepo(db *sql.DB) *RecordRepo { return &RecordRepo{db: db} }

const recordCols = `id, source_kind, source_id, event_date, amount_cents, raw_description,
 normalized_vendor, account_ref, batch_ref, link_id, content_hash, created_at, updated_at`

func (r *RecordRepo) Insert(ctx context.Context, rec LedgerRecord) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO ledger_records(
	 id, source_kind, source_id, event_date, amount_cents, raw_description,
	 normalized_vendor, account_ref, batch_ref, link_id, content_hash, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		rec.ID, rec.SourceKind, rec.SourceID, rec.EventDate.Format(time.DateOnly), rec.AmountCents,
		rec.RawDescription, rec.NormalizedVendor, rec.AccountRef, rec.BatchRef, rec.LinkID, rec.ContentHash)
	return err
}

func (r *RecordRepo) Get(ctx context.Context, id string) (*LedgerRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordCols+` FROM ledger_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Unlinked returns records of one kind that have no link yet, oldest first.
// accountRef narrows the set when non-empty.
func (r *RecordRepo) Unlinked(ctx context.Context, kind SourceKind, accountRef string) ([]LedgerRecord, error) {
	var where []string
	var args []interface{}
	where = append(where, "source_kind = ?", "link_id IS NULL")
	args = append(args, kind)
	if accountRef != "" {
		where = append(where, "account_ref = ?")
		args = append(args, accountRef)
	}
	query := `SELECT ` + recordCols + ` FROM ledger_records WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY event_date ASC, source_id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ByLink returns both sides of a link.
func (r *RecordRepo) ByLink(ctx context.Context, linkID string) ([]LedgerRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM ledger_records WHERE link_id = ? ORDER BY source_kind, source_id`, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetLink assigns linkID to record id inside tx. The guard on link_id IS NULL
// means an already-linked row is never reassigned; callers must treat a zero
// row count as an idempotency violation.
func (r *RecordRepo) SetLink(ctx context.Context, tx *sql.Tx, id, linkID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_records SET link_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND link_id IS NULL`,
		linkID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearLink removes a link from all its member rows inside tx.
func (r *RecordRepo) ClearLink(ctx context.Context, tx *sql.Tx, linkID string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_records SET link_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE link_id = ?`, linkID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasContentHash reports whether a record with this idempotency key exists.
func (r *RecordRepo) HasContentHash(ctx context.Context, hash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM ledger_records WHERE content_hash = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LogReject appends a malformed input row to the rejects log.
func (r *RecordRepo) LogReject(ctx context.Context, kind SourceKind, rawRow, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reject_log(source_kind, raw_row, error) VALUES(?, ?, ?)`, kind, rawRow, reason)
	return err
}

// scanRecord handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (LedgerRecord, error) {
	var rec LedgerRecord
	var kind, dateStr string
	var account, batch, link sql.NullString
	if err := row.Scan(&rec.ID, &kind, &rec.SourceID, &dateStr, &rec.AmountCents, &rec.RawDescription,
		&rec.NormalizedVendor, &account, &batch, &link, &rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return LedgerRecord{}, err
	}
	rec.SourceKind = SourceKind(kind)
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		return LedgerRecord{}, fmt.Errorf("record %s event_date: %w", rec.ID, err)
	}
	rec.EventDate = date
	if account.Valid {
		rec.AccountRef = &account.String
	}
	if batch.Valid {
		rec.BatchRef = &batch.String
	}
	if link.Valid {
		rec.LinkID = &link.String
	}
	return rec, nil
}
