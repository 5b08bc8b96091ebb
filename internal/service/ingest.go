package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jask/ledgermatch/internal/database"
	"github.com/jask/ledgermatch/internal/database/repository"
)

// IngestService feeds origin-table rows through the Normalizer into the
// ledger. Import scripts read their own format and hand rows over; they
// never match.
type IngestService struct {
	Records    *repository.RecordRepo
	Normalizer *Normalizer
}

// IngestResult accumulates per-row outcomes for one file.
type IngestResult struct {
	Imported int
	Skipped  int // duplicate re-imports, keyed by content hash
	Rejected int // malformed rows, written to the rejects log
	Errors   []error
}

// ImportCSV ingests one file for a source kind.
// Columns: source_id, date, amount, description[, account].
// Malformed rows go to the rejects log; re-imports of the same row are
// no-ops via the content hash.
func (s *IngestService) ImportCSV(ctx context.Context, kind repository.SourceKind, r io.Reader, accountRef, batchRef string) (IngestResult, error) {
	res := IngestResult{}
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(rec) < 4 {
			res.Rejected++
			res.Errors = append(res.Errors, fmt.Errorf("line %d: expected at least 4 columns (source_id, date, amount, description)", line))
			if err := s.Records.LogReject(ctx, kind, strings.Join(rec, ","), "too few columns"); err != nil {
				return res, err
			}
			continue
		}
		row := RawRow{
			SourceID:    rec[0],
			Date:        rec[1],
			Amount:      rec[2],
			Description: rec[3],
			Account:     accountRef,
			Batch:       batchRef,
		}
		if len(rec) >= 5 && strings.TrimSpace(rec[4]) != "" {
			row.Account = rec[4]
		}

		ledgerRec, err := s.Normalizer.Normalize(kind, row)
		if err != nil {
			var malformed *MalformedRecordError
			if errors.As(err, &malformed) {
				res.Rejected++
				res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
				if logErr := s.Records.LogReject(ctx, kind, strings.Join(rec, ","), malformed.Error()); logErr != nil {
					return res, logErr
				}
				continue
			}
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		seen, err := s.Records.HasContentHash(ctx, ledgerRec.ContentHash)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if seen {
			res.Skipped++
			continue
		}

		if err := s.Records.Insert(ctx, ledgerRec); err != nil {
			if database.IsUniqueViolation(err) {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, fmt.Errorf("line %d insert: %w", line, err))
			continue
		}
		res.Imported++
	}
	return res, nil
}
