package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Rhymond/go-money"

	"github.com/jask/ledgermatch/internal/database/repository"
)

// ReviewService exports the manual review queue for human adjudication:
// every AMBIGUOUS, UNMATCHED and REJECTED_DUPLICATE case with its top
// candidates and scores.
type ReviewService struct {
	Records   *repository.RecordRepo
	Decisions *repository.DecisionRepo
	Currency  string // ISO code for amount formatting, defaults to CAD
	TopN      int
}

// ExportCSV writes the review queue. One row per (record, candidate) pair;
// records without candidates get a single row with empty candidate columns.
func (s *ReviewService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	queue, err := s.Decisions.ReviewQueue(ctx)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"record_id", "source_kind", "source_id", "event_date", "amount", "description",
		"outcome", "reason", "candidate_source_id", "candidate_score", "candidate_reasons",
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	for _, d := range queue {
		rec, err := s.Records.Get(ctx, d.RecordID)
		if err != nil {
			return 0, err
		}
		if rec == nil {
			continue
		}
		base := []string{
			rec.ID, string(rec.SourceKind), rec.SourceID,
			rec.EventDate.Format(time.DateOnly),
			s.formatAmount(rec.AmountCents),
			rec.RawDescription,
			string(d.Outcome), d.Reason,
		}
		cands := s.topCandidates(d)
		if len(cands) == 0 {
			if err := cw.Write(append(base, "", "", "")); err != nil {
				return 0, err
			}
			continue
		}
		for _, cand := range cands {
			row := append(append([]string(nil), base...),
				cand.SourceID, fmt.Sprint(cand.Score), strings.Join(cand.Reasons, "; "))
			if err := cw.Write(row); err != nil {
				return 0, err
			}
		}
	}
	cw.Flush()
	return len(queue), cw.Error()
}

func (s *ReviewService) topCandidates(d repository.MatchDecision) []candidateSnapshot {
	if d.CandidatesJSON == nil {
		return nil
	}
	var snaps []candidateSnapshot
	if err := json.Unmarshal([]byte(*d.CandidatesJSON), &snaps); err != nil {
		return nil
	}
	n := s.TopN
	if n <= 0 {
		n = 3
	}
	if len(snaps) > n {
		snaps = snaps[:n]
	}
	return snaps
}

func (s *ReviewService) formatAmount(cents int64) string {
	code := s.Currency
	if code == "" {
		code = money.CAD
	}
	return money.New(cents, code).Display()
}
