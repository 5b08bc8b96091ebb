package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/jask/ledgermatch/internal/database/repository"
)

// MatchCandidate is one scored pairing. Never persisted; it exists only
// within one resolution pass.
type MatchCandidate struct {
	Record        *repository.LedgerRecord
	Score         int // 0-100
	Reasons       []string
	TieRank       int
	LowConfidence bool
}

// ScorerConfig holds the tolerances for one scoring pass.
type ScorerConfig struct {
	DateWindowDays       int   // stage 3 window
	AmountToleranceCents int64 // stage 4 tolerance
	FallbackMinDays      int   // stage 5 wide window lower bound
	FallbackMaxDays      int   // stage 5 wide window upper bound
}

// DefaultScorerConfig mirrors the config package defaults for callers that
// score outside a configured run.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{DateWindowDays: 3, AmountToleranceCents: 500, FallbackMinDays: 30, FallbackMaxDays: 120}
}

// Score ranks candidates for one unmatched record. Stages are mutually
// exclusive per candidate: each candidate gets the score of the first stage
// it satisfies. Results are sorted best first; ties share the top score and
// must be escalated by the caller, never broken silently.
func Score(unmatched *repository.LedgerRecord, candidates []*repository.LedgerRecord, cfg ScorerConfig) []MatchCandidate {
	var out []MatchCandidate
	for _, cand := range candidates {
		if mc, ok := scoreOne(unmatched, cand, cfg); ok {
			out = append(out, mc)
		}
	}

	// stage 5 is a fallback: discard low-confidence pairings whenever any
	// dated stage produced something
	hasDated := false
	for _, mc := range out {
		if !mc.LowConfidence {
			hasDated = true
			break
		}
	}
	if hasDated {
		kept := out[:0]
		for _, mc := range out {
			if !mc.LowConfidence {
				kept = append(kept, mc)
			}
		}
		out = kept
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.SourceID < out[j].Record.SourceID
	})
	for i := range out {
		out[i].TieRank = i
	}
	return out
}

func scoreOne(a, b *repository.LedgerRecord, cfg ScorerConfig) (MatchCandidate, bool) {
	amountDelta := absInt64(a.AmountCents - b.AmountCents)
	days := daysApart(a.EventDate, b.EventDate)
	vendor := vendorsMatch(a.NormalizedVendor, b.NormalizedVendor)
	sameDay := days == 0
	exactAmount := amountDelta <= 1 // within one cent

	// Stage 1: exact amount + same date + vendor
	if exactAmount && sameDay && vendor {
		return MatchCandidate{Record: b, Score: 100,
			Reasons: []string{"exact amount", "same date", "vendor match"}}, true
	}
	// Stage 2: exact amount + same date
	if exactAmount && sameDay {
		return MatchCandidate{Record: b, Score: 90,
			Reasons: []string{"exact amount", "same date"}}, true
	}
	// Stage 3: exact amount within the date window
	if exactAmount && days <= cfg.DateWindowDays {
		score := 85 - 5*days
		reasons := []string{"exact amount", fmt.Sprintf("%d days apart", days)}
		if vendor {
			score += 10
			reasons = append(reasons, "vendor match")
		}
		return MatchCandidate{Record: b, Score: score, Reasons: reasons}, true
	}
	// Stage 4: amount within tolerance + same date + vendor
	if amountDelta <= cfg.AmountToleranceCents && sameDay && vendor {
		return MatchCandidate{Record: b, Score: 70,
			Reasons: []string{fmt.Sprintf("amount within %d cents", amountDelta), "same date", "vendor match"}}, true
	}
	// Stage 5: amount-only fallback within the wide window, always low
	// confidence. Score holds 60 inside the near bound and decays to 40 at
	// the far bound.
	if exactAmount && days <= cfg.FallbackMaxDays {
		score := 60
		if span := cfg.FallbackMaxDays - cfg.FallbackMinDays; span > 0 && days > cfg.FallbackMinDays {
			score = 60 - 20*(days-cfg.FallbackMinDays)/span
		}
		return MatchCandidate{Record: b, Score: score, LowConfidence: true,
			Reasons: []string{"amount-only fallback", fmt.Sprintf("%d days apart", days)}}, true
	}
	return MatchCandidate{}, false
}

// vendorsMatch accepts a substring containment either way, or a small
// levenshtein distance relative to the longer vendor string.
func vendorsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	dist := levenshtein.ComputeDistance(a, b)
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(dist)/float64(longer) < 0.3
}

// Tied reports whether the top-ranked candidates share the maximum score, in
// which case the record must be escalated to AMBIGUOUS.
func Tied(scored []MatchCandidate) bool {
	return len(scored) >= 2 && scored[0].Score == scored[1].Score
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
