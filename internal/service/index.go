package service

import (
	"sort"
	"time"

	"github.com/jask/ledgermatch/internal/database/repository"
)

// CandidateIndex holds the target record set bucketed by amount so a lookup
// degrades to a binary search plus bounded scan instead of a full table scan.
// It is scoped to one run; nothing survives between runs.
//
// Reads are pure; Remove is only called from the resolution writer, which is
// the single mutator within a run.
type CandidateIndex struct {
	buckets map[int64][]*repository.LedgerRecord // ordered by event date
	amounts []int64                              // sorted bucket keys
	byID    map[string]*repository.LedgerRecord
}

// BuildIndex constructs the index over the target records of one run.
func BuildIndex(records []repository.LedgerRecord) *CandidateIndex {
	idx := &CandidateIndex{
		buckets: make(map[int64][]*repository.LedgerRecord),
		byID:    make(map[string]*repository.LedgerRecord, len(records)),
	}
	for i := range records {
		rec := &records[i]
		idx.buckets[rec.AmountCents] = append(idx.buckets[rec.AmountCents], rec)
		idx.byID[rec.ID] = rec
	}
	for cents, bucket := range idx.buckets {
		sort.Slice(bucket, func(i, j int) bool {
			if !bucket[i].EventDate.Equal(bucket[j].EventDate) {
				return bucket[i].EventDate.Before(bucket[j].EventDate)
			}
			return bucket[i].SourceID < bucket[j].SourceID
		})
		idx.amounts = append(idx.amounts, cents)
	}
	sort.Slice(idx.amounts, func(i, j int) bool { return idx.amounts[i] < idx.amounts[j] })
	return idx
}

// Lookup returns candidates whose amount is within tolCents of amountCents
// and whose date is within windowDays of date. accountRef narrows the result
// when non-empty. windowDays < 0 disables the date filter.
func (idx *CandidateIndex) Lookup(amountCents int64, date time.Time, windowDays int, tolCents int64, accountRef string) []*repository.LedgerRecord {
	lo, hi := amountCents-tolCents, amountCents+tolCents
	start := sort.Search(len(idx.amounts), func(i int) bool { return idx.amounts[i] >= lo })

	var out []*repository.LedgerRecord
	for i := start; i < len(idx.amounts) && idx.amounts[i] <= hi; i++ {
		bucket := idx.buckets[idx.amounts[i]]
		for _, rec := range idx.dateSlice(bucket, date, windowDays) {
			if accountRef != "" && (rec.AccountRef == nil || *rec.AccountRef != accountRef) {
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}

// dateSlice narrows an ordered bucket to the window around date.
func (idx *CandidateIndex) dateSlice(bucket []*repository.LedgerRecord, date time.Time, windowDays int) []*repository.LedgerRecord {
	if windowDays < 0 {
		return bucket
	}
	from := date.AddDate(0, 0, -windowDays)
	to := date.AddDate(0, 0, windowDays)
	first := sort.Search(len(bucket), func(i int) bool { return !bucket[i].EventDate.Before(from) })
	last := sort.Search(len(bucket), func(i int) bool { return bucket[i].EventDate.After(to) })
	return bucket[first:last]
}

// Contains reports whether a record is still available for matching.
func (idx *CandidateIndex) Contains(id string) bool {
	_, ok := idx.byID[id]
	return ok
}

// Remove drops a matched record so it cannot be matched twice within one run.
func (idx *CandidateIndex) Remove(id string) {
	rec, ok := idx.byID[id]
	if !ok {
		return
	}
	delete(idx.byID, id)
	bucket := idx.buckets[rec.AmountCents]
	for i := range bucket {
		if bucket[i].ID != id {
			continue
		}
		bucket = append(bucket[:i], bucket[i+1:]...)
		break
	}
	if len(bucket) == 0 {
		delete(idx.buckets, rec.AmountCents)
		idx.removeAmount(rec.AmountCents)
	} else {
		idx.buckets[rec.AmountCents] = bucket
	}
}

func (idx *CandidateIndex) removeAmount(cents int64) {
	i := sort.Search(len(idx.amounts), func(i int) bool { return idx.amounts[i] >= cents })
	if i < len(idx.amounts) && idx.amounts[i] == cents {
		idx.amounts = append(idx.amounts[:i], idx.amounts[i+1:]...)
	}
}

// Len returns the number of records still available.
func (idx *CandidateIndex) Len() int { return len(idx.byID) }
