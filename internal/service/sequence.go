package service

import (
	"sort"
	"strings"

	"github.com/jask/ledgermatch/internal/database/repository"
)

// SequenceTag classifies a cluster of same-amount records in a tight window.
type SequenceTag string

const (
	TagDuplicateImport  SequenceTag = "DUPLICATE_IMPORT"
	TagNSFRetrySequence SequenceTag = "NSF_RETRY_SEQUENCE"
	TagUnknownCluster   SequenceTag = "UNKNOWN_CLUSTER"
)

// SequenceGroup is a transient cluster produced by Classify and consumed by
// the resolution coordinator.
type SequenceGroup struct {
	Tag     SequenceTag
	Members []*repository.LedgerRecord
	// Keep is the member retained when Tag is DUPLICATE_IMPORT: the lowest
	// source id, i.e. the first imported.
	Keep *repository.LedgerRecord
}

// SequenceClassifier decides whether a same-amount cluster is a legitimate
// repeated sequence or a duplicate import. Marker keywords are configuration
// data so the classifier stays domain-agnostic.
type SequenceClassifier struct {
	NSFMarkers  []string
	NSFSpanDays int
}

// Classify tags a cluster of 2+ records sharing an amount within the
// sequence window. Rules in order: NSF retry sequence, duplicate import,
// unknown cluster. It never guesses.
func (c *SequenceClassifier) Classify(members []*repository.LedgerRecord) SequenceGroup {
	group := SequenceGroup{Members: members}
	if len(members) < 2 {
		group.Tag = TagUnknownCluster
		return group
	}

	if c.isNSFSequence(members) {
		group.Tag = TagNSFRetrySequence
		return group
	}

	if structurallyIdentical(members) {
		group.Tag = TagDuplicateImport
		group.Keep = lowestSourceID(members)
		return group
	}

	group.Tag = TagUnknownCluster
	return group
}

// isNSFSequence holds when NSF-marked members interleave with a clean member
// of the same amount within the span. Such sequences are legitimate repeats:
// no member may be merged or deleted.
func (c *SequenceClassifier) isNSFSequence(members []*repository.LedgerRecord) bool {
	span := c.NSFSpanDays
	if span <= 0 {
		span = 14
	}
	var marked, clean []*repository.LedgerRecord
	for _, m := range members {
		if c.hasNSFMarker(m.RawDescription) {
			marked = append(marked, m)
		} else {
			clean = append(clean, m)
		}
	}
	if len(marked) == 0 || len(clean) == 0 {
		return false
	}
	for _, m := range marked {
		for _, cl := range clean {
			if cl.AmountCents == m.AmountCents && daysApart(cl.EventDate, m.EventDate) <= span {
				return true
			}
		}
	}
	return false
}

func (c *SequenceClassifier) hasNSFMarker(desc string) bool {
	up := strings.ToUpper(desc)
	for _, marker := range c.NSFMarkers {
		if strings.Contains(up, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}

// structurallyIdentical means the members came from the same table with the
// same normalized description and import batch: a double import.
func structurallyIdentical(members []*repository.LedgerRecord) bool {
	first := members[0]
	for _, m := range members[1:] {
		if m.SourceKind != first.SourceKind {
			return false
		}
		if m.NormalizedVendor != first.NormalizedVendor {
			return false
		}
		if !sameRef(m.BatchRef, first.BatchRef) {
			return false
		}
		if !m.EventDate.Equal(first.EventDate) {
			return false
		}
	}
	return true
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func lowestSourceID(members []*repository.LedgerRecord) *repository.LedgerRecord {
	sorted := append([]*repository.LedgerRecord(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SourceID < sorted[j].SourceID })
	return sorted[0]
}
