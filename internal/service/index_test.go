package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermatch/internal/database/repository"
)

func TestIndexLookupWindow(t *testing.T) {
	t.Parallel()
	records := []repository.LedgerRecord{
		rec(repository.SourceBank, "b1", "2012-04-10", 22050, "DEPOSIT"),
		rec(repository.SourceBank, "b2", "2012-04-12", 22050, "DEPOSIT"),
		rec(repository.SourceBank, "b3", "2012-05-20", 22050, "DEPOSIT"),
		rec(repository.SourceBank, "b4", "2012-04-10", 91800, "ERLES AUTO"),
	}
	idx := BuildIndex(records)
	require.Equal(t, 4, idx.Len())

	got := idx.Lookup(22050, day("2012-04-10"), 3, 0, "")
	require.Len(t, got, 2)
	require.Equal(t, "b1", got[0].SourceID)
	require.Equal(t, "b2", got[1].SourceID)

	// wide window picks up the distant record too
	got = idx.Lookup(22050, day("2012-04-10"), 60, 0, "")
	require.Len(t, got, 3)

	// date filter disabled
	got = idx.Lookup(22050, day("2012-04-10"), -1, 0, "")
	require.Len(t, got, 3)
}

func TestIndexLookupAmountTolerance(t *testing.T) {
	t.Parallel()
	records := []repository.LedgerRecord{
		rec(repository.SourceBank, "b1", "2012-04-10", 22050, "A"),
		rec(repository.SourceBank, "b2", "2012-04-10", 22350, "B"),
		rec(repository.SourceBank, "b3", "2012-04-10", 30000, "C"),
	}
	idx := BuildIndex(records)

	got := idx.Lookup(22050, day("2012-04-10"), 0, 500, "")
	require.Len(t, got, 2)

	got = idx.Lookup(22050, day("2012-04-10"), 0, 0, "")
	require.Len(t, got, 1)
	require.Equal(t, "b1", got[0].SourceID)
}

func TestIndexLookupAccountFilter(t *testing.T) {
	t.Parallel()
	a := rec(repository.SourceBank, "b1", "2012-04-10", 500, "X")
	acct := "chequing"
	a.AccountRef = &acct
	b := rec(repository.SourceBank, "b2", "2012-04-10", 500, "X")
	idx := BuildIndex([]repository.LedgerRecord{a, b})

	got := idx.Lookup(500, day("2012-04-10"), 0, 0, "chequing")
	require.Len(t, got, 1)
	require.Equal(t, "b1", got[0].SourceID)
}

func TestIndexRemove(t *testing.T) {
	t.Parallel()
	records := []repository.LedgerRecord{
		rec(repository.SourceBank, "b1", "2012-04-10", 22050, "A"),
		rec(repository.SourceBank, "b2", "2012-04-11", 22050, "B"),
	}
	idx := BuildIndex(records)

	id := records[0].ID
	require.True(t, idx.Contains(id))
	idx.Remove(id)
	require.False(t, idx.Contains(id))
	require.Equal(t, 1, idx.Len())

	got := idx.Lookup(22050, day("2012-04-10"), 3, 0, "")
	require.Len(t, got, 1)
	require.Equal(t, "b2", got[0].SourceID)

	// removing the last bucket member clears the amount key entirely
	idx.Remove(records[1].ID)
	require.Equal(t, 0, idx.Len())
	require.Empty(t, idx.Lookup(22050, day("2012-04-10"), 3, 0, ""))

	// removing an unknown id is a no-op
	idx.Remove("nope")
}
