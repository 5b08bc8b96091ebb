package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermatch/internal/database/repository"
)

func TestReviewExportCSV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)
	c := testCoordinator(t, db)

	// a tie and a no-candidate record both land in the queue; the linked pair
	// does not
	tied := rec(repository.SourcePayment, "p1", "2012-04-10", 22050, "BRANCH DEPOSIT")
	b1 := rec(repository.SourceBank, "b1", "2012-04-10", 22150, "BRANCH DEPOSIT A")
	b2 := rec(repository.SourceBank, "b2", "2012-04-10", 21950, "BRANCH DEPOSIT B")
	stray := rec(repository.SourcePayment, "p2", "2014-01-01", 999, "NO COUNTERPART")
	linked := rec(repository.SourcePayment, "p3", "2013-07-19", 91800, "Erles Auto Repair")
	counterpart := rec(repository.SourceBank, "b3", "2013-07-19", 91800, "ERLES AUTO REPAIR")
	insertAll(t, c.Records, tied, b1, b2, stray, linked, counterpart)

	_, err := c.Resolve(ctx, runParams(false))
	require.NoError(t, err)

	svc := &ReviewService{Records: c.Records, Decisions: c.Decisions, TopN: 3}
	var buf bytes.Buffer
	n, err := svc.ExportCSV(ctx, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	// header + two candidate rows for the tie + one empty-candidate row
	require.Len(t, rows, 4)
	require.Equal(t, "record_id", rows[0][0])

	byRecord := map[string][][]string{}
	for _, row := range rows[1:] {
		byRecord[row[2]] = append(byRecord[row[2]], row)
	}
	require.Len(t, byRecord["p1"], 2)
	require.Equal(t, "AMBIGUOUS", byRecord["p1"][0][6])
	require.Equal(t, "70", byRecord["p1"][0][9])
	require.Len(t, byRecord["p2"], 1)
	require.Equal(t, "UNMATCHED", byRecord["p2"][0][6])
	require.Empty(t, byRecord["p2"][0][8])
	require.NotContains(t, byRecord, "p3")
}

func TestReviewTopNCapsCandidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)
	c := testCoordinator(t, db)

	payment := rec(repository.SourcePayment, "p1", "2012-04-10", 22050, "BRANCH DEPOSIT")
	insertAll(t, c.Records, payment)
	for _, sid := range []string{"b1", "b2", "b3", "b4"} {
		b := rec(repository.SourceBank, sid, "2012-04-10", 22150, "BRANCH DEPOSIT "+sid)
		insertAll(t, c.Records, b)
	}

	_, err := c.Resolve(ctx, runParams(false))
	require.NoError(t, err)

	svc := &ReviewService{Records: c.Records, Decisions: c.Decisions, TopN: 2}
	var buf bytes.Buffer
	n, err := svc.ExportCSV(ctx, &buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 of the 4 tied candidates
}
