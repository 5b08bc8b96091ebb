package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermatch/internal/database/repository"
)

func testIngest(t *testing.T) (*IngestService, *repository.RecordRepo) {
	t.Helper()
	db := testDB(t)
	repo := repository.NewRecordRepo(db)
	return &IngestService{Records: repo, Normalizer: testNormalizer()}, repo
}

func TestImportCSVBank(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := testIngest(t)

	input := strings.Join([]string{
		`1001,2013-07-19,-918.00,ERLES AUTO REPAIR LTD`,
		`1002,2013-07-22,"1,250.00",BRANCH DEPOSIT`,
	}, "\n")

	res, err := svc.ImportCSV(ctx, repository.SourceBank, strings.NewReader(input), "chequing", "bank-2013.csv")
	require.NoError(t, err)
	require.Equal(t, 2, res.Imported)
	require.Zero(t, res.Skipped)
	require.Zero(t, res.Rejected)

	recs, err := repo.Unlinked(ctx, repository.SourceBank, "chequing")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, int64(-91800), recs[0].AmountCents)
	require.Equal(t, "ERLES AUTO REPAIR", recs[0].NormalizedVendor)
	require.Equal(t, int64(125000), recs[1].AmountCents)
	require.NotNil(t, recs[0].BatchRef)
	require.Equal(t, "bank-2013.csv", *recs[0].BatchRef)
}

func TestImportCSVReimportSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := testIngest(t)

	input := `1001,2013-07-19,-918.00,ERLES AUTO REPAIR`

	res, err := svc.ImportCSV(ctx, repository.SourceBank, strings.NewReader(input), "chequing", "a.csv")
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)

	// same file again: nothing imported, nothing errored
	res, err = svc.ImportCSV(ctx, repository.SourceBank, strings.NewReader(input), "chequing", "a.csv")
	require.NoError(t, err)
	require.Zero(t, res.Imported)
	require.Equal(t, 1, res.Skipped)

	// same event re-exported under a new source id is still a no-op
	renumbered := `9001,2013-07-19,-918.00,ERLES AUTO REPAIR`
	res, err = svc.ImportCSV(ctx, repository.SourceBank, strings.NewReader(renumbered), "chequing", "b.csv")
	require.NoError(t, err)
	require.Zero(t, res.Imported)
	require.Equal(t, 1, res.Skipped)
}

func TestImportCSVMalformedRowsRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := testIngest(t)

	input := strings.Join([]string{
		`1001,2013-07-19,-918.00,ERLES AUTO REPAIR`,
		`1002,not-a-date,5.00,CORNER STORE`,
		`1003,2013-07-20,not-money,CORNER STORE`,
		`1004,2013-07-21`,
	}, "\n")

	res, err := svc.ImportCSV(ctx, repository.SourceBank, strings.NewReader(input), "", "")
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 3, res.Rejected)
	require.Len(t, res.Errors, 3)
}

func TestImportCSVReceiptSignAndDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := testIngest(t)

	// receipts carry unsigned magnitudes and day-first dates
	input := `r1,19/07/2013,918.00,Erles Auto Repair`

	res, err := svc.ImportCSV(ctx, repository.SourceReceipt, strings.NewReader(input), "", "")
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)

	recs, err := repo.Unlinked(ctx, repository.SourceReceipt, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, int64(-91800), recs[0].AmountCents)
	require.Equal(t, "2013-07-19", recs[0].EventDate.Format("2006-01-02"))
}

func TestImportCSVAccountColumnOverride(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := testIngest(t)

	input := strings.Join([]string{
		`1001,2013-07-19,-10.00,COFFEE,savings`,
		`1002,2013-07-19,-20.00,LUNCH`,
	}, "\n")

	res, err := svc.ImportCSV(ctx, repository.SourceBank, strings.NewReader(input), "chequing", "")
	require.NoError(t, err)
	require.Equal(t, 2, res.Imported)

	fromSavings, err := repo.Unlinked(ctx, repository.SourceBank, "savings")
	require.NoError(t, err)
	require.Len(t, fromSavings, 1)
	require.Equal(t, "1001", fromSavings[0].SourceID)

	fromChequing, err := repo.Unlinked(ctx, repository.SourceBank, "chequing")
	require.NoError(t, err)
	require.Len(t, fromChequing, 1)
	require.Equal(t, "1002", fromChequing[0].SourceID)
}
