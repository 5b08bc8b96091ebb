package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermatch/internal/database/repository"
)

func TestConfirmDuplicateDeletesRoutedRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)
	c := testCoordinator(t, db)

	batch := "bank-2012-04.csv"
	payment := rec(repository.SourcePayment, "p1", "2012-04-10", 22050, "CUSTOMER PAYMENT")
	dup1 := rec(repository.SourceBank, "1001", "2012-04-10", 22050, "CUSTOMER PAYMENT")
	dup1.BatchRef = &batch
	dup2 := rec(repository.SourceBank, "1002", "2012-04-10", 22050, "CUSTOMER PAYMENT")
	dup2.BatchRef = &batch
	insertAll(t, c.Records, payment, dup1, dup2)

	_, err := c.Resolve(ctx, runParams(false))
	require.NoError(t, err)

	m := &MaintenanceService{DB: db, Records: c.Records, Decisions: c.Decisions, Audit: c.Audit, Actor: "operator"}
	require.NoError(t, m.ConfirmDuplicate(ctx, dup2.ID))

	gone, err := c.Records.Get(ctx, dup2.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	entries, err := c.Audit.ByRecord(ctx, dup2.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "DELETED_DUPLICATE", entries[0].Decision)
	require.NotNil(t, entries[0].BackupID)
}

func TestConfirmDuplicateRefusals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)
	c := testCoordinator(t, db)
	m := &MaintenanceService{DB: db, Records: c.Records, Decisions: c.Decisions, Audit: c.Audit, Actor: "operator"}

	// unknown record
	require.Error(t, m.ConfirmDuplicate(ctx, "no-such-id"))

	// record with no rejection decision
	plain := rec(repository.SourceBank, "b1", "2012-04-10", 500, "COFFEE")
	insertAll(t, c.Records, plain)
	require.Error(t, m.ConfirmDuplicate(ctx, plain.ID))

	// linked record, even one wrongly routed earlier, is never deleted
	p := rec(repository.SourcePayment, "p1", "2013-07-19", 91800, "Erles Auto Repair")
	b := rec(repository.SourceBank, "b2", "2013-07-19", 91800, "ERLES AUTO REPAIR")
	insertAll(t, c.Records, p, b)
	_, err := c.Resolve(ctx, runParams(false))
	require.NoError(t, err)
	require.Error(t, m.ConfirmDuplicate(ctx, p.ID))
}

func TestResetClearsAllTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)
	c := testCoordinator(t, db)

	p := rec(repository.SourcePayment, "p1", "2013-07-19", 91800, "Erles Auto Repair")
	b := rec(repository.SourceBank, "b1", "2013-07-19", 91800, "ERLES AUTO REPAIR")
	insertAll(t, c.Records, p, b)
	_, err := c.Resolve(ctx, runParams(false))
	require.NoError(t, err)

	m := &MaintenanceService{DB: db, Records: c.Records, Decisions: c.Decisions, Audit: c.Audit, Actor: "operator"}
	require.NoError(t, m.Reset(ctx))

	recs, err := c.Records.Unlinked(ctx, repository.SourceBank, "")
	require.NoError(t, err)
	require.Empty(t, recs)
	n, err := c.Audit.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
