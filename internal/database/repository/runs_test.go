package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermatch/internal/database"
)

func repoDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

func TestRunLockExclusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := NewRunRepo(repoDB(t))

	key := LockKey(SourcePayment, SourceBank, "chequing")
	require.Equal(t, "PAYMENT|BANK|chequing", key)

	require.NoError(t, runs.AcquireLock(ctx, key, "run-1"))
	require.ErrorIs(t, runs.AcquireLock(ctx, key, "run-2"), ErrLockHeld)

	// a different scope is free
	other := LockKey(SourcePayment, SourceBank, "savings")
	require.NoError(t, runs.AcquireLock(ctx, other, "run-2"))

	// releasing with the wrong owner leaves the lock in place
	require.NoError(t, runs.ReleaseLock(ctx, key, "run-2"))
	require.ErrorIs(t, runs.AcquireLock(ctx, key, "run-3"), ErrLockHeld)

	require.NoError(t, runs.ReleaseLock(ctx, key, "run-1"))
	require.NoError(t, runs.AcquireLock(ctx, key, "run-3"))
}

func TestRunInsertFinishGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := NewRunRepo(repoDB(t))

	account := "chequing"
	run := Run{
		ID: "run-1", SourceKind: SourcePayment, TargetKind: SourceBank,
		AccountRef: &account, DryRun: true,
	}
	require.NoError(t, runs.Insert(ctx, run))

	got, err := runs.Get(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.DryRun)
	require.Nil(t, got.FinishedAt)
	require.Equal(t, "chequing", *got.AccountRef)

	run.AutoLinked = 3
	run.Ambiguous = 1
	run.RejectedDuplicate = 2
	require.NoError(t, runs.Finish(ctx, run))

	got, err = runs.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 3, got.AutoLinked)
	require.Equal(t, 1, got.Ambiguous)
	require.Equal(t, 2, got.RejectedDuplicate)
	require.NotNil(t, got.FinishedAt)

	missing, err := runs.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}
