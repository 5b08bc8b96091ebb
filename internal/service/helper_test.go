package service

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgermatch/internal/database"
	"github.com/jask/ledgermatch/internal/database/repository"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

func testNormalizer() *Normalizer {
	return &Normalizer{VendorSuffixes: []string{"LTD", "INC", "CORP", "CO", "LLC"}}
}

func testClassifier() *SequenceClassifier {
	return &SequenceClassifier{
		NSFMarkers:  []string{"NSF", "RETURNED", "REVERSAL", "INSUFFICIENT FUNDS"},
		NSFSpanDays: 14,
	}
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func rec(kind repository.SourceKind, sourceID, date string, cents int64, desc string) repository.LedgerRecord {
	r := repository.LedgerRecord{
		SourceKind:       kind,
		SourceID:         sourceID,
		EventDate:        day(date),
		AmountCents:      cents,
		RawDescription:   desc,
		NormalizedVendor: testNormalizer().NormalizeVendor(desc),
	}
	r.ID = string(kind) + ":" + sourceID
	r.ContentHash = ContentHash(r)
	return r
}
