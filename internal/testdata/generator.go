package testdata

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jask/ledgermatch/internal/database/repository"
	"github.com/jask/ledgermatch/internal/service"
)

// vendors whose lines appear on both sides of a reconciliation
var vendors = []string{
	"ERLES AUTO REPAIR LTD",
	"NORTHSIDE PLUMBING INC",
	"PRAIRIE OFFICE SUPPLY",
	"WESTGATE FUEL CO",
	"CUSTOMER PAYMENT",
}

// Seed populates the ledger with sample bank and payment records that
// exercise every resolution path: exact matches, window matches, an NSF
// retry cluster, a double import and a few strays.
func Seed(ctx context.Context, records *repository.RecordRepo, n *service.Normalizer) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	base := time.Now().UTC().AddDate(0, -1, 0)
	batch := "seed-" + base.Format("2006-01")

	insert := func(kind repository.SourceKind, sourceID string, date time.Time, amount, desc string) error {
		rec, err := n.Normalize(kind, service.RawRow{
			SourceID:    sourceID,
			Date:        date.Format(time.DateOnly),
			Amount:      amount,
			Description: desc,
			Account:     "chequing",
			Batch:       batch,
		})
		if err != nil {
			return err
		}
		return records.Insert(ctx, rec)
	}

	seq := 0
	next := func(prefix string) string {
		seq++
		return fmt.Sprintf("%s%04d", prefix, seq)
	}

	// matched pairs, some offset by a day or two
	for i := 0; i < 12; i++ {
		cents := int64(rng.Intn(95000) + 500)
		amount := fmt.Sprintf("%d.%02d", cents/100, cents%100)
		vendor := vendors[rng.Intn(len(vendors))]
		day := base.AddDate(0, 0, rng.Intn(20))
		offset := rng.Intn(3)
		if err := insert(repository.SourcePayment, next("p"), day, amount, vendor); err != nil {
			return err
		}
		if err := insert(repository.SourceBank, next("b"), day.AddDate(0, 0, offset), amount, vendor); err != nil {
			return err
		}
	}

	// NSF charge plus clean retry two days later
	nsfDay := base.AddDate(0, 0, 5)
	if err := insert(repository.SourceBank, next("b"), nsfDay, "-220.50", "CHEQUE 1042 NSF RETURNED"); err != nil {
		return err
	}
	if err := insert(repository.SourceBank, next("b"), nsfDay.AddDate(0, 0, 2), "-220.50", "CHEQUE 1042"); err != nil {
		return err
	}

	// the same bank line imported twice under consecutive ids
	dupDay := base.AddDate(0, 0, 9)
	if err := insert(repository.SourceBank, "b9001", dupDay, "184.00", "CUSTOMER PAYMENT"); err != nil {
		return err
	}
	if err := insert(repository.SourceBank, "b9002", dupDay, "184.00", "CUSTOMER PAYMENT"); err != nil {
		return err
	}
	if err := insert(repository.SourcePayment, next("p"), dupDay, "184.00", "CUSTOMER PAYMENT"); err != nil {
		return err
	}

	// strays with no counterpart
	for i := 0; i < 3; i++ {
		cents := int64(rng.Intn(40000) + 100000)
		amount := fmt.Sprintf("%d.%02d", cents/100, cents%100)
		if err := insert(repository.SourcePayment, next("p"), base.AddDate(0, 0, rng.Intn(20)),
			amount, vendors[rng.Intn(len(vendors))]); err != nil {
			return err
		}
	}
	return nil
}
