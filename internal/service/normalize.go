package service

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/ledgermatch/internal/database/repository"
)

// RawRow is one loosely-typed row handed over by an origin import script.
// The import scripts only read their own format; all interpretation happens
// in Normalize.
type RawRow struct {
	SourceID    string
	Date        string
	Amount      string
	Description string
	Account     string
	Batch       string
}

// Normalizer converts source-specific rows into canonical LedgerRecords.
// Suffixes and aliases are configuration data, not code.
type Normalizer struct {
	VendorSuffixes []string
	VendorAliases  map[string]string
}

// date layouts accepted per source kind, most specific first
var dateLayouts = map[repository.SourceKind][]string{
	repository.SourceBank:    {time.DateOnly},
	repository.SourceReceipt: {"2/01/2006", "02/01/2006", time.DateOnly},
	repository.SourcePayment: {time.DateOnly, "2/01/2006"},
	repository.SourcePayroll: {time.DateOnly},
}

// amountSign maps kinds whose exports carry unsigned magnitudes to the signed
// convention (positive inflow, negative outflow). Bank lines are already signed.
var amountSign = map[repository.SourceKind]int64{
	repository.SourceBank:    1,
	repository.SourceReceipt: -1,
	repository.SourcePayment: 1,
	repository.SourcePayroll: -1,
}

// Normalize converts one raw row into a canonical LedgerRecord. Date or
// amount parse failures return *MalformedRecordError; the row must then be
// routed to the rejects log, never silently dropped.
func (n *Normalizer) Normalize(kind repository.SourceKind, row RawRow) (repository.LedgerRecord, error) {
	if strings.TrimSpace(row.SourceID) == "" {
		return repository.LedgerRecord{}, &MalformedRecordError{Field: "source_id", Value: row.SourceID,
			Err: fmt.Errorf("empty")}
	}

	date, err := parseEventDate(kind, row.Date)
	if err != nil {
		return repository.LedgerRecord{}, &MalformedRecordError{Field: "date", Value: row.Date, Err: err}
	}

	cents, err := parseAmountCents(row.Amount)
	if err != nil {
		return repository.LedgerRecord{}, &MalformedRecordError{Field: "amount", Value: row.Amount, Err: err}
	}
	cents *= amountSign[kind]

	vendor := n.NormalizeVendor(row.Description)

	rec := repository.LedgerRecord{
		ID:               recordID(kind, row.SourceID),
		SourceKind:       kind,
		SourceID:         strings.TrimSpace(row.SourceID),
		EventDate:        date,
		AmountCents:      cents,
		RawDescription:   strings.TrimSpace(row.Description),
		NormalizedVendor: vendor,
		AccountRef:       nullableStr(row.Account),
		BatchRef:         nullableStr(row.Batch),
	}
	rec.ContentHash = ContentHash(rec)
	return rec, nil
}

// NormalizeVendor uppercases, strips corporate suffixes, collapses whitespace
// and applies the alias table.
func (n *Normalizer) NormalizeVendor(desc string) string {
	up := strings.ToUpper(strings.TrimSpace(desc))
	words := strings.Fields(up)
	out := words[:0]
	for _, w := range words {
		trimmed := strings.Trim(w, ".,")
		if isSuffix(trimmed, n.VendorSuffixes) {
			continue
		}
		out = append(out, trimmed)
	}
	vendor := strings.Join(out, " ")
	if alias, ok := n.VendorAliases[vendor]; ok {
		return strings.ToUpper(alias)
	}
	return vendor
}

func isSuffix(w string, suffixes []string) bool {
	for _, s := range suffixes {
		if w == strings.ToUpper(s) {
			return true
		}
	}
	return false
}

// ContentHash is the sole idempotency key: a stable hash over the fields that
// identify the underlying event. Re-normalizing the same source row always
// produces the same hash, so repeated imports are no-ops.
func ContentHash(rec repository.LedgerRecord) string {
	account := ""
	if rec.AccountRef != nil {
		account = *rec.AccountRef
	}
	joined := strings.Join([]string{
		string(rec.SourceKind),
		rec.EventDate.Format(time.DateOnly),
		fmt.Sprintf("%d", rec.AmountCents),
		rec.NormalizedVendor,
		account,
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%x", sum[:])
}

func recordID(kind repository.SourceKind, sourceID string) string {
	key := string(kind) + ":" + strings.TrimSpace(sourceID)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func parseEventDate(kind repository.SourceKind, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	var lastErr error
	for _, layout := range dateLayouts[kind] {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// parseAmountCents parses a money string exactly, rounding to cents.
// Accepts "$1,234.56", "-20", "(220.50)" for negatives.
func parseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if neg {
		d = d.Neg()
	}
	return d.Round(2).Shift(2).IntPart(), nil
}

func nullableStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
