package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
	"github.com/jask/ledgermatch/internal/database/repository"
)

type ingestCmd struct {
	cfg config.Config

	kind    string
	file    string
	account string
	batch   string
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "import a CSV of ledger rows for one source kind" }
func (*ingestCmd) Usage() string {
	return `ledgermatch ingest -kind <BANK|RECEIPT|PAYMENT|PAYROLL> -file <csv> [-account <ref>] [-batch <ref>]

  Columns: source_id, date, amount, description[, account]. Malformed rows go
  to the rejects log; re-importing the same file is a no-op.
`
}

func (p *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.kind, "kind", "", "Source kind of the file.")
	f.StringVar(&p.file, "file", "", "Path to the CSV file.")
	f.StringVar(&p.account, "account", "", "Account reference applied to rows without one.")
	f.StringVar(&p.batch, "batch", "", "Import batch reference, used for duplicate-import detection.")
}

func (p *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	kind, ok := repository.ParseSourceKind(p.kind)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown source kind %q\n", p.kind)
		return subcommands.ExitUsageError
	}
	if p.file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		return subcommands.ExitUsageError
	}

	a, err := openApp(p.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	file, err := os.Open(p.file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	res, err := a.ingester.ImportCSV(ctx, kind, file, p.account, p.batch)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, rowErr := range res.Errors {
		fmt.Fprintln(os.Stderr, rowErr)
	}
	fmt.Printf("imported %d, skipped %d duplicates, rejected %d malformed\n",
		res.Imported, res.Skipped, res.Rejected)
	return subcommands.ExitSuccess
}
