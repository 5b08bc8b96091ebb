package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
)

type reviewCmd struct {
	cfg config.Config

	out string
	top int
}

func (*reviewCmd) Name() string     { return "review" }
func (*reviewCmd) Synopsis() string { return "export the manual review queue as CSV" }
func (*reviewCmd) Usage() string {
	return `ledgermatch review [-out <path>] [-top N]

  Lists every ambiguous, unmatched and rejected-duplicate case with its top
  candidates and scores, for human adjudication. Writes to stdout by default.
`
}

func (p *reviewCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.out, "out", "", "Output path; stdout when empty.")
	f.IntVar(&p.top, "top", 0, "Number of candidates per case.")
}

func (p *reviewCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(p.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if p.top > 0 {
		a.review.TopN = p.top
	}

	out := os.Stdout
	if p.out != "" {
		file, err := os.Create(p.out)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		out = file
	}

	n, err := a.review.ExportCSV(ctx, out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if p.out != "" {
		fmt.Printf("exported %d cases to %s\n", n, p.out)
	}
	return subcommands.ExitSuccess
}
