package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
	"github.com/jask/ledgermatch/internal/testdata"
)

type seedCmd struct {
	cfg config.Config
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "populate the ledger with sample records" }
func (*seedCmd) Usage() string {
	return `ledgermatch seed

  Inserts sample bank and payment records covering every resolution path,
  for trying out reconcile against a throwaway database.
`
}

func (*seedCmd) SetFlags(*flag.FlagSet) {}

func (s *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(s.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := testdata.Seed(ctx, a.records, a.normalizer); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println("seeded sample ledger records")
	return subcommands.ExitSuccess
}
