package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
)

type purgeCmd struct {
	cfg config.Config

	record string
}

func (*purgeCmd) Name() string     { return "purge" }
func (*purgeCmd) Synopsis() string { return "delete a confirmed duplicate import" }
func (*purgeCmd) Usage() string {
	return `ledgermatch purge -record <id>

  Deletes a record the engine routed to REJECTED_DUPLICATE. This is the
  explicit operator confirmation; nothing is ever deleted automatically.
`
}

func (p *purgeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.record, "record", "", "Record id to delete.")
}

func (p *purgeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.record == "" {
		fmt.Fprintln(os.Stderr, "Error: -record is required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(p.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.maintenance.ConfirmDuplicate(ctx, p.record); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("deleted duplicate %s\n", p.record)
	return subcommands.ExitSuccess
}
