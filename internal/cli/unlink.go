package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
)

type unlinkCmd struct {
	cfg config.Config

	link   string
	reason string
}

func (*unlinkCmd) Name() string     { return "unlink" }
func (*unlinkCmd) Synopsis() string { return "break an existing link, with an audit trail" }
func (*unlinkCmd) Usage() string {
	return `ledgermatch unlink -link <id> -reason <text>

  The only way to clear a link_id once set. Member rows are snapshotted
  before the change and the operation is recorded in the audit log.
`
}

func (p *unlinkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.link, "link", "", "Link id to break.")
	f.StringVar(&p.reason, "reason", "", "Why this link is wrong.")
}

func (p *unlinkCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.link == "" || p.reason == "" {
		fmt.Fprintln(os.Stderr, "Error: -link and -reason are required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(p.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.coordinator.Unlink(ctx, p.link, p.reason); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("unlinked %s\n", p.link)
	return subcommands.ExitSuccess
}
