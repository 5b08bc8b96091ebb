package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
	"github.com/jask/ledgermatch/internal/database/repository"
)

type auditCmd struct {
	cfg config.Config

	link   string
	run    string
	record string
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "trace why records were linked or what a run changed" }
func (*auditCmd) Usage() string {
	return `ledgermatch audit -link <id> | -run <id> | -record <id>

  Answers "why was X linked to Y" and "what changed in run N" from the
  append-only audit log, without re-deriving any scores.
`
}

func (p *auditCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.link, "link", "", "Show the records and audit trail of one link.")
	f.StringVar(&p.run, "run", "", "Show every mutation of one run.")
	f.StringVar(&p.record, "record", "", "Show every audit row naming one record.")
}

func (p *auditCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	set := 0
	for _, v := range []string{p.link, p.run, p.record} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -link, -run, -record is required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(p.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	switch {
	case p.link != "":
		return p.byLink(ctx, a)
	case p.run != "":
		entries, err := a.audit.ByRun(ctx, p.run)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		printEntries(entries)
	case p.record != "":
		entries, err := a.audit.ByRecord(ctx, p.record)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		printEntries(entries)
	}
	return subcommands.ExitSuccess
}

func (p *auditCmd) byLink(ctx context.Context, a *app) subcommands.ExitStatus {
	members, err := a.records.ByLink(ctx, p.link)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if len(members) == 0 {
		fmt.Fprintf(os.Stderr, "link %s not found\n", p.link)
		return subcommands.ExitFailure
	}
	for _, m := range members {
		fmt.Printf("%s %s %s %s %d %s\n", m.ID, m.SourceKind, m.SourceID,
			m.EventDate.Format(time.DateOnly), m.AmountCents, m.RawDescription)
	}
	// the audit rows that explain the link, via either member
	seen := map[int64]bool{}
	for _, m := range members {
		entries, err := a.audit.ByRecord(ctx, m.ID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		for _, e := range entries {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			printEntry(e)
		}
	}
	return subcommands.ExitSuccess
}

func printEntries(entries []repository.AuditEntry) {
	for _, e := range entries {
		printEntry(e)
	}
}

func printEntry(e repository.AuditEntry) {
	score := ""
	if e.Score != nil {
		score = fmt.Sprintf(" score=%d", *e.Score)
	}
	fmt.Printf("%s run=%s actor=%s %s [%s]%s %s\n",
		e.CreatedAt.Format(time.RFC3339), e.RunID, e.Actor, e.Decision,
		strings.Join(e.RecordIDs, ", "), score, e.Reason)
}
