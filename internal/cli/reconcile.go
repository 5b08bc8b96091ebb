package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
	"github.com/jask/ledgermatch/internal/database/repository"
	"github.com/jask/ledgermatch/internal/service"
)

type reconcileCmd struct {
	cfg config.Config

	source     string
	target     string
	account    string
	dateWindow int
	tolerance  int64
	write      bool
	dryRun     bool
	reviewOut  string
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "match unlinked records between two source kinds" }
func (*reconcileCmd) Usage() string {
	return `ledgermatch reconcile -source <kind> -target <kind> [-date-window N] [-amount-tolerance X] [-dry-run|-write] [-account <ref>]

  Finds counterparts for every unlinked source record. Unambiguous best
  matches are linked; ties and low-confidence matches go to the review queue.
  Exit code is zero even when items remain ambiguous.
`
}

func (p *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.source, "source", "", "Source kind to resolve.")
	f.StringVar(&p.target, "target", "", "Target kind to match against.")
	f.StringVar(&p.account, "account", "", "Restrict the run to one account reference.")
	f.IntVar(&p.dateWindow, "date-window", 0, "Override the date window in days.")
	f.Int64Var(&p.tolerance, "amount-tolerance", 0, "Override the amount tolerance in cents.")
	f.BoolVar(&p.write, "write", false, "Commit decisions.")
	f.BoolVar(&p.dryRun, "dry-run", false, "Compute decisions without writing (default).")
	f.StringVar(&p.reviewOut, "review-out", "", "Write the manual-review CSV here after a write run.")
}

func (p *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	source, ok := repository.ParseSourceKind(p.source)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown source kind %q\n", p.source)
		return subcommands.ExitUsageError
	}
	target, ok := repository.ParseSourceKind(p.target)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown target kind %q\n", p.target)
		return subcommands.ExitUsageError
	}
	if p.write && p.dryRun {
		fmt.Fprintln(os.Stderr, "Error: -write and -dry-run cannot be used together.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(p.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	scorer := service.ScorerConfig{
		DateWindowDays:       p.cfg.Matching.DateWindowDays,
		AmountToleranceCents: p.cfg.Matching.AmountToleranceCents,
		FallbackMinDays:      p.cfg.Matching.FallbackMinDays,
		FallbackMaxDays:      p.cfg.Matching.FallbackMaxDays,
	}
	if p.dateWindow > 0 {
		scorer.DateWindowDays = p.dateWindow
	}
	if p.tolerance > 0 {
		scorer.AmountToleranceCents = p.tolerance
	}

	res, err := a.coordinator.Resolve(ctx, service.RunParams{
		Source:     source,
		Target:     target,
		AccountRef: p.account,
		Scorer:     scorer,
		DryRun:     !p.write,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	fmt.Println(renderSummary(res))

	if p.write {
		out := p.reviewOut
		if out == "" {
			out = filepath.Join(filepath.Dir(p.cfg.Database.Path), "review-"+res.RunID+".csv")
		}
		if n, err := writeReview(ctx, a, out); err != nil {
			fmt.Fprintf(os.Stderr, "review export: %v\n", err)
		} else if n > 0 {
			fmt.Printf("%d cases awaiting review: %s\n", n, out)
		}
	}
	return subcommands.ExitSuccess
}

func writeReview(ctx context.Context, a *app, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return a.review.ExportCSV(ctx, file)
}

var (
	summaryTitle = lipgloss.NewStyle().Bold(true)
	summaryCount = lipgloss.NewStyle().Width(6).Align(lipgloss.Right)
	summaryMuted = lipgloss.NewStyle().Faint(true)
)

func renderSummary(res *service.RunResult) string {
	mode := "write"
	if res.DryRun {
		mode = "dry-run"
	}
	rows := []struct {
		label string
		n     int
	}{
		{"auto-linked", res.AutoLinked},
		{"ambiguous", res.Ambiguous},
		{"unmatched", res.Unmatched},
		{"rejected duplicates", res.RejectedDuplicate},
	}
	out := summaryTitle.Render(fmt.Sprintf("run %s (%s)", res.RunID, mode)) + "\n"
	out += summaryMuted.Render(fmt.Sprintf("%d source records against %d targets", res.SourceRecords, res.TargetRecords)) + "\n"
	for _, r := range rows {
		out += summaryCount.Render(fmt.Sprint(r.n)) + " " + r.label + "\n"
	}
	return out
}
