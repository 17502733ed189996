package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// SummarySink prints a human-readable run summary to a terminal.
type SummarySink struct {
	Out io.Writer
}

// Consume prints one line per record plus aggregate counters.
func (s *SummarySink) Consume(r *RunReport) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(s.Out, "\n=== remedian run %s ===\n", r.RunID)
	if r.DryRun {
		fmt.Fprintf(s.Out, "%s\n", yellow("dry-run: no changes were made"))
	}

	for _, rec := range r.Records {
		label := green(rec.Verdict)
		switch rec.Verdict {
		case "violated":
			label = red(rec.Verdict)
		case "unknown":
			label = yellow(rec.Verdict)
		}
		fmt.Fprintf(s.Out, "  %-28s %-14s %s", rec.IndicatorID, rec.Scope, label)
		if rec.Outcome != "" {
			fmt.Fprintf(s.Out, " → %s", rec.Outcome)
		}
		fmt.Fprintln(s.Out)
	}

	for _, hit := range r.SigmaHits {
		fmt.Fprintf(s.Out, "  sigma: %s (%s) via %s\n", hit.RuleTitle, hit.Level, hit.IndicatorID)
	}

	fmt.Fprintf(s.Out, "clean %d | violated %d | remediated %d | skipped %d | failed %d | unknown %d\n",
		r.Clean, r.Violated, r.Remediated, r.Skipped, r.Failed, r.Unknown)
	return nil
}
