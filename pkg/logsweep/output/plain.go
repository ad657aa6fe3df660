package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// PlainFormatter prints the summary sentence followed by an unstyled
// per-rule table, suitable for scripts and cron mail.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, s *types.RunSummary) error {
	w.WriteString(s.Line())
	w.WriteByte('\n')

	if len(s.Rules) == 0 {
		return nil
	}

	w.WriteByte('\n')
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "RULE\tOUTCOME\tARCHIVED\tDELETED\tDENIED\tFAILED\tELAPSED"); err != nil {
		return err
	}
	for _, r := range s.Rules {
		outcome := string(r.Outcome)
		if r.DryRun && r.Outcome == types.OutcomeOK {
			outcome += " (dry run)"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			ruleLabel(r), outcome, r.Archived, r.ArchivesDeleted, r.AccessDenied, r.Failures,
			types.FormatElapsed(r.Elapsed)); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, r := range s.Rules {
		if r.Reason != "" {
			fmt.Fprintf(w, "%s: %s\n", ruleLabel(r), r.Reason)
		}
	}
	return nil
}

func ruleLabel(r types.RuleSummary) string {
	if r.Name != "" {
		return r.Name
	}
	return r.Location
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
