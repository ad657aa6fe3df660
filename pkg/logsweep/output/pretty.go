package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/logsweep/pkg/logsweep/types"
)

// PrettyFormatter renders the summary with colour for terminals.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, s *types.RunSummary) error {
	w.WriteString(f.formatHeader(s))
	w.WriteString("\n")

	if len(s.Rules) == 0 {
		w.WriteString(MutedStyle.Render("  No rules ran"))
		w.WriteString("\n")
		return nil
	}

	w.WriteString(f.formatRules(s.Rules))
	return nil
}

func (f *PrettyFormatter) formatHeader(s *types.RunSummary) string {
	title := TitleStyle.Render("logsweep")
	if s.DryRun {
		title += " " + WarningStyle.Render("(dry run)")
	}

	field := func(label string, value int, style lipgloss.Style) string {
		return LabelStyle.Render(label+":") + " " + style.Render(fmt.Sprintf("%d", value))
	}

	denied := ValueStyle
	if s.AccessDenied > 0 {
		denied = WarningStyle
	}
	failed := ValueStyle
	if s.RulesFailed > 0 {
		failed = ErrorStyle
	}

	lines := []string{
		title,
		strings.Join([]string{
			field("Archived", s.Archived, SuccessStyle),
			field("Deleted", s.ArchivesDeleted, SuccessStyle),
			field("Denied", s.AccessDenied, denied),
		}, "  "),
		strings.Join([]string{
			field("Rules", s.RulesRun, ValueStyle),
			field("Skipped", s.RulesSkipped, ValueStyle),
			field("Failed", s.RulesFailed, failed),
			LabelStyle.Render("Elapsed:") + " " + ValueStyle.Render(types.FormatElapsed(s.Elapsed)),
		}, "  "),
	}
	return SummaryBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatRules(rules []types.RuleSummary) string {
	width := len("RULE")
	for _, r := range rules {
		width = max(width, lipgloss.Width(ruleLabel(r)))
	}

	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(TableHeaderStyle.Render(padRight("RULE", width) + "  " + padRight("OUTCOME", 9) + "  ARCHIVED  DELETED"))
	sb.WriteString("\n")

	for _, r := range rules {
		sb.WriteString("  ")
		sb.WriteString(ValueStyle.Render(padRight(ruleLabel(r), width)))
		sb.WriteString("  ")
		sb.WriteString(outcomeStyle(r.Outcome).Render(padRight(string(r.Outcome), 9)))
		sb.WriteString(fmt.Sprintf("  %8d  %7d", r.Archived, r.ArchivesDeleted))
		if r.Reason != "" {
			sb.WriteString("  ")
			sb.WriteString(MutedStyle.Render(r.Reason))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func outcomeStyle(o types.RuleOutcome) lipgloss.Style {
	switch o {
	case types.OutcomeOK:
		return SuccessStyle
	case types.OutcomeSkipped:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
