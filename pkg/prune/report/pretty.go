package report

import (
	"bytes"
	"fmt"
	"strings"
)

// PrettyFormatter renders the report with colors and styling for terminal
// display.
type PrettyFormatter struct{}

// Format writes the formatted report to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if len(r.Actions) > 0 {
		w.WriteString(f.formatActions(r))
	}
	if len(r.Skipped) > 0 {
		w.WriteString(f.formatSkipped(r))
	}
	w.WriteString(f.formatFooter(r))

	if len(r.Issues) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatIssues(r))
	}
	if r.Error != "" {
		w.WriteString("\n")
		w.WriteString(ErrorBox.Render(ErrorStyle.Render("Error: ") + ValueStyle.Render(r.Error)))
		w.WriteString("\n")
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%s %s",
		LabelStyle.Render("Project:"), ValueStyle.Render(r.Root)))

	info := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Session:"), MutedStyle.Render(r.SessionID)),
		fmt.Sprintf("%s %s", LabelStyle.Render("Scanned:"),
			ValueStyle.Render(fmt.Sprintf("%d files", r.FilesScanned))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Orphans:"),
			ValueStyle.Render(fmt.Sprintf("%d", r.Orphans))),
	}
	lines = append(lines, strings.Join(info, "  "))

	if r.DryRun {
		lines = append(lines, WarningStyle.Bold(true).Render("Dry run: no files were moved"))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatActions(r *Report) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Approved actions"))
	b.WriteString("\n")
	for _, a := range r.Actions {
		marker := WarningStyle.Render("~")
		if a.Archived {
			marker = SuccessStyle.Render("✓")
		}
		b.WriteString(fmt.Sprintf("  %s %s %s %s\n",
			marker,
			PathStyle.Render(a.Path),
			SizeStyle.Render(a.SizeHuman),
			MutedStyle.Render(fmt.Sprintf("(%.2f, %s)", a.Confidence, a.Reason))))
	}
	b.WriteString("\n")
	return b.String()
}

func (f *PrettyFormatter) formatSkipped(r *Report) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Skipped"))
	b.WriteString("\n")
	for _, a := range r.Skipped {
		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			MutedStyle.Render("-"),
			MutedStyle.Render(a.Path),
			MutedStyle.Render(fmt.Sprintf("(%.2f, %s)", a.Confidence, a.Reason))))
	}
	b.WriteString("\n")
	return b.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Archived:"),
			ValueStyle.Render(fmt.Sprintf("%d of %d proposed", r.Archived, r.Proposed))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Reclaimed:"),
			SizeStyle.Render(r.SpaceReclaimed)),
	}
	if r.Verdict != "" {
		verdict := SuccessStyle.Render(r.Verdict)
		if r.Verdict != "passed" {
			verdict = ErrorStyle.Render(r.Verdict)
		}
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Tests:"), verdict))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatIssues(r *Report) string {
	var b strings.Builder
	b.WriteString(WarningStyle.Bold(true).Render(fmt.Sprintf("%d scan issue(s)", len(r.Issues))))
	b.WriteString("\n")
	for _, issue := range r.Issues {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			MutedStyle.Render(issue.Path), WarningStyle.Render(issue.Error)))
	}
	return b.String()
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
