package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alekspetrov/qa-handoff/internal/handoff"
	"github.com/alekspetrov/qa-handoff/internal/journal"
)

// Color palette (matches the onboarding screens)
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7eb8da")) // steel blue

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c9d1d9")) // light gray

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e")) // mid gray

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7ec699")) // sage green

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d48a8a")) // dusty rose

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a054")) // amber

	commentStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d4450")). // slate
			Padding(0, 1)
)

func outcomeStyle(outcome string) lipgloss.Style {
	switch handoff.Outcome(outcome) {
	case handoff.OutcomeSubmitted:
		return successStyle
	case handoff.OutcomeDryRun:
		return warnStyle
	default:
		return failStyle
	}
}

func field(label, value string) string {
	return fmt.Sprintf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label)), value)
}

// renderResult prints a run summary followed by the composed comment.
func renderResult(r *handoff.Result) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("QA hand-off") + " " + dimStyle.Render(r.RunID) + "\n\n")
	b.WriteString(field("Task", fmt.Sprintf("%s %s", r.ItemID, r.Title)))
	b.WriteString(field("Outcome", outcomeStyle(string(r.Outcome)).Render(string(r.Outcome))))

	gate := fmt.Sprintf("status %q, required %q, checkbox %t", r.Decision.StatusObserved, r.Decision.RequiredStatus, r.Decision.CheckboxObserved)
	if r.Decision.Rechecked {
		gate += " (re-checked)"
	}
	b.WriteString(field("Gate", gate))

	if r.Outcome != handoff.OutcomeGateFailed {
		sheet := dimStyle.Render("none")
		if r.Spreadsheet != nil {
			sheet = fmt.Sprintf("%s (%s)", r.Spreadsheet.Name, r.SpreadsheetTier)
		}
		b.WriteString(field("Spreadsheet", sheet))
		b.WriteString(field("Links", fmt.Sprintf("%d from %s", len(r.PreviewLinks), r.LinkSource)))
		images := fmt.Sprintf("%d from %s", len(r.Images), r.ImageSource)
		if r.ImageErrors > 0 {
			images += failStyle.Render(fmt.Sprintf(", %d failed", r.ImageErrors))
		}
		b.WriteString(field("Images", images))
		if r.Degraded {
			b.WriteString(field("Storage", warnStyle.Render("unavailable, used fallbacks")))
		}
	}
	if r.Err != nil {
		b.WriteString(field("Error", failStyle.Render(r.Err.Error())))
	}

	if text := r.Comment.String(); text != "" {
		notify := "notify off"
		if r.Notify {
			notify = "notify on"
		}
		b.WriteString("\n" + dimStyle.Render("  Comment ("+notify+")") + "\n")
		b.WriteString(commentStyle.Render(text) + "\n")
	}

	return b.String()
}

// renderHistory prints journal rows as a fixed-width table.
func renderHistory(runs []journal.Run) string {
	if len(runs) == 0 {
		return dimStyle.Render("No hand-off runs recorded yet.") + "\n"
	}

	var b strings.Builder
	header := fmt.Sprintf("%-20s %-16s %-12s %5s %6s  %s", "STARTED", "TASK", "OUTCOME", "LINKS", "IMAGES", "TITLE")
	b.WriteString(titleStyle.Render(header) + "\n")

	for _, r := range runs {
		outcome := fmt.Sprintf("%-12s", r.Outcome)
		images := fmt.Sprintf("%d", r.Images)
		if r.ImageErrors > 0 {
			images = fmt.Sprintf("%d/%d", r.Images, r.Images+r.ImageErrors)
		}
		title := r.Title
		if r.Degraded {
			title += " " + warnStyle.Render("[degraded]")
		}
		if r.Error != "" {
			title += " " + failStyle.Render(r.Error)
		}
		fmt.Fprintf(&b, "%-20s %-16s %s %5d %6s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(r.ItemID, 16),
			outcomeStyle(r.Outcome).Render(outcome),
			r.PreviewLinks,
			images,
			title,
		)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
