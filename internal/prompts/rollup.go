package prompts

import (
	"fmt"
	"strings"
)

// rollupInstructions asks the model to fold a set of child texts (raw
// slot summaries for a daily rollup, or child rollups for weekly and
// monthly rollups) into one executive summary plus a handful of
// labeled sections.
const rollupInstructions = `Write a short executive summary (2-4 sentences) of the period covered by
the entries below. Then write a few labeled sections expanding on notable
themes, projects, or time sinks. Use this exact layout:

SUMMARY: the executive summary
SECTION: <title> | <content>
SECTION: <title> | <content>`

// DailyRollupPrompt folds a day's threshold-summary texts into a prompt
// asking for an executive summary and sections. entries are ordered
// chronologically; each is rendered with its clock time so the model can
// reason about morning/afternoon/evening shape.
func DailyRollupPrompt(dayLabel string, entries []RollupEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Activity log for %s:\n\n", dayLabel))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", e.Label, e.Text))
	}
	sb.WriteString("\n")
	sb.WriteString(rollupInstructions)
	return sb.String()
}

// WeeklyRollupPrompt folds a week's daily executive summaries into a
// prompt asking for a higher-level executive summary and sections.
func WeeklyRollupPrompt(periodLabel string, entries []RollupEntry) string {
	return foldRollupPrompt("week", periodLabel, entries)
}

// MonthlyRollupPrompt folds a month's weekly executive summaries into a
// month-level rollup prompt.
func MonthlyRollupPrompt(periodLabel string, entries []RollupEntry) string {
	return foldRollupPrompt("month", periodLabel, entries)
}

func foldRollupPrompt(unit, periodLabel string, entries []RollupEntry) string {
	childKind := "Daily"
	if unit == "month" {
		childKind = "Weekly"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s summaries for the %s of %s:\n\n", childKind, unit, periodLabel))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", e.Label, e.Text))
	}
	sb.WriteString("\n")
	sb.WriteString(rollupInstructions)
	return sb.String()
}

// RollupEntry is one child fed into a rollup prompt: a daily rollup's
// entries are raw slot-summary texts labeled by time of day; a
// weekly/monthly rollup's entries are child rollups' executive summaries
// labeled by date.
type RollupEntry struct {
	Label string
	Text  string
}
