// Package prompts assembles the text sent to the LLM client for slot
// summarization, following the ordered-block layout: previous summary,
// focus context, OCR excerpts, then instructions.
package prompts

import (
	"fmt"
	"strings"
)

// instructionsBlock is always the last section of a slot summary prompt.
const instructionsBlock = `Write one line summarizing what the user was doing during this period, based
on the screenshots and context below. Then on following lines, write:

EXPLANATION: a short justification for the summary, citing what is visible
CONFIDENCE: a number from 0.0 to 1.0
TAGS: a comma-separated list of short lowercase topic tags`

// previousSummaryTemplate introduces the prior slot's summary text so the
// model can maintain continuity across a working session. The single
// format verb is that text.
const previousSummaryTemplate = `Previous period summary, for continuity:
%s`

// focusContextHeader introduces the ranked app/window list.
const focusContextHeader = "Time spent this period, by application:"

// ocrHeader introduces the per-title OCR excerpts.
const ocrHeader = "Extracted on-screen text, by window title:"

// FocusEntry is one ranked line in the focus-context block: a window
// title and how many clipped minutes it held the user's attention.
type FocusEntry struct {
	Title   string
	Minutes float64
}

// OCREntry is one window's cached OCR excerpt, truncated to at most 500
// characters before being placed into the prompt.
type OCREntry struct {
	Title string
	Text  string
}

const maxOCRChars = 500

// SlotSummaryPrompt assembles the full prompt for summarizing a time
// range. previousSummary, focus, and ocr are each optional: pass an empty
// string / nil slice to omit that block entirely.
func SlotSummaryPrompt(previousSummary string, focus []FocusEntry, ocr []OCREntry) string {
	var sb strings.Builder

	if previousSummary != "" {
		sb.WriteString(fmt.Sprintf(previousSummaryTemplate, previousSummary))
		sb.WriteString("\n\n")
	}

	if len(focus) > 0 {
		sb.WriteString(focusContextHeader)
		sb.WriteString("\n")
		for _, f := range focus {
			sb.WriteString(fmt.Sprintf("- %s: %.1f min\n", f.Title, f.Minutes))
		}
		sb.WriteString("\n")
	}

	if len(ocr) > 0 {
		sb.WriteString(ocrHeader)
		sb.WriteString("\n")
		for _, o := range ocr {
			sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n\n", o.Title, truncate(o.Text, maxOCRChars)))
		}
	}

	sb.WriteString(instructionsBlock)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
