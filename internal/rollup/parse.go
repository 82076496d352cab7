package rollup

import (
	"encoding/json"
	"strings"
)

const (
	summaryPrefix = "summary:"
	sectionPrefix = "section:"
)

type parsedReply struct {
	summary  string
	sections []Section
}

func (p parsedReply) sectionsJSON() string {
	if len(p.sections) == 0 {
		return ""
	}
	b, err := json.Marshal(p.sections)
	if err != nil {
		return ""
	}
	return string(b)
}

// parseRollupReply scans a model reply line by line for SUMMARY: and
// SECTION: <title> | <content> lines, tolerating any order and case. Any
// line that matches neither prefix is ignored rather than rejected,
// since models occasionally prepend a stray acknowledgement line.
func parseRollupReply(raw string) parsedReply {
	var out parsedReply
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)

		switch {
		case strings.HasPrefix(lower, summaryPrefix):
			out.summary = strings.TrimSpace(trimmed[len(summaryPrefix):])
		case strings.HasPrefix(lower, sectionPrefix):
			rest := strings.TrimSpace(trimmed[len(sectionPrefix):])
			title, content, ok := strings.Cut(rest, "|")
			if !ok {
				continue
			}
			out.sections = append(out.sections, Section{
				Title:   strings.TrimSpace(title),
				Content: strings.TrimSpace(content),
			})
		}
	}

	if out.summary == "" && len(out.sections) == 0 {
		out.summary = strings.TrimSpace(raw)
	}
	return out
}
