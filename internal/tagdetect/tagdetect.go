// Package tagdetect classifies focus events into activity categories by
// matching app names and window titles against a fixed rule table. It
// supplements whatever tags the LLM emits on a summary's TAGS: line with
// a cheap, deterministic signal that works even when summarization is
// disabled or the model omits tags.
package tagdetect

import (
	"regexp"
	"sort"
	"strings"
)

// Rule matches a tag by app-name substring or window-title regex.
// Order in Rules matters: earlier entries take priority.
type Rule struct {
	Tag      string
	Apps     []string
	Windows  []*regexp.Regexp
	Color    string
}

// DefaultTag is returned when nothing in Rules matches.
const DefaultTag = "#other"

// DefaultColor is the color associated with DefaultTag.
const DefaultColor = "#94a3b8"

// fallbackTags are app-only rules consulted in a second pass, after every
// content-based rule has had a chance to match on window title.
var fallbackTags = map[string]bool{"#terminal": true, "#browsing": true}

// Rules is the fixed detection table, evaluated in order.
var Rules = []Rule{
	{
		Tag:   "#coding",
		Apps:  []string{"code", "vscode", "pycharm", "intellij", "webstorm", "vim", "nvim", "neovim", "emacs", "sublime", "atom", "zed"},
		Windows: compileAll(
			`\.py\b`, `\.js\b`, `\.ts\b`, `\.tsx\b`, `\.jsx\b`,
			`\.go\b`, `\.rs\b`, `\.rb\b`, `\.java\b`, `\.kt\b`,
			`\.html\b`, `\.css\b`, `\.scss\b`, `\.vue\b`, `\.svelte\b`,
			`\.c\b`, `\.cpp\b`, `\.h\b`, `\.hpp\b`,
			`\[Running\]`, `\[Debug\]`,
		),
		Color: "#6366f1",
	},
	{
		Tag: "#research",
		Windows: compileAll(
			`dribbble`, `figma`, `behance`, `awwwards`,
			`stackoverflow`, `stack overflow`, `github\.com`,
			`gitlab`, `bitbucket`,
			`docs\.`, `documentation`, `api reference`,
			`medium\.com`, `dev\.to`, `hashnode`,
			`arxiv`, `scholar\.google`, `research`,
			`wikipedia`, `wiki`,
			`reddit.*programming`, `hacker news`, `\bhn\b`,
			`tutorial`, `guide`, `how to`,
		),
		Color: "#f59e0b",
	},
	{
		Tag:  "#communication",
		Apps: []string{"slack", "discord", "teams", "element", "signal", "telegram", "whatsapp", "messenger"},
		Windows: compileAll(
			`gmail`, `outlook`, `protonmail`, `\bmail\b`,
			`inbox`, `compose.*mail`,
			`linkedin.*messag`, `twitter.*dm`, `x\.com.*messages`,
		),
		Color: "#22c55e",
	},
	{
		Tag:  "#meetings",
		Apps: []string{"zoom", "teams", "webex", "gotomeeting", "bluejeans"},
		Windows: compileAll(
			`google meet`, `meet\.google`,
			`zoom meeting`, `zoom webinar`,
			`microsoft teams.*call`, `teams.*meeting`,
			`huddle`, `standup`, `\bsync\b`,
		),
		Color: "#ec4899",
	},
	{
		Tag:  "#writing",
		Apps: []string{"notion", "obsidian", "logseq", "roam", "bear", "ulysses", "typora", "marktext", "ia writer"},
		Windows: compileAll(
			`google docs`, `docs\.google`,
			`notion\.so`,
			`confluence`,
			`dropbox paper`,
			`coda\.io`,
			`airtable`,
			`\.md\b`,
		),
		Color: "#8b5cf6",
	},
	{
		Tag:   "#terminal",
		Apps:  []string{"terminal", "iterm", "iterm2", "tilix", "konsole", "gnome-terminal", "alacritty", "kitty", "wezterm", "hyper"},
		Color: "#14b8a6",
	},
	{
		Tag:  "#media",
		Apps: []string{"spotify", "vlc", "mpv", "netflix", "youtube", "prime video", "plex", "audacity", "ableton", "logic"},
		Windows: compileAll(
			`youtube\.com`, `youtu\.be`,
			`netflix\.com`, `hulu\.com`, `disney\+`,
			`spotify\.com`, `music\.apple`,
			`twitch\.tv`,
		),
		Color: "#f43f5e",
	},
	{
		Tag:   "#browsing",
		Apps:  []string{"chrome", "firefox", "brave", "safari", "edge", "arc", "vivaldi", "opera"},
		Color: "#64748b",
	},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// Detect returns the tag matching appName/windowTitle, or DefaultTag.
// Rules are tried in table order, each matching on window title first
// and then on app name; the app-only fallback tags (#terminal,
// #browsing) are tried last so a code editor running inside a
// terminal-emulator class still resolves to #coding.
func Detect(appName, windowTitle string) string {
	if appName == "" && windowTitle == "" {
		return DefaultTag
	}
	appLower := strings.ToLower(appName)
	windowLower := strings.ToLower(windowTitle)

	for _, rule := range Rules {
		if fallbackTags[rule.Tag] {
			continue
		}
		for _, re := range rule.Windows {
			if re.MatchString(windowLower) {
				return rule.Tag
			}
		}
		for _, app := range rule.Apps {
			if strings.Contains(appLower, strings.ToLower(app)) {
				return rule.Tag
			}
		}
	}

	for _, rule := range Rules {
		if !fallbackTags[rule.Tag] {
			continue
		}
		for _, app := range rule.Apps {
			if strings.Contains(appLower, strings.ToLower(app)) {
				return rule.Tag
			}
		}
	}

	return DefaultTag
}

// Color returns the display color for tag, or DefaultColor if unknown.
func Color(tag string) string {
	for _, rule := range Rules {
		if rule.Tag == tag {
			return rule.Color
		}
	}
	return DefaultColor
}

// Activity is one focus event annotated with its detected tag.
type Activity struct {
	Tag             string
	AppName         string
	WindowTitle     string
	DurationSeconds float64
}

// Breakdown summarizes time spent under one tag, with its top windows.
type Breakdown struct {
	Tag          string
	TotalSeconds float64
	Percentage   float64
	Color        string
	Windows      []WindowTime
}

// WindowTime is one window's aggregated duration within a Breakdown.
type WindowTime struct {
	AppName         string
	WindowTitle     string
	DurationSeconds float64
}

const maxWindowsPerTag = 10

// BreakdownActivities groups activities by detected tag and returns per-tag
// totals, percentages of the overall duration, and each tag's busiest
// windows, sorted by total time descending.
func BreakdownActivities(activities []Activity) []Breakdown {
	var total float64
	for _, a := range activities {
		total += a.DurationSeconds
	}
	if total == 0 {
		return nil
	}

	type windowKey struct{ app, title string }
	byTag := map[string][]Activity{}
	for _, a := range activities {
		byTag[a.Tag] = append(byTag[a.Tag], a)
	}

	var out []Breakdown
	for tag, acts := range byTag {
		windowTotals := map[windowKey]float64{}
		var tagTotal float64
		for _, a := range acts {
			windowTotals[windowKey{a.AppName, a.WindowTitle}] += a.DurationSeconds
			tagTotal += a.DurationSeconds
		}

		windows := make([]WindowTime, 0, len(windowTotals))
		for k, d := range windowTotals {
			windows = append(windows, WindowTime{AppName: k.app, WindowTitle: k.title, DurationSeconds: d})
		}
		sort.Slice(windows, func(i, j int) bool { return windows[i].DurationSeconds > windows[j].DurationSeconds })
		if len(windows) > maxWindowsPerTag {
			windows = windows[:maxWindowsPerTag]
		}

		out = append(out, Breakdown{
			Tag:          tag,
			TotalSeconds: tagTotal,
			Percentage:   tagTotal / total * 100,
			Color:        Color(tag),
			Windows:      windows,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TotalSeconds > out[j].TotalSeconds })
	return out
}
