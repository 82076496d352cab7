// Package rollup folds ThresholdSummary rows (and, one level up, other
// rollups) into CachedReport entities: a daily report summarizes a day's
// raw summaries, a weekly report summarizes its seven daily reports, and
// a monthly report summarizes its weekly reports. Each level is a single
// LLM call over concatenated text from the level below, so the cost of
// going from raw summaries to a monthly report stays proportional to the
// number of days in the month, not the number of underlying screenshots.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nugget/activity-tracker/internal/events"
	"github.com/nugget/activity-tracker/internal/llm"
	"github.com/nugget/activity-tracker/internal/prompts"
	"github.com/nugget/activity-tracker/internal/store"
)

// Store is the persistence surface rollup needs. It is satisfied by
// *store.Store; tests provide a fake.
type Store interface {
	GetSummariesInRange(start, end time.Time) ([]store.ThresholdSummary, error)
	GetCachedReport(periodType, periodDate string) (*store.CachedReport, error)
	SaveCachedReport(r store.CachedReport) (int64, error)
}

// LLMClient is the chat surface rollup needs.
type LLMClient interface {
	Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error)
}

// Section is one labeled part of a rollup's narrative, beyond the
// executive summary.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

const (
	periodDaily   = "daily"
	periodWeekly  = "weekly"
	periodMonthly = "monthly"

	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Builder synthesizes CachedReport rollups on demand.
type Builder struct {
	store  Store
	llm    LLMClient
	bus    *events.Bus
	logger *slog.Logger
	model  string
}

// New creates a rollup Builder. model is recorded on every CachedReport
// as ModelUsed; bus may be nil.
func New(st Store, client LLMClient, bus *events.Bus, model string) *Builder {
	return &Builder{
		store:  st,
		llm:    client,
		bus:    bus,
		logger: slog.Default().With("component", "rollup"),
		model:  model,
	}
}

// BuildDaily synthesizes (or returns the existing) daily report covering
// the local calendar day containing day. Returns nil, nil if the day has
// no summaries to fold, so callers don't need to special-case "nothing
// happened that day" as an error.
func (b *Builder) BuildDaily(ctx context.Context, day time.Time) (*store.CachedReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	periodDate := start.Format(dateLayout)

	if existing, err := b.store.GetCachedReport(periodDaily, periodDate); err != nil {
		return nil, fmt.Errorf("lookup daily report: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	end := start.AddDate(0, 0, 1)
	summaries, err := b.store.GetSummariesInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("get summaries in range: %w", err)
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StartTime.Before(summaries[j].StartTime) })

	var entries []prompts.RollupEntry
	childIDs := make([]int64, 0, len(summaries))
	for _, s := range summaries {
		if s.Summary == "" {
			continue
		}
		entries = append(entries, prompts.RollupEntry{Label: s.StartTime.Format("15:04"), Text: s.Summary})
		childIDs = append(childIDs, s.ID)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	prompt := prompts.DailyRollupPrompt(periodDate, entries)
	reply, infMs, err := b.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("daily rollup chat: %w", err)
	}
	parsed := parseRollupReply(reply)

	report := store.CachedReport{
		PeriodType:       periodDaily,
		PeriodDate:       periodDate,
		StartTime:        start,
		EndTime:          end,
		ExecutiveSummary: parsed.summary,
		Sections:         parsed.sectionsJSON(),
		ModelUsed:        b.model,
		ChildSummaryIDs:  childIDs,
	}
	return b.save(report, infMs)
}

// BuildWeekly synthesizes the weekly report for the Monday-started week
// containing anyDay, ensuring each of its seven daily reports exists
// first (building any missing ones). Returns nil, nil if the week has no
// underlying activity at all.
func (b *Builder) BuildWeekly(ctx context.Context, anyDay time.Time) (*store.CachedReport, error) {
	weekStart := mondayOf(anyDay)
	periodDate := weekStart.Format(dateLayout)

	if existing, err := b.store.GetCachedReport(periodWeekly, periodDate); err != nil {
		return nil, fmt.Errorf("lookup weekly report: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	var entries []prompts.RollupEntry
	var childIDs []int64
	for i := 0; i < 7; i++ {
		day := weekStart.AddDate(0, 0, i)
		daily, err := b.BuildDaily(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("build daily for %s: %w", day.Format(dateLayout), err)
		}
		if daily == nil {
			continue
		}
		entries = append(entries, prompts.RollupEntry{Label: daily.PeriodDate, Text: daily.ExecutiveSummary})
		childIDs = append(childIDs, daily.ChildSummaryIDs...)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	prompt := prompts.WeeklyRollupPrompt(periodDate, entries)
	reply, infMs, err := b.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("weekly rollup chat: %w", err)
	}
	parsed := parseRollupReply(reply)

	report := store.CachedReport{
		PeriodType:       periodWeekly,
		PeriodDate:       periodDate,
		StartTime:        weekStart,
		EndTime:          weekStart.AddDate(0, 0, 7),
		ExecutiveSummary: parsed.summary,
		Sections:         parsed.sectionsJSON(),
		ModelUsed:        b.model,
		ChildSummaryIDs:  childIDs,
	}
	return b.save(report, infMs)
}

// BuildMonthly synthesizes the calendar-month report containing anyDay,
// ensuring every week that overlaps the month has a weekly report first.
// A week spanning a month boundary contributes its whole weekly report,
// including the days of it that fall in the neighbouring month.
func (b *Builder) BuildMonthly(ctx context.Context, anyDay time.Time) (*store.CachedReport, error) {
	monthStart := time.Date(anyDay.Year(), anyDay.Month(), 1, 0, 0, 0, 0, anyDay.Location())
	periodDate := monthStart.Format(monthLayout)

	if existing, err := b.store.GetCachedReport(periodMonthly, periodDate); err != nil {
		return nil, fmt.Errorf("lookup monthly report: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	monthEnd := monthStart.AddDate(0, 1, 0)

	var entries []prompts.RollupEntry
	var childIDs []int64
	seen := map[string]bool{}
	for d := mondayOf(monthStart); d.Before(monthEnd); d = d.AddDate(0, 0, 7) {
		weekStart := mondayOf(d)
		key := weekStart.Format(dateLayout)
		if seen[key] {
			continue
		}
		seen[key] = true

		weekly, err := b.BuildWeekly(ctx, weekStart)
		if err != nil {
			return nil, fmt.Errorf("build weekly for %s: %w", key, err)
		}
		if weekly == nil {
			continue
		}
		entries = append(entries, prompts.RollupEntry{Label: weekly.PeriodDate, Text: weekly.ExecutiveSummary})
		childIDs = append(childIDs, weekly.ChildSummaryIDs...)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	prompt := prompts.MonthlyRollupPrompt(periodDate, entries)
	reply, infMs, err := b.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("monthly rollup chat: %w", err)
	}
	parsed := parseRollupReply(reply)

	report := store.CachedReport{
		PeriodType:       periodMonthly,
		PeriodDate:       periodDate,
		StartTime:        monthStart,
		EndTime:          monthEnd,
		ExecutiveSummary: parsed.summary,
		Sections:         parsed.sectionsJSON(),
		ModelUsed:        b.model,
		ChildSummaryIDs:  childIDs,
	}
	return b.save(report, infMs)
}

func (b *Builder) save(report store.CachedReport, infMs int64) (*store.CachedReport, error) {
	id, err := b.store.SaveCachedReport(report)
	if err != nil {
		return nil, fmt.Errorf("save cached report: %w", err)
	}
	report.ID = id

	b.bus.Publish(events.Event{
		Timestamp: report.StartTime,
		Source:    events.SourceSummarizer,
		Kind:      events.KindRollupBuilt,
		Data: map[string]any{
			"period_type":     report.PeriodType,
			"period_date":     report.PeriodDate,
			"inference_ms":    infMs,
			"child_count":     len(report.ChildSummaryIDs),
		},
	})
	return &report, nil
}

func (b *Builder) chat(ctx context.Context, prompt string) (string, int64, error) {
	start := time.Now()
	resp, err := b.llm.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", 0, err
	}
	return resp.Content, time.Since(start).Milliseconds(), nil
}

// mondayOf returns local midnight on the Monday of the week containing t.
func mondayOf(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}
