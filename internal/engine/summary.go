package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/sounddrop/internal/drop"
)

// DateLayout is the calendar date format used by the archive views.
const DateLayout = "2006-01-02"

// DayArchive is every drop created on one calendar day.
type DayArchive struct {
	Date  string        `json:"date"`
	Theme drop.Theme    `json:"theme"`
	Count int           `json:"count"`
	Drops []drop.Record `json:"drops"`
}

// DaySummary is one entry of the weekly theme timeline.
type DaySummary struct {
	Date       string     `json:"date"`
	Theme      drop.Theme `json:"theme"`
	SoundCount int        `json:"soundCount"`
}

// WeeklySummary covers the seven days before today.
type WeeklySummary struct {
	TotalSounds      int          `json:"totalSounds"`
	TotalDiscussions int          `json:"totalDiscussions"`
	ActiveDays       int          `json:"activeDays"`
	FavoriteTheme    string       `json:"favoriteTheme"`
	DailyThemes      []DaySummary `json:"dailyThemes"`
}

// ParseDate parses a YYYY-MM-DD date in the engine's timezone.
func (e *Engine) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, e.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", drop.ErrValidation)
	}
	return t, nil
}

// ArchiveForDate returns the drops created on day, from both stores, with
// that day's theme.
func (e *Engine) ArchiveForDate(ctx context.Context, day time.Time) (*DayArchive, error) {
	start := startOfDay(day, e.opts.Location)
	end := start.AddDate(0, 0, 1)

	records, err := e.between(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return &DayArchive{
		Date:  start.Format(DateLayout),
		Theme: e.ThemeFor(start),
		Count: len(records),
		Drops: records,
	}, nil
}

// WeeklySummary summarises the seven calendar days before the one containing
// now. The timeline lists the most recent day first.
func (e *Engine) WeeklySummary(ctx context.Context) (*WeeklySummary, error) {
	today := startOfDay(e.now(), e.opts.Location)
	first := today.AddDate(0, 0, -7)

	records, err := e.between(ctx, first, today)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string][]drop.Record)
	for _, r := range records {
		key := time.UnixMilli(r.Timestamp).In(e.opts.Location).Format(DateLayout)
		byDay[key] = append(byDay[key], r)
	}

	sum := &WeeklySummary{
		FavoriteTheme: "None",
		DailyThemes:   make([]DaySummary, 0, 7),
	}
	themeCount := make(map[string]int)
	best := 0
	for i := 1; i <= 7; i++ {
		day := today.AddDate(0, 0, -i)
		key := day.Format(DateLayout)
		theme := e.ThemeFor(day)
		sounds := byDay[key]

		if len(sounds) > 0 {
			sum.ActiveDays++
			sum.TotalSounds += len(sounds)
			for _, s := range sounds {
				sum.TotalDiscussions += len(s.Discussions)
			}
			themeCount[theme.Title] += len(sounds)
			if themeCount[theme.Title] > best {
				best = themeCount[theme.Title]
				sum.FavoriteTheme = theme.Title
			}
		}

		sum.DailyThemes = append(sum.DailyThemes, DaySummary{
			Date:       key,
			Theme:      theme,
			SoundCount: len(sounds),
		})
	}
	return sum, nil
}

// between returns drops from both stores created in [start, end).
func (e *Engine) between(ctx context.Context, start, end time.Time) ([]drop.Record, error) {
	archive, err := e.archive()
	if err != nil {
		return nil, err
	}
	hot, err := e.readHot(ctx)
	if err != nil {
		return nil, err
	}

	q := drop.ArchiveQuery{Since: start.UnixMilli(), Until: end.UnixMilli()}
	inRange := make([]drop.SoundDrop, 0, len(hot))
	for i := range hot {
		if q.Matches(&hot[i]) {
			inRange = append(inRange, hot[i])
		}
	}

	archived, err := archive.Query(ctx, q)
	if err != nil {
		e.logger.Error().Err(err).Msg("archive query failed")
		return nil, fmt.Errorf("%w: %v", drop.ErrStorage, err)
	}
	return Dedupe(inRange, archived), nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
