package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/sounddrop/internal/drop"
)

func TestParseDate(t *testing.T) {
	e, _, _ := testEngine(t, DefaultOptions())

	d, err := e.ParseDate("2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC), d)

	_, err = e.ParseDate("08/01/2024")
	assert.ErrorIs(t, err, drop.ErrValidation)
}

func TestArchiveForDate(t *testing.T) {
	e, hot, archive := testEngine(t, DefaultOptions())
	ctx := context.Background()

	jan8 := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)
	hot.drops = []drop.SoundDrop{
		dropAt(4, jan8.Add(23*time.Hour+59*time.Minute), drop.TypeRecorded),
		dropAt(3, jan8.Add(24*time.Hour), drop.TypeRecorded), // Jan 9
	}
	for _, a := range []drop.ArchivedDrop{
		archivedAt(dropAt(2, jan8.Add(9*time.Hour), drop.TypeUploaded)),
		archivedAt(dropAt(1, jan8.Add(-time.Millisecond), drop.TypeUploaded)), // Jan 7
	} {
		_, err := archive.ArchiveStore.Insert(ctx, a)
		require.NoError(t, err)
	}

	got, err := e.ArchiveForDate(ctx, jan8.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", got.Date)
	assert.Equal(t, drop.ThemeFor(jan8), got.Theme)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, []int64{4, 2}, recordIDs(got.Drops))
}

func TestWeeklySummary(t *testing.T) {
	e, hot, archive := testEngine(t, DefaultOptions())
	ctx := context.Background()

	today := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	threeAgo := today.AddDate(0, 0, -3)

	withComments := dropAt(5, yesterday.Add(8*time.Hour), drop.TypeRecorded)
	withComments.Discussions = []drop.Comment{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}}
	hot.drops = []drop.SoundDrop{
		dropAt(6, today.Add(time.Hour), drop.TypeRecorded), // today, excluded
		withComments,
		dropAt(4, yesterday.Add(9*time.Hour), drop.TypeUploaded),
	}
	for _, a := range []drop.ArchivedDrop{
		archivedAt(dropAt(3, threeAgo.Add(time.Hour), drop.TypeRecorded)),
		archivedAt(dropAt(2, today.AddDate(0, 0, -8), drop.TypeRecorded)), // outside the week
	} {
		_, err := archive.ArchiveStore.Insert(ctx, a)
		require.NoError(t, err)
	}

	sum, err := e.WeeklySummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalSounds)
	assert.Equal(t, 2, sum.TotalDiscussions)
	assert.Equal(t, 2, sum.ActiveDays)
	assert.Equal(t, drop.ThemeFor(yesterday).Title, sum.FavoriteTheme)

	require.Len(t, sum.DailyThemes, 7)
	assert.Equal(t, "2024-01-09", sum.DailyThemes[0].Date)
	assert.Equal(t, 2, sum.DailyThemes[0].SoundCount)
	assert.Equal(t, "2024-01-07", sum.DailyThemes[2].Date)
	assert.Equal(t, 1, sum.DailyThemes[2].SoundCount)
	assert.Equal(t, "2024-01-03", sum.DailyThemes[6].Date)
	assert.Equal(t, drop.ThemeFor(today.AddDate(0, 0, -7)), sum.DailyThemes[6].Theme)
}

func TestWeeklySummaryEmpty(t *testing.T) {
	e, _, _ := testEngine(t, DefaultOptions())

	sum, err := e.WeeklySummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "None", sum.FavoriteTheme)
	assert.Equal(t, 0, sum.ActiveDays)
	assert.Len(t, sum.DailyThemes, 7)
}
