package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/sounddrop/internal/drop"
)

type archiveStore interface {
	Insert(ctx context.Context, rec drop.ArchivedDrop) (bool, error)
	Count(ctx context.Context) (int, error)
	Query(ctx context.Context, q drop.ArchiveQuery) ([]drop.ArchivedDrop, error)
	FindSince(ctx context.Context, ts int64) ([]drop.ArchivedDrop, error)
}

func sampleArchived(id int64, typ, theme string) drop.ArchivedDrop {
	d := sampleDrop(id, typ)
	d.Theme = theme
	return drop.ArchivedDrop{
		SoundDrop:      d,
		ArchivedAt:     "2024-01-10T00:00:00Z",
		ResearchStatus: "archived",
		StudyPhase:     "phase_1",
	}
}

// runArchiveContract exercises the behaviour every archive backend shares.
func runArchiveContract(t *testing.T, newStore func(t *testing.T) archiveStore) {
	t.Run("insert and count", func(t *testing.T) {
		ctx := context.Background()
		as := newStore(t)

		inserted, err := as.Insert(ctx, sampleArchived(1000, drop.TypeRecorded, "Morning Sounds"))
		require.NoError(t, err)
		assert.True(t, inserted)

		n, err := as.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("duplicate id is a no-op", func(t *testing.T) {
		ctx := context.Background()
		as := newStore(t)

		first := sampleArchived(1000, drop.TypeRecorded, "Morning Sounds")
		_, err := as.Insert(ctx, first)
		require.NoError(t, err)

		second := first
		second.Context = "changed"
		inserted, err := as.Insert(ctx, second)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := as.Query(ctx, drop.ArchiveQuery{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "kitchen window", got[0].Context)
	})

	t.Run("round trip keeps fields", func(t *testing.T) {
		ctx := context.Background()
		as := newStore(t)

		want := sampleArchived(1000, drop.TypeUploaded, "Urban Rhythms")
		want.Discussions = append(want.Discussions, drop.Comment{
			ID: 1500, Timestamp: 1500, Text: "edited", Author: "Ana", Edited: true, EditedAt: 1600,
		})
		_, err := as.Insert(ctx, want)
		require.NoError(t, err)

		got, err := as.Query(ctx, drop.ArchiveQuery{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, want, got[0])
	})

	t.Run("query filters sort and limit", func(t *testing.T) {
		ctx := context.Background()
		as := newStore(t)

		for _, rec := range []drop.ArchivedDrop{
			sampleArchived(1000, drop.TypeRecorded, "Morning Sounds"),
			sampleArchived(2000, drop.TypeUploaded, "Morning Sounds"),
			sampleArchived(3000, drop.TypeRecorded, "Urban Rhythms"),
			sampleArchived(4000, drop.TypeRecorded, "Morning Sounds"),
		} {
			_, err := as.Insert(ctx, rec)
			require.NoError(t, err)
		}

		got, err := as.Query(ctx, drop.ArchiveQuery{})
		require.NoError(t, err)
		assert.Equal(t, []int64{4000, 3000, 2000, 1000}, archivedIDs(got))

		got, err = as.Query(ctx, drop.ArchiveQuery{Ascending: true})
		require.NoError(t, err)
		assert.Equal(t, []int64{1000, 2000, 3000, 4000}, archivedIDs(got))

		got, err = as.Query(ctx, drop.ArchiveQuery{Type: drop.TypeRecorded, Theme: "Morning Sounds"})
		require.NoError(t, err)
		assert.Equal(t, []int64{4000, 1000}, archivedIDs(got))

		got, err = as.Query(ctx, drop.ArchiveQuery{Since: 2000, Until: 4000})
		require.NoError(t, err)
		assert.Equal(t, []int64{3000, 2000}, archivedIDs(got))

		got, err = as.Query(ctx, drop.ArchiveQuery{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []int64{4000, 3000}, archivedIDs(got))

		got, err = as.FindSince(ctx, 3000)
		require.NoError(t, err)
		assert.Equal(t, []int64{4000, 3000}, archivedIDs(got))
	})

	t.Run("empty archive", func(t *testing.T) {
		ctx := context.Background()
		as := newStore(t)

		got, err := as.Query(ctx, drop.ArchiveQuery{})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func archivedIDs(recs []drop.ArchivedDrop) []int64 {
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

func TestSQLiteArchive(t *testing.T) {
	runArchiveContract(t, func(t *testing.T) archiveStore {
		return NewSQLiteArchive(testDB(t))
	})
}

func TestSQLiteArchivePing(t *testing.T) {
	assert.NoError(t, NewSQLiteArchive(testDB(t)).Ping(context.Background()))
}
