package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/sounddrop/internal/drop"
)

type hotStore interface {
	Load(ctx context.Context) ([]drop.SoundDrop, int64, error)
	Swap(ctx context.Context, drops []drop.SoundDrop, version int64) error
	Read(ctx context.Context) ([]drop.SoundDrop, error)
	WriteAll(ctx context.Context, drops []drop.SoundDrop) error
	Ping(ctx context.Context) error
}

func sampleDrop(id int64, typ string) drop.SoundDrop {
	return drop.SoundDrop{
		ID:        id,
		Timestamp: id,
		Theme:     "Morning Sounds",
		AudioData: "data:audio/webm;base64,AAAA",
		Context:   "kitchen window",
		Type:      typ,
		Filename:  "recording_1",
		Discussions: []drop.Comment{
			{ID: id + 1, Timestamp: id + 1, Text: "birds", Author: drop.DefaultAuthor},
		},
	}
}

func hotStores(t *testing.T) map[string]hotStore {
	t.Helper()
	fh, err := NewFileHot(filepath.Join(t.TempDir(), "data", HotFileName))
	require.NoError(t, err)
	return map[string]hotStore{
		"file":   fh,
		"sqlite": NewSQLiteHot(testDB(t)),
	}
}

func TestHotReadEmpty(t *testing.T) {
	for name, hs := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			drops, err := hs.Read(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, drops)
			assert.Empty(t, drops)
		})
	}
}

func TestHotWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, hs := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			want := []drop.SoundDrop{
				sampleDrop(2000, drop.TypeUploaded),
				sampleDrop(1000, drop.TypeRecorded),
			}
			require.NoError(t, hs.WriteAll(ctx, want))

			got, err := hs.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			// Second write replaces, not appends.
			require.NoError(t, hs.WriteAll(ctx, want[:1]))
			got, err = hs.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, want[:1], got)
		})
	}
}

func TestHotNilDiscussionsNormalized(t *testing.T) {
	ctx := context.Background()
	for name, hs := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			d := sampleDrop(1000, drop.TypeRecorded)
			d.Discussions = nil
			require.NoError(t, hs.WriteAll(ctx, []drop.SoundDrop{d}))

			got, err := hs.Read(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.NotNil(t, got[0].Discussions)
			assert.Empty(t, got[0].Discussions)
		})
	}
}

func TestHotPing(t *testing.T) {
	for name, hs := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, hs.Ping(context.Background()))
		})
	}
}

func TestHotSwapRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	for name, hs := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			_, v0, err := hs.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), v0)

			first := []drop.SoundDrop{sampleDrop(1000, drop.TypeRecorded)}
			require.NoError(t, hs.Swap(ctx, first, v0))

			got, v1, err := hs.Load(ctx)
			require.NoError(t, err)
			assert.NotEqual(t, v0, v1)
			assert.Equal(t, first, got)

			// A writer still holding version 0 must not clobber first.
			err = hs.Swap(ctx, []drop.SoundDrop{sampleDrop(2000, drop.TypeUploaded)}, v0)
			assert.ErrorIs(t, err, drop.ErrConflict)

			got, err = hs.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, first, got)

			second := append([]drop.SoundDrop{sampleDrop(3000, drop.TypeUploaded)}, first...)
			require.NoError(t, hs.Swap(ctx, second, v1))
			_, v2, err := hs.Load(ctx)
			require.NoError(t, err)
			assert.NotEqual(t, v1, v2)
		})
	}
}

func TestHotWriteAllMovesVersion(t *testing.T) {
	ctx := context.Background()
	for name, hs := range hotStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, hs.WriteAll(ctx, []drop.SoundDrop{sampleDrop(1000, drop.TypeRecorded)}))
			_, before, err := hs.Load(ctx)
			require.NoError(t, err)

			require.NoError(t, hs.WriteAll(ctx, []drop.SoundDrop{sampleDrop(2000, drop.TypeRecorded)}))
			err = hs.Swap(ctx, nil, before)
			assert.ErrorIs(t, err, drop.ErrConflict)
		})
	}
}

// Two handles on the same backing store stand in for `sounddrop serve`
// and a `sounddrop sweep` run from another shell.
func TestHotSharedAcrossHandles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	pair := map[string][2]hotStore{}

	fa, err := NewFileHot(filepath.Join(dir, "file", HotFileName))
	require.NoError(t, err)
	fb, err := NewFileHot(fa.Path())
	require.NoError(t, err)
	pair["file"] = [2]hotStore{fa, fb}

	dbPath := filepath.Join(dir, "sqlite", "sounddrop.db")
	dba, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dba.Close() })
	dbb, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbb.Close() })
	pair["sqlite"] = [2]hotStore{NewSQLiteHot(dba), NewSQLiteHot(dbb)}

	for name, p := range pair {
		t.Run(name, func(t *testing.T) {
			a, b := p[0], p[1]
			require.NoError(t, a.WriteAll(ctx, []drop.SoundDrop{sampleDrop(1000, drop.TypeRecorded)}))

			snapA, va, err := a.Load(ctx)
			require.NoError(t, err)
			snapB, vb, err := b.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, va, vb)

			// b lands a new drop first; a's sweep result is now stale.
			require.NoError(t, b.Swap(ctx, append([]drop.SoundDrop{sampleDrop(2000, drop.TypeUploaded)}, snapB...), vb))
			err = a.Swap(ctx, snapA[:0], va)
			require.ErrorIs(t, err, drop.ErrConflict)

			got, err := a.Read(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, int64(2000), got[0].ID)
		})
	}
}

func TestFileHotLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fh, err := NewFileHot(filepath.Join(dir, HotFileName))
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, fh.WriteAll(ctx, []drop.SoundDrop{sampleDrop(i*1000, drop.TypeRecorded)}))
	}
	_, v, err := fh.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, fh.Swap(ctx, nil, v))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.ElementsMatch(t, []string{HotFileName, HotFileName + ".lock"}, names)
}

func TestFileHotFailedWriteKeepsPriorDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fh, err := NewFileHot(filepath.Join(dir, HotFileName))
	require.NoError(t, err)

	prior := []drop.SoundDrop{sampleDrop(1000, drop.TypeRecorded)}
	require.NoError(t, fh.WriteAll(ctx, prior))

	// A read-only directory makes the temp file create fail.
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o750) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	err = fh.WriteAll(ctx, []drop.SoundDrop{sampleDrop(2000, drop.TypeUploaded)})
	require.Error(t, err)

	got, err := fh.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, prior, got)
}

func TestFileHotCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), HotFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o640))

	fh, err := NewFileHot(path)
	require.NoError(t, err)

	_, err = fh.Read(context.Background())
	assert.Error(t, err)
}
