package store

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/sounddrop/internal/drop"
)

// Set SOUNDDROP_TEST_POSTGRES_DSN to run these against a real server.
func testPGArchive(t *testing.T) *PGArchive {
	t.Helper()
	dsn := os.Getenv("SOUNDDROP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOUNDDROP_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	a, err := OpenPGArchive(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Truncate(ctx))
	t.Cleanup(func() {
		a.Truncate(context.Background())
		a.Close()
	})
	return a
}

func TestPGArchive(t *testing.T) {
	runArchiveContract(t, func(t *testing.T) archiveStore {
		return testPGArchive(t)
	})
}

func TestPGArchiveBadDSN(t *testing.T) {
	_, err := OpenPGArchive(context.Background(), "postgres://%zz", zerolog.Nop())
	require.Error(t, err)
}

func TestPGArchiveUnreachableAtOpen(t *testing.T) {
	ctx := context.Background()
	// Nothing listens on port 1.
	a, err := OpenPGArchive(ctx, "postgres://sounddrop@127.0.0.1:1/sounddrop?connect_timeout=1", zerolog.Nop())
	require.NoError(t, err, "an unreachable server is not fatal")
	require.NotNil(t, a)
	t.Cleanup(a.Close)

	_, err = a.Count(ctx)
	assert.Error(t, err)
	_, err = a.Insert(ctx, drop.ArchivedDrop{SoundDrop: sampleDrop(1000, drop.TypeRecorded)})
	assert.Error(t, err)
	_, err = a.FindSince(ctx, 0)
	assert.Error(t, err)
	assert.Error(t, a.Ping(ctx))
}
