package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lazypower/sounddrop/internal/drop"
)

// HotFileName is the document name used under the data directory.
const HotFileName = "sound_drops.json"

// FileHot keeps the hot store as a single JSON document on disk.
//
// Writes go to a temp file in the same directory, are fsynced, then renamed
// over the document, so a failed write never leaves a partial snapshot.
// Writers serialize on an advisory lock held on a sidecar file, and the
// snapshot version is a hash of the document bytes.
type FileHot struct {
	path string
}

// NewFileHot returns a file-backed hot store, creating the parent directory.
func NewFileHot(path string) (*FileHot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create hot store dir: %w", err)
	}
	return &FileHot{path: path}, nil
}

// Path returns the document path.
func (f *FileHot) Path() string {
	return f.path
}

func (f *FileHot) lockPath() string {
	return f.path + ".lock"
}

// Load returns the current snapshot and its version, an empty slice and
// version 0 when the document does not exist yet.
func (f *FileHot) Load(ctx context.Context) ([]drop.SoundDrop, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	doc, version, err := f.readDoc()
	if err != nil {
		return nil, 0, err
	}
	drops, err := decodeSnapshot(doc)
	if err != nil {
		return nil, 0, err
	}
	return drops, version, nil
}

// Read returns the current snapshot, or an empty slice when the document
// does not exist yet.
func (f *FileHot) Read(ctx context.Context) ([]drop.SoundDrop, error) {
	drops, _, err := f.Load(ctx)
	return drops, err
}

// Swap replaces the document with drops if it is still at version.
func (f *FileHot) Swap(ctx context.Context, drops []drop.SoundDrop, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := encodeSnapshot(drops)
	if err != nil {
		return err
	}

	unlock, err := lockFile(f.lockPath())
	if err != nil {
		return err
	}
	defer unlock()

	_, current, err := f.readDoc()
	if err != nil {
		return err
	}
	if current != version {
		return fmt.Errorf("%w: %s changed on disk", drop.ErrConflict, filepath.Base(f.path))
	}
	return f.replace(doc)
}

// WriteAll atomically replaces the document with drops whatever it holds.
// Used to seed the store.
func (f *FileHot) WriteAll(ctx context.Context, drops []drop.SoundDrop) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := encodeSnapshot(drops)
	if err != nil {
		return err
	}

	unlock, err := lockFile(f.lockPath())
	if err != nil {
		return err
	}
	defer unlock()
	return f.replace(doc)
}

// readDoc returns the raw document and its version.
func (f *FileHot) readDoc() ([]byte, int64, error) {
	doc, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read hot file: %w", err)
	}
	return doc, docVersion(doc), nil
}

// docVersion is a positive, non-zero FNV-1a hash of doc.
func docVersion(doc []byte) int64 {
	h := fnv.New64a()
	h.Write(doc)
	v := int64(h.Sum64() >> 1)
	if v == 0 {
		v = 1
	}
	return v
}

// replace writes doc through a temp file. The caller holds the lock.
func (f *FileHot) replace(doc []byte) error {
	tmpPath := fmt.Sprintf("%s.%s.tmp", f.path, uuid.NewString()[:8])
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create temp hot file: %w", err)
	}

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp hot file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp hot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp hot file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace hot file: %w", err)
	}
	return nil
}

// Ping checks that the directory holding the document is writable.
func (f *FileHot) Ping(ctx context.Context) error {
	marker := filepath.Join(filepath.Dir(f.path), ".health_check")
	if err := os.WriteFile(marker, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("hot store dir not writable: %w", err)
	}
	return os.Remove(marker)
}
