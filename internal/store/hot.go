package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/sounddrop/internal/drop"
)

// SQLiteHot keeps the hot store as one JSON document in the hot_snapshot
// table. The version column counts writes, and Swap only lands on the
// version it was handed, so processes sharing the database file cannot
// overwrite each other's changes.
type SQLiteHot struct {
	db *DB
}

// NewSQLiteHot returns a hot store backed by db.
func NewSQLiteHot(db *DB) *SQLiteHot {
	return &SQLiteHot{db: db}
}

// Load returns the current snapshot and its version. Both are empty when
// nothing was written yet.
func (h *SQLiteHot) Load(ctx context.Context) ([]drop.SoundDrop, int64, error) {
	var doc string
	var version int64
	err := h.db.QueryRowContext(ctx, `SELECT document, version FROM hot_snapshot WHERE id = 1`).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return []drop.SoundDrop{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read hot snapshot: %w", err)
	}
	drops, err := decodeSnapshot([]byte(doc))
	if err != nil {
		return nil, 0, err
	}
	return drops, version, nil
}

// Read returns the current snapshot, or an empty slice when none was written yet.
func (h *SQLiteHot) Read(ctx context.Context) ([]drop.SoundDrop, error) {
	drops, _, err := h.Load(ctx)
	return drops, err
}

// Swap replaces the snapshot if it is still at version.
func (h *SQLiteHot) Swap(ctx context.Context, drops []drop.SoundDrop, version int64) error {
	doc, err := encodeSnapshot(drops)
	if err != nil {
		return err
	}

	var res sql.Result
	if version == 0 {
		res, err = h.db.ExecContext(ctx, `
			INSERT INTO hot_snapshot (id, document, version, updated_at)
			VALUES (1, ?, 1, ?)
			ON CONFLICT(id) DO NOTHING
		`, string(doc), time.Now().UnixMilli())
	} else {
		res, err = h.db.ExecContext(ctx, `
			UPDATE hot_snapshot
			SET document = ?, version = version + 1, updated_at = ?
			WHERE id = 1 AND version = ?
		`, string(doc), time.Now().UnixMilli(), version)
	}
	if err != nil {
		return fmt.Errorf("write hot snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write hot snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: sqlite snapshot moved past version %d", drop.ErrConflict, version)
	}
	return nil
}

// WriteAll replaces the snapshot with drops whatever its version. Used to
// seed the store.
func (h *SQLiteHot) WriteAll(ctx context.Context, drops []drop.SoundDrop) error {
	doc, err := encodeSnapshot(drops)
	if err != nil {
		return err
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO hot_snapshot (id, document, version, updated_at)
		VALUES (1, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			version = hot_snapshot.version + 1,
			updated_at = excluded.updated_at
	`, string(doc), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write hot snapshot: %w", err)
	}
	return nil
}

// Ping checks the underlying database.
func (h *SQLiteHot) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func encodeSnapshot(drops []drop.SoundDrop) ([]byte, error) {
	if drops == nil {
		drops = []drop.SoundDrop{}
	}
	doc, err := json.Marshal(drops)
	if err != nil {
		return nil, fmt.Errorf("encode hot snapshot: %w", err)
	}
	return doc, nil
}

func decodeSnapshot(doc []byte) ([]drop.SoundDrop, error) {
	drops := []drop.SoundDrop{}
	if len(doc) == 0 {
		return drops, nil
	}
	if err := json.Unmarshal(doc, &drops); err != nil {
		return nil, fmt.Errorf("decode hot snapshot: %w", err)
	}
	for i := range drops {
		if drops[i].Discussions == nil {
			drops[i].Discussions = []drop.Comment{}
		}
	}
	return drops, nil
}
