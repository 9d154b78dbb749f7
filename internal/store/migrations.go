package store

import (
	"context"
	"fmt"
	"time"
)

// migration is one forward-only schema step.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "hot_snapshot: single-document hot store",
		SQL: `
CREATE TABLE hot_snapshot (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    document    TEXT NOT NULL,
    version     INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "archived_drops: append-only research archive",
		SQL: `
CREATE TABLE archived_drops (
    id               INTEGER PRIMARY KEY,
    timestamp        INTEGER NOT NULL,
    theme            TEXT NOT NULL DEFAULT '',
    audio_data       TEXT NOT NULL DEFAULT '',
    context          TEXT NOT NULL DEFAULT '',
    type             TEXT NOT NULL CHECK (type IN ('recorded', 'uploaded')),
    filename         TEXT NOT NULL DEFAULT '',
    discussions      TEXT NOT NULL DEFAULT '[]',

    -- Research metadata
    archived_at      TEXT NOT NULL,
    research_status  TEXT NOT NULL,
    study_phase      TEXT NOT NULL
);

CREATE INDEX idx_archived_timestamp ON archived_drops(timestamp DESC);
CREATE INDEX idx_archived_theme     ON archived_drops(theme);
CREATE INDEX idx_archived_type      ON archived_drops(type);
`,
	},
}

// migrate applies, in order, every migration not yet recorded in
// schema_versions. Each migration commits together with its version row.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_versions (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration, 0 for a new database.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_versions`).Scan(&version)
	return version, err
}
