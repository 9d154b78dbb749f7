package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lazypower/sounddrop/internal/drop"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS archived_drops (
    id               BIGINT PRIMARY KEY,
    timestamp        BIGINT NOT NULL,
    theme            TEXT NOT NULL DEFAULT '',
    audio_data       TEXT NOT NULL DEFAULT '',
    context          TEXT NOT NULL DEFAULT '',
    type             TEXT NOT NULL CHECK (type IN ('recorded', 'uploaded')),
    filename         TEXT NOT NULL DEFAULT '',
    discussions      JSONB NOT NULL DEFAULT '[]',
    archived_at      TEXT NOT NULL,
    research_status  TEXT NOT NULL,
    study_phase      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_timestamp ON archived_drops(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_archived_theme ON archived_drops(theme);
CREATE INDEX IF NOT EXISTS idx_archived_type ON archived_drops(type);
`

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgStartupTimeout bounds the schema attempt made while opening.
const pgStartupTimeout = 5 * time.Second

// PGArchive is the research archive on PostgreSQL.
//
// The pool connects on demand, so an archive that is down at startup only
// fails the calls made while it is down. The schema is created by the
// first call that reaches the server.
type PGArchive struct {
	pool   *pgxpool.Pool
	db     DBTX
	logger zerolog.Logger

	mu    sync.Mutex
	ready bool
}

// OpenPGArchive builds the archive pool for dsn and tries to prepare the
// schema. Only a malformed dsn is an error; an unreachable server is logged
// and retried by later calls.
func OpenPGArchive(ctx context.Context, dsn string, logger zerolog.Logger) (*PGArchive, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse archive dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create archive pool: %w", err)
	}

	logger = logger.With().
		Str("host", poolCfg.ConnConfig.Host).
		Uint16("port", poolCfg.ConnConfig.Port).
		Str("database", poolCfg.ConnConfig.Database).
		Logger()
	a := &PGArchive{pool: pool, db: pool, logger: logger}

	initCtx, cancel := context.WithTimeout(ctx, pgStartupTimeout)
	defer cancel()
	if err := a.ensureSchema(initCtx); err != nil {
		logger.Warn().Err(err).Msg("postgres archive unreachable, will retry on use")
	}
	return a, nil
}

// ensureSchema creates the archive table once per process.
func (a *PGArchive) ensureSchema(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}
	if _, err := a.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	a.ready = true
	a.logger.Info().Msg("postgres archive connected")
	return nil
}

// Insert archives a drop; false with no error means the id was already archived.
func (a *PGArchive) Insert(ctx context.Context, rec drop.ArchivedDrop) (bool, error) {
	if err := a.ensureSchema(ctx); err != nil {
		return false, err
	}
	discussions, err := encodeDiscussions(rec.Discussions)
	if err != nil {
		return false, err
	}
	tag, err := a.db.Exec(ctx, `
		INSERT INTO archived_drops (`+archiveColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Timestamp, rec.Theme, rec.AudioData, rec.Context, rec.Type, rec.Filename,
		string(discussions), rec.ArchivedAt, rec.ResearchStatus, rec.StudyPhase)
	if err != nil {
		return false, fmt.Errorf("insert archived drop %d: %w", rec.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Count returns the number of archived drops.
func (a *PGArchive) Count(ctx context.Context) (int, error) {
	if err := a.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := a.db.QueryRow(ctx, `SELECT COUNT(*) FROM archived_drops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived drops: %w", err)
	}
	return n, nil
}

// Query lists archived drops matching q.
func (a *PGArchive) Query(ctx context.Context, q drop.ArchiveQuery) ([]drop.ArchivedDrop, error) {
	if err := a.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Type != "" {
		where = append(where, "type = "+arg(q.Type))
	}
	if q.Theme != "" {
		where = append(where, "theme = "+arg(q.Theme))
	}
	if q.Since != 0 {
		where = append(where, "timestamp >= "+arg(q.Since))
	}
	if q.Until != 0 {
		where = append(where, "timestamp < "+arg(q.Until))
	}

	query := `SELECT ` + archiveColumns + ` FROM archived_drops`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Ascending {
		query += " ORDER BY timestamp ASC, id ASC"
	} else {
		query += " ORDER BY timestamp DESC, id DESC"
	}
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archived drops: %w", err)
	}
	defer rows.Close()

	out := []drop.ArchivedDrop{}
	for rows.Next() {
		var rec drop.ArchivedDrop
		var discussions []byte
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Theme, &rec.AudioData, &rec.Context,
			&rec.Type, &rec.Filename, &discussions, &rec.ArchivedAt, &rec.ResearchStatus, &rec.StudyPhase); err != nil {
			return nil, fmt.Errorf("scan archived drop: %w", err)
		}
		if rec.Discussions, err = decodeDiscussions(discussions); err != nil {
			return nil, fmt.Errorf("archived drop %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindSince returns archived drops created at or after ts (ms), newest first.
func (a *PGArchive) FindSince(ctx context.Context, ts int64) ([]drop.ArchivedDrop, error) {
	return a.Query(ctx, drop.ArchiveQuery{Since: ts})
}

// Ping checks the pool.
func (a *PGArchive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Truncate removes every archived drop. Used by tests.
func (a *PGArchive) Truncate(ctx context.Context) error {
	if err := a.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := a.db.Exec(ctx, `TRUNCATE archived_drops`)
	return err
}

// Close releases the pool.
func (a *PGArchive) Close() {
	a.pool.Close()
}
