package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lazypower/sounddrop/internal/drop"
)

// SQLiteArchive is the append-only research archive in the archived_drops
// table, keyed by the drop's original id.
type SQLiteArchive struct {
	db *DB
}

// NewSQLiteArchive returns an archive store backed by db.
func NewSQLiteArchive(db *DB) *SQLiteArchive {
	return &SQLiteArchive{db: db}
}

const archiveColumns = `id, timestamp, theme, audio_data, context, type, filename, discussions,
	archived_at, research_status, study_phase`

// Insert archives a drop. It reports false, with no error, when a drop with
// the same id is already archived; the existing row is left untouched.
func (a *SQLiteArchive) Insert(ctx context.Context, rec drop.ArchivedDrop) (bool, error) {
	discussions, err := encodeDiscussions(rec.Discussions)
	if err != nil {
		return false, err
	}

	result, err := a.db.ExecContext(ctx, `
		INSERT INTO archived_drops (`+archiveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.Timestamp, rec.Theme, rec.AudioData, rec.Context, rec.Type, rec.Filename,
		discussions, rec.ArchivedAt, rec.ResearchStatus, rec.StudyPhase)
	if err != nil {
		return false, fmt.Errorf("insert archived drop %d: %w", rec.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert archived drop %d: %w", rec.ID, err)
	}
	return rows > 0, nil
}

// Count returns the number of archived drops.
func (a *SQLiteArchive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_drops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived drops: %w", err)
	}
	return n, nil
}

// Query lists archived drops matching q.
func (a *SQLiteArchive) Query(ctx context.Context, q drop.ArchiveQuery) ([]drop.ArchivedDrop, error) {
	var where []string
	var args []any
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, q.Type)
	}
	if q.Theme != "" {
		where = append(where, "theme = ?")
		args = append(args, q.Theme)
	}
	if q.Since != 0 {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since)
	}
	if q.Until != 0 {
		where = append(where, "timestamp < ?")
		args = append(args, q.Until)
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
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archived drops: %w", err)
	}
	defer rows.Close()

	out := []drop.ArchivedDrop{}
	for rows.Next() {
		var rec drop.ArchivedDrop
		var discussions string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Theme, &rec.AudioData, &rec.Context,
			&rec.Type, &rec.Filename, &discussions, &rec.ArchivedAt, &rec.ResearchStatus, &rec.StudyPhase); err != nil {
			return nil, fmt.Errorf("scan archived drop: %w", err)
		}
		if rec.Discussions, err = decodeDiscussions([]byte(discussions)); err != nil {
			return nil, fmt.Errorf("archived drop %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindSince returns archived drops created at or after ts (ms), newest first.
func (a *SQLiteArchive) FindSince(ctx context.Context, ts int64) ([]drop.ArchivedDrop, error) {
	return a.Query(ctx, drop.ArchiveQuery{Since: ts})
}

// Ping checks the underlying database.
func (a *SQLiteArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func encodeDiscussions(comments []drop.Comment) ([]byte, error) {
	if comments == nil {
		comments = []drop.Comment{}
	}
	b, err := json.Marshal(comments)
	if err != nil {
		return nil, fmt.Errorf("encode discussions: %w", err)
	}
	return b, nil
}

func decodeDiscussions(b []byte) ([]drop.Comment, error) {
	comments := []drop.Comment{}
	if len(b) == 0 {
		return comments, nil
	}
	if err := json.Unmarshal(b, &comments); err != nil {
		return nil, fmt.Errorf("decode discussions: %w", err)
	}
	return comments, nil
}
