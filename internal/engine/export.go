package engine

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/sounddrop/internal/drop"
)

// AdminDrops returns hot and archived drops created inside the admin window,
// deduplicated and newest first. The hot store is read without sweeping.
func (e *Engine) AdminDrops(ctx context.Context) ([]drop.Record, error) {
	hot, err := e.readHot(ctx)
	if err != nil {
		return nil, err
	}

	since := e.now().Add(-e.opts.AdminWindow).UnixMilli()
	recent := make([]drop.SoundDrop, 0, len(hot))
	for _, d := range hot {
		if d.Timestamp >= since {
			recent = append(recent, d)
		}
	}

	archive, err := e.archive()
	if err != nil {
		return nil, err
	}
	archived, err := archive.FindSince(ctx, since)
	if err != nil {
		e.logger.Error().Err(err).Msg("archive read failed")
		return nil, fmt.Errorf("%w: %v", drop.ErrStorage, err)
	}
	return Dedupe(recent, archived), nil
}

// archive returns the research archive. Views that merge both stores fail
// rather than present the hot store alone as the whole picture.
func (e *Engine) archive() (ArchiveStore, error) {
	if e.Archive == nil {
		return nil, fmt.Errorf("%w: %v", drop.ErrStorage, errNoArchive)
	}
	return e.Archive, nil
}

// ExportOptions narrows a research export. Zero values mean no constraint.
type ExportOptions struct {
	Type  string
	Theme string
	Since int64 // ms, inclusive
	Limit int
}

// Export is a research export of hot and archived drops.
type Export struct {
	ExportedAt    string        `json:"exported_at"`
	Total         int           `json:"total"`
	HotCount      int           `json:"hot_count"`
	ArchivedCount int           `json:"archived_count"`
	Drops         []drop.Record `json:"drops"`
}

// Export collects every hot drop and the matching archived drops, deduplicated.
// HotCount and ArchivedCount are store totals before filtering.
func (e *Engine) Export(ctx context.Context, opts ExportOptions) (*Export, error) {
	if opts.Type != "" && !drop.IsValidType(opts.Type) {
		return nil, fmt.Errorf("%w: unknown type %q", drop.ErrValidation, opts.Type)
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", drop.ErrValidation)
	}

	archive, err := e.archive()
	if err != nil {
		return nil, err
	}
	hot, err := e.readHot(ctx)
	if err != nil {
		return nil, err
	}

	q := drop.ArchiveQuery{Type: opts.Type, Theme: opts.Theme, Since: opts.Since, Limit: opts.Limit}
	filtered := make([]drop.SoundDrop, 0, len(hot))
	for i := range hot {
		if q.Matches(&hot[i]) {
			filtered = append(filtered, hot[i])
		}
	}

	out := &Export{
		ExportedAt: e.now().UTC().Format(time.RFC3339),
		HotCount:   len(hot),
	}

	archived, err := archive.Query(ctx, q)
	if err != nil {
		e.logger.Error().Err(err).Msg("archive query failed")
		return nil, fmt.Errorf("%w: %v", drop.ErrStorage, err)
	}
	if out.ArchivedCount, err = archive.Count(ctx); err != nil {
		e.logger.Error().Err(err).Msg("archive count failed")
		return nil, fmt.Errorf("%w: %v", drop.ErrStorage, err)
	}

	out.Drops = Dedupe(filtered, archived)
	if opts.Limit > 0 && len(out.Drops) > opts.Limit {
		out.Drops = out.Drops[:opts.Limit]
	}
	out.Total = len(out.Drops)

	e.logger.Info().
		Int("total", out.Total).
		Int("hot", out.HotCount).
		Int("archived", out.ArchivedCount).
		Msg("research export")
	return out, nil
}

// WriteJSON writes the export as an indented JSON document.
func (x *Export) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(x)
}

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{
	"id", "timestamp", "created_at", "theme", "type", "filename", "context",
	"comment_count", "comments", "audio_bytes", "source",
	"archived_at", "research_status", "study_phase",
}

// WriteCSV writes one row per drop. Audio payloads are reduced to their size.
func (x *Export) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range x.Drops {
		if err := cw.Write(csvRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r drop.Record) []string {
	comments := make([]string, len(r.Discussions))
	for i, c := range r.Discussions {
		comments[i] = c.Author + ": " + c.Text
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		strconv.FormatInt(r.Timestamp, 10),
		time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339),
		r.Theme,
		r.Type,
		r.Filename,
		r.Context,
		strconv.Itoa(len(r.Discussions)),
		strings.Join(comments, " | "),
		strconv.Itoa(drop.AudioSize(r.AudioData)),
		r.Source,
		r.ArchivedAt,
		r.ResearchStatus,
		r.StudyPhase,
	}
}
