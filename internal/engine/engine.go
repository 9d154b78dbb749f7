package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lazypower/sounddrop/internal/drop"
)

// HotStore is the single-document store of active drops, shared by every
// process pointed at the same data dir.
//
// Load returns the snapshot and its version, an empty slice and version 0
// when nothing was written yet. Swap replaces the snapshot only while it is
// still at version and fails with an error wrapping drop.ErrConflict
// otherwise.
type HotStore interface {
	Load(ctx context.Context) ([]drop.SoundDrop, int64, error)
	Swap(ctx context.Context, drops []drop.SoundDrop, version int64) error
}

// ArchiveStore is the append-only research archive, keyed by drop id.
// Insert reports false with a nil error when the id is already archived.
type ArchiveStore interface {
	Insert(ctx context.Context, rec drop.ArchivedDrop) (bool, error)
	Count(ctx context.Context) (int, error)
	Query(ctx context.Context, q drop.ArchiveQuery) ([]drop.ArchivedDrop, error)
	FindSince(ctx context.Context, ts int64) ([]drop.ArchivedDrop, error)
}

// Options holds the retention thresholds and archive metadata.
type Options struct {
	ArchiveAfter   time.Duration
	DisplayWindow  time.Duration
	AdminWindow    time.Duration
	ArchiveTimeout time.Duration
	ResearchStatus string
	StudyPhase     string
	// Location is the timezone used to decide calendar days for themes
	// and the archive views.
	Location *time.Location
}

// DefaultOptions returns a 7-day archive threshold, a 30-hour display
// window and a 7-day admin window.
func DefaultOptions() Options {
	return Options{
		ArchiveAfter:   7 * 24 * time.Hour,
		DisplayWindow:  30 * time.Hour,
		AdminWindow:    7 * 24 * time.Hour,
		ArchiveTimeout: 5 * time.Second,
		ResearchStatus: "archived",
		StudyPhase:     "phase_1",
		Location:       time.UTC,
	}
}

// Engine owns the retention lifecycle of sound drops: it sweeps expired
// drops from the hot store into the archive, and serializes every
// read-modify-write of the hot snapshot.
type Engine struct {
	Hot     HotStore
	Archive ArchiveStore

	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates an Engine over the given stores.
func New(hot HotStore, archive ArchiveStore, opts Options, logger zerolog.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{
		Hot:     hot,
		Archive: archive,
		opts:    opts,
		logger:  logger.With().Str("component", "engine").Logger(),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Options returns the engine's configured thresholds.
func (e *Engine) Options() Options {
	return e.opts
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// ThemeFor returns the theme of t's calendar day in the engine's timezone.
func (e *Engine) ThemeFor(t time.Time) drop.Theme {
	return drop.ThemeFor(t.In(e.opts.Location))
}

// NewDrop is a client submission.
type NewDrop struct {
	AudioData string `json:"audioData"`
	Context   string `json:"context"`
	Type      string `json:"type"`
	Filename  string `json:"filename"`
}

// CreateDrop validates and stores a new drop at the front of the hot snapshot.
func (e *Engine) CreateDrop(ctx context.Context, in NewDrop) (*drop.SoundDrop, error) {
	if in.AudioData == "" {
		return nil, fmt.Errorf("%w: audioData is required", drop.ErrValidation)
	}
	if in.Type == "" {
		in.Type = drop.TypeRecorded
	}
	if !drop.IsValidType(in.Type) {
		return nil, fmt.Errorf("%w: type must be %q or %q", drop.ErrValidation, drop.TypeRecorded, drop.TypeUploaded)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var d drop.SoundDrop
	err := e.retryConflicts(ctx, "create drop", func() error {
		drops, version, err := e.loadHot(ctx)
		if err != nil {
			return err
		}

		now := e.now()
		ids := make([]int64, len(drops))
		for i := range drops {
			ids[i] = drops[i].ID
		}
		id := drop.NextID(now.UnixMilli(), ids...)

		d = drop.SoundDrop{
			ID:          id,
			Timestamp:   now.UnixMilli(),
			Theme:       e.ThemeFor(now).Title,
			AudioData:   in.AudioData,
			Context:     in.Context,
			Type:        in.Type,
			Filename:    in.Filename,
			Discussions: []drop.Comment{},
		}
		if d.Filename == "" {
			d.Filename = fmt.Sprintf("recording_%d", id)
		}

		next := make([]drop.SoundDrop, 0, len(drops)+1)
		next = append(next, d)
		next = append(next, drops...)
		return e.writeHot(ctx, next, version)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Int64("id", d.ID).Str("type", d.Type).Str("theme", d.Theme).Msg("drop created")
	return &d, nil
}

// GetDrop returns an active drop by id.
func (e *Engine) GetDrop(ctx context.Context, id int64) (*drop.SoundDrop, error) {
	res, err := e.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	for i := range res.Display {
		if res.Display[i].ID == id {
			d := res.Display[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: sound drop %d", drop.ErrNotFound, id)
}

// List filters.
const (
	FilterAll       = "all"
	FilterRecorded  = "recorded"
	FilterUploaded  = "uploaded"
	FilterDiscussed = "discussed"
)

// ListActive sweeps and returns the active drops matching filter, newest first.
func (e *Engine) ListActive(ctx context.Context, filter string) ([]drop.SoundDrop, error) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		filter = FilterAll
	}
	switch filter {
	case FilterAll, FilterRecorded, FilterUploaded, FilterDiscussed:
	default:
		return nil, fmt.Errorf("%w: unknown filter %q", drop.ErrValidation, filter)
	}

	res, err := e.Sweep(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]drop.SoundDrop, 0, len(res.Display))
	for _, d := range res.Display {
		switch filter {
		case FilterRecorded, FilterUploaded:
			if d.Type != filter {
				continue
			}
		case FilterDiscussed:
			if len(d.Discussions) == 0 {
				continue
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// AddComment appends a comment to a drop's discussion.
func (e *Engine) AddComment(ctx context.Context, dropID int64, text, author string) (*drop.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", drop.ErrValidation)
	}
	author = strings.TrimSpace(author)
	if author == "" {
		author = drop.DefaultAuthor
	}

	var c drop.Comment
	err := e.mutateDrop(ctx, dropID, func(d *drop.SoundDrop, now int64) error {
		ids := make([]int64, len(d.Discussions))
		for i := range d.Discussions {
			ids[i] = d.Discussions[i].ID
		}
		c = drop.Comment{
			ID:        drop.NextID(now, ids...),
			Timestamp: now,
			Text:      text,
			Author:    author,
		}
		d.Discussions = append(d.Discussions, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EditComment replaces a comment's text and marks it edited.
func (e *Engine) EditComment(ctx context.Context, dropID, commentID int64, text string) (*drop.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", drop.ErrValidation)
	}

	var c drop.Comment
	err := e.mutateDrop(ctx, dropID, func(d *drop.SoundDrop, now int64) error {
		i := d.FindComment(commentID)
		if i < 0 {
			return fmt.Errorf("%w: comment %d on sound drop %d", drop.ErrNotFound, commentID, dropID)
		}
		d.Discussions[i].Text = text
		d.Discussions[i].Edited = true
		d.Discussions[i].EditedAt = now
		c = d.Discussions[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteComment removes a comment from a drop's discussion.
func (e *Engine) DeleteComment(ctx context.Context, dropID, commentID int64) error {
	return e.mutateDrop(ctx, dropID, func(d *drop.SoundDrop, _ int64) error {
		i := d.FindComment(commentID)
		if i < 0 {
			return fmt.Errorf("%w: comment %d on sound drop %d", drop.ErrNotFound, commentID, dropID)
		}
		d.Discussions = append(d.Discussions[:i], d.Discussions[i+1:]...)
		return nil
	})
}

// mutateDrop loads the hot snapshot, applies fn to a copy of the drop and
// persists the whole snapshot. Nothing is written when fn fails.
func (e *Engine) mutateDrop(ctx context.Context, dropID int64, fn func(d *drop.SoundDrop, now int64) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.retryConflicts(ctx, "update drop", func() error {
		drops, version, err := e.loadHot(ctx)
		if err != nil {
			return err
		}

		idx := -1
		for i := range drops {
			if drops[i].ID == dropID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: sound drop %d", drop.ErrNotFound, dropID)
		}

		d := drops[idx].Clone()
		if d.Discussions == nil {
			d.Discussions = []drop.Comment{}
		}
		if err := fn(&d, e.now().UnixMilli()); err != nil {
			return err
		}

		next := make([]drop.SoundDrop, len(drops))
		copy(next, drops)
		next[idx] = d
		return e.writeHot(ctx, next, version)
	})
}

// maxHotAttempts bounds how often a write is replayed against a snapshot
// another process keeps changing.
const maxHotAttempts = 5

// retryConflicts runs fn, replaying it from a fresh load while it fails
// with drop.ErrConflict. The caller holds e.mu.
func (e *Engine) retryConflicts(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxHotAttempts; attempt++ {
		if err = fn(); !errors.Is(err, drop.ErrConflict) {
			return err
		}
		hotConflicts.Inc()
		e.logger.Debug().Str("op", op).Int("attempt", attempt).Msg("hot store changed underneath, retrying")
		if ctx.Err() != nil {
			break
		}
	}
	e.logger.Error().Err(err).Str("op", op).Msg("hot store kept changing, giving up")
	return fmt.Errorf("%w: %s: %v", drop.ErrStorage, op, err)
}

// readHot loads the snapshot for read-only use.
func (e *Engine) readHot(ctx context.Context) ([]drop.SoundDrop, error) {
	drops, _, err := e.loadHot(ctx)
	return drops, err
}

func (e *Engine) loadHot(ctx context.Context) ([]drop.SoundDrop, int64, error) {
	drops, version, err := e.Hot.Load(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("hot store read failed")
		return nil, 0, fmt.Errorf("%w: %v", drop.ErrStorage, err)
	}
	return drops, version, nil
}

// writeHot swaps in drops over the snapshot at version. Conflicts pass
// through unwrapped so retryConflicts can replay the operation.
func (e *Engine) writeHot(ctx context.Context, drops []drop.SoundDrop, version int64) error {
	err := e.Hot.Swap(ctx, drops, version)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, drop.ErrConflict):
		return err
	default:
		e.logger.Error().Err(err).Int("drops", len(drops)).Msg("hot store write failed")
		return fmt.Errorf("%w: %v", drop.ErrStorage, err)
	}
}
