package engine

import (
	"context"
	"errors"
	"time"

	"github.com/lazypower/sounddrop/internal/drop"
)

var errNoArchive = errors.New("no archive store configured")

// SweepPlan is the age partition of a hot snapshot.
type SweepPlan struct {
	// ToArchive holds drops at or past the archive threshold.
	ToArchive []drop.SoundDrop
	// Kept holds every other drop, in snapshot order.
	Kept []drop.SoundDrop
	// Display is the subset of Kept inside the display window, newest first.
	Display []drop.SoundDrop
}

// Plan partitions records by age at now (ms). It does no I/O.
func Plan(now int64, records []drop.SoundDrop, archiveAfter, displayWindow time.Duration) SweepPlan {
	archiveMs := archiveAfter.Milliseconds()
	displayMs := displayWindow.Milliseconds()

	p := SweepPlan{
		ToArchive: []drop.SoundDrop{},
		Kept:      []drop.SoundDrop{},
		Display:   []drop.SoundDrop{},
	}
	for _, r := range records {
		age := r.Age(now)
		if age >= archiveMs {
			p.ToArchive = append(p.ToArchive, r)
			continue
		}
		p.Kept = append(p.Kept, r)
		if age < displayMs {
			p.Display = append(p.Display, r)
		}
	}
	drop.SortNewestFirst(p.Display)
	return p
}

// SweepResult reports one sweep.
type SweepResult struct {
	// Display is the active set shown to users, newest first.
	Display []drop.SoundDrop
	// Archived counts drops removed from the hot store this sweep.
	Archived int
	// Failed counts archive candidates kept because the archive write failed.
	Failed int
	// Remaining is the hot snapshot after the sweep.
	Remaining []drop.SoundDrop
}

// Sweep archives drops past the archive threshold and returns the active set.
//
// A candidate leaves the hot store only after the archive confirms it,
// either by inserting it or by already holding its id. Archive failures are
// logged and retried on the next sweep; only hot store failures are returned.
func (e *Engine) Sweep(ctx context.Context) (*SweepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A replayed sweep finds its earlier inserts already archived, which
	// still counts as confirmed.
	var res *SweepResult
	err := e.retryConflicts(ctx, "sweep", func() error {
		var err error
		res, err = e.sweepLocked(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) sweepLocked(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	defer func() {
		sweepsTotal.Inc()
		sweepDuration.Observe(time.Since(start).Seconds())
	}()

	records, version, err := e.loadHot(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	plan := Plan(now.UnixMilli(), records, e.opts.ArchiveAfter, e.opts.DisplayWindow)
	if len(plan.ToArchive) == 0 {
		return &SweepResult{Display: plan.Display, Remaining: records}, nil
	}

	archivedAt := now.UTC().Format(time.RFC3339)
	archived := make(map[int64]bool, len(plan.ToArchive))
	failed := 0
	for _, d := range plan.ToArchive {
		if err := e.archiveOne(ctx, d, archivedAt); err != nil {
			failed++
			archiveFailures.Inc()
			e.logger.Warn().Err(err).Int64("id", d.ID).Msg("archive write failed, keeping drop in hot store")
			continue
		}
		archived[d.ID] = true
	}

	result := &SweepResult{
		Archived:  len(archived),
		Failed:    failed,
		Remaining: records,
	}
	if len(archived) == 0 {
		result.Display = e.display(now.UnixMilli(), records)
		return result, nil
	}

	remaining := make([]drop.SoundDrop, 0, len(records)-len(archived))
	for _, r := range records {
		if !archived[r.ID] {
			remaining = append(remaining, r)
		}
	}
	if err := e.writeHot(ctx, remaining, version); err != nil {
		return nil, err
	}
	dropsArchived.Add(float64(len(archived)))

	result.Display = e.display(now.UnixMilli(), remaining)
	result.Remaining = remaining

	e.logger.Info().
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Int("remaining", len(remaining)).
		Msg("sweep archived drops")
	return result, nil
}

// display returns the drops of a hot snapshot inside the display window,
// newest first, including archive candidates that failed to move.
func (e *Engine) display(now int64, records []drop.SoundDrop) []drop.SoundDrop {
	displayMs := e.opts.DisplayWindow.Milliseconds()
	out := []drop.SoundDrop{}
	for _, r := range records {
		if r.Age(now) < displayMs {
			out = append(out, r)
		}
	}
	drop.SortNewestFirst(out)
	return out
}

func (e *Engine) archiveOne(ctx context.Context, d drop.SoundDrop, archivedAt string) error {
	if e.Archive == nil {
		return errNoArchive
	}
	actx := ctx
	if e.opts.ArchiveTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, e.opts.ArchiveTimeout)
		defer cancel()
	}

	inserted, err := e.Archive.Insert(actx, drop.ArchivedDrop{
		SoundDrop:      d.Clone(),
		ArchivedAt:     archivedAt,
		ResearchStatus: e.opts.ResearchStatus,
		StudyPhase:     e.opts.StudyPhase,
	})
	if err != nil {
		return err
	}
	if !inserted {
		e.logger.Info().Int64("id", d.ID).Msg("drop already archived, removing from hot store")
	}
	return nil
}
