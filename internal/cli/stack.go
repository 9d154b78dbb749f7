package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/lazypower/sounddrop/internal/config"
	"github.com/lazypower/sounddrop/internal/engine"
	"github.com/lazypower/sounddrop/internal/server"
	"github.com/lazypower/sounddrop/internal/store"
)

// stack is the engine and the stores behind it, opened from config.
type stack struct {
	engine  *engine.Engine
	checks  map[string]server.Pinger
	closers []func()
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	dataDir, err := store.DefaultDataDir()
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.ResolvePaths(dataDir)
	return cfg, config.NewLogger(cfg.Log, os.Stderr), nil
}

func openStack(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stack, error) {
	st := &stack{checks: make(map[string]server.Pinger)}

	var db *store.DB
	if cfg.Hot.Backend == "sqlite" || cfg.Archive.Backend == "sqlite" {
		var err error
		db, err = store.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		st.closers = append(st.closers, func() { db.Close() })
	}

	var hot engine.HotStore
	switch cfg.Hot.Backend {
	case "sqlite":
		h := store.NewSQLiteHot(db)
		hot = h
		st.checks["hot"] = h
	default:
		h, err := store.NewFileHot(cfg.Hot.Path)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open hot store: %w", err)
		}
		hot = h
		st.checks["hot"] = h
	}

	var archive engine.ArchiveStore
	switch cfg.Archive.Backend {
	case "postgres":
		// An unreachable server is not fatal: sweeps keep drops in the hot
		// store and archive reads fail until it comes back.
		pg, err := store.OpenPGArchive(ctx, cfg.Archive.DSN, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		archive = pg
		st.checks["archive"] = pg
		st.closers = append(st.closers, pg.Close)
	default:
		a := store.NewSQLiteArchive(db)
		archive = a
		st.checks["archive"] = a
	}

	loc, err := cfg.Location()
	if err != nil {
		st.Close()
		return nil, err
	}
	opts := engine.Options{
		ArchiveAfter:   cfg.Retention.ArchiveAfter,
		DisplayWindow:  cfg.Retention.DisplayWindow,
		AdminWindow:    cfg.Retention.AdminWindow,
		ArchiveTimeout: cfg.Archive.Timeout,
		ResearchStatus: cfg.Retention.ResearchStatus,
		StudyPhase:     cfg.Retention.StudyPhase,
		Location:       loc,
	}
	st.engine = engine.New(hot, archive, opts, logger)

	logger.Info().
		Str("hot", cfg.Hot.Backend).
		Str("archive", cfg.Archive.Backend).
		Dur("archive_after", opts.ArchiveAfter).
		Dur("display_window", opts.DisplayWindow).
		Msg("storage ready")
	return st, nil
}

// Close releases the stores in reverse order of opening.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
