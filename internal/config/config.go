package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SOUNDDROP_SERVER_PORT.
const EnvPrefix = "SOUNDDROP"

// Config holds all sounddrop configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Hot       HotConfig       `yaml:"hot"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Retention RetentionConfig `yaml:"retention"`
	Admin     AdminConfig     `yaml:"admin"`
	Upload    UploadConfig    `yaml:"upload"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite file; empty means <data dir>/sounddrop.db
}

type HotConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Path    string `yaml:"path"`    // JSON document for the file backend
}

type ArchiveConfig struct {
	Backend string        `yaml:"backend"` // "sqlite" or "postgres"
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

type RetentionConfig struct {
	ArchiveAfter   time.Duration `yaml:"archive_after" split_words:"true"`
	DisplayWindow  time.Duration `yaml:"display_window" split_words:"true"`
	AdminWindow    time.Duration `yaml:"admin_window" split_words:"true"`
	SweepCron      string        `yaml:"sweep_cron" split_words:"true"`
	ResearchStatus string        `yaml:"research_status" split_words:"true"`
	StudyPhase     string        `yaml:"study_phase" split_words:"true"`
	ThemeTimezone  string        `yaml:"theme_timezone" split_words:"true"`
}

type AdminConfig struct {
	Key string `yaml:"key"`
}

type UploadConfig struct {
	MaxBytes   int64   `yaml:"max_bytes" split_words:"true"`
	RatePerSec float64 `yaml:"rate_per_sec" split_words:"true"` // 0 disables limiting
	Burst      int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 5000,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via ResolvePaths
		},
		Hot: HotConfig{
			Backend: "file",
		},
		Archive: ArchiveConfig{
			Backend: "sqlite",
			Timeout: 5 * time.Second,
		},
		Retention: RetentionConfig{
			ArchiveAfter:   7 * 24 * time.Hour,
			DisplayWindow:  30 * time.Hour,
			AdminWindow:    7 * 24 * time.Hour,
			SweepCron:      "*/15 * * * *",
			ResearchStatus: "archived",
			StudyPhase:     "phase_1",
			ThemeTimezone:  "UTC",
		},
		Upload: UploadConfig{
			MaxBytes:   16 << 20,
			RatePerSec: 1,
			Burst:      5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty), a .env file in the working directory, and SOUNDDROP_*
// environment variables, in that order of precedence, lowest first.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Hot.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("hot.backend must be file or sqlite, got %q", c.Hot.Backend))
	}
	switch c.Archive.Backend {
	case "sqlite":
	case "postgres":
		if c.Archive.DSN == "" {
			errs = append(errs, errors.New("archive.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.backend must be sqlite or postgres, got %q", c.Archive.Backend))
	}
	if c.Archive.Timeout <= 0 {
		errs = append(errs, errors.New("archive.timeout must be positive"))
	}

	r := c.Retention
	if r.DisplayWindow <= 0 || r.ArchiveAfter <= 0 || r.AdminWindow <= 0 {
		errs = append(errs, errors.New("retention windows must be positive"))
	} else if r.ArchiveAfter < r.DisplayWindow {
		errs = append(errs, fmt.Errorf("retention.archive_after (%s) must not be shorter than retention.display_window (%s)", r.ArchiveAfter, r.DisplayWindow))
	}
	if r.SweepCron != "" && !gronx.IsValid(r.SweepCron) {
		errs = append(errs, fmt.Errorf("retention.sweep_cron %q is not a valid cron expression", r.SweepCron))
	}
	if _, err := time.LoadLocation(r.ThemeTimezone); err != nil {
		errs = append(errs, fmt.Errorf("retention.theme_timezone: %w", err))
	}

	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Upload.RatePerSec < 0 {
		errs = append(errs, errors.New("upload.rate_per_sec must not be negative"))
	}
	if c.Upload.RatePerSec > 0 && c.Upload.Burst < 1 {
		errs = append(errs, errors.New("upload.burst must be at least 1 when rate limiting is on"))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ResolvePaths fills empty storage paths with files under dataDir.
func (c *Config) ResolvePaths(dataDir string) {
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(dataDir, "sounddrop.db")
	}
	if c.Hot.Path == "" {
		c.Hot.Path = filepath.Join(dataDir, "sound_drops.json")
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Location returns the timezone used for calendar days.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Retention.ThemeTimezone)
}

// NewLogger builds the service logger from the log section.
func NewLogger(c LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", "sounddrop").
		Logger()
}
