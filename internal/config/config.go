// Package config holds the pipeline configuration. Values resolve with
// flag > environment > config file > default precedence, so a partial JSON
// file or a bare command line both work.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	domainerrors "github.com/banshee-data/reading.report/internal/errors"
)

// Environment variable names.
const (
	EnvSpreadsheetID   = "READING_REPORT_SPREADSHEET_ID"
	EnvDataDir         = "READING_REPORT_DATA_DIR"
	EnvYear            = "READING_REPORT_YEAR"
	EnvArchivePath     = "READING_REPORT_ARCHIVE_PATH"
	EnvBooksWorksheet  = "READING_REPORT_BOOKS_WORKSHEET"
	EnvLegacyWorksheet = "READING_REPORT_LEGACY_WORKSHEET"
)

// Defaults applied when neither flag, environment, nor file set a value.
const (
	DefaultSpreadsheetID   = "1mRx4CClu1io5Ievu9b5PTJ6nIEDOFfl-oFgIv55Q37g"
	DefaultDataDir         = "data"
	DefaultArchiveFile     = "reading_report.db"
	DefaultBooksWorksheet  = "books"
	DefaultLegacyWorksheet = "consolidate"
	DefaultRequestTimeout  = 30 * time.Second
)

// Config is the file layer. Fields are pointers so a partial JSON file
// leaves the rest of the precedence chain in effect.
type Config struct {
	SpreadsheetID   *string `json:"spreadsheet_id,omitempty"`
	DataDir         *string `json:"data_dir,omitempty"`
	ArchivePath     *string `json:"archive_path,omitempty"`
	BooksWorksheet  *string `json:"books_worksheet,omitempty"`
	LegacyWorksheet *string `json:"legacy_worksheet,omitempty"`
	Year            *int    `json:"year,omitempty"`
	Color           *bool   `json:"color,omitempty"`
	Chart           *bool   `json:"chart,omitempty"`
	Archive         *bool   `json:"archive,omitempty"`
	Snapshots       *bool   `json:"snapshots,omitempty"`
	RequestTimeout  *string `json:"request_timeout,omitempty"` // duration string like "30s"
}

// Empty returns a Config with no file values set.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. Omitted fields keep their defaults,
// so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, domainerrors.Configf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeConfig, "reading config file")
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, domainerrors.Configf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeConfig, "reading config file")
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeConfig, "parsing config JSON")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the file-level values.
func (c *Config) Validate() error {
	if c.SpreadsheetID != nil && *c.SpreadsheetID == "" {
		return domainerrors.Config("spreadsheet_id must not be empty")
	}
	if c.DataDir != nil && *c.DataDir == "" {
		return domainerrors.Config("data_dir must not be empty")
	}
	if c.Year != nil && *c.Year <= 0 {
		return domainerrors.Configf("year must be positive, got %d", *c.Year)
	}
	if c.RequestTimeout != nil && *c.RequestTimeout != "" {
		if _, err := time.ParseDuration(*c.RequestTimeout); err != nil {
			return domainerrors.Wrapf(err, domainerrors.CodeConfig, "invalid request_timeout %q", *c.RequestTimeout)
		}
	}
	return nil
}

// Flags carries command-line overrides. Zero values mean "not set".
type Flags struct {
	SpreadsheetID   string
	DataDir         string
	ArchivePath     string
	BooksWorksheet  string
	LegacyWorksheet string
	Year            int
	Timeout         string
	NoColor         bool
	NoChart         bool
	NoArchive       bool
	NoSnapshots     bool
}

// Resolved is the effective configuration after applying precedence.
type Resolved struct {
	SpreadsheetID   string
	DataDir         string
	ArchivePath     string
	BooksWorksheet  string
	LegacyWorksheet string
	Year            int // 0 means the current year
	Color           bool
	Chart           bool
	Archive         bool
	Snapshots       bool
	RequestTimeout  time.Duration
}

// Resolve applies flag > environment > file > default for every setting.
func (c *Config) Resolve(f Flags) (Resolved, error) {
	r := Resolved{
		SpreadsheetID:   resolveString(f.SpreadsheetID, EnvSpreadsheetID, c.SpreadsheetID, DefaultSpreadsheetID),
		DataDir:         resolveString(f.DataDir, EnvDataDir, c.DataDir, DefaultDataDir),
		BooksWorksheet:  resolveString(f.BooksWorksheet, EnvBooksWorksheet, c.BooksWorksheet, DefaultBooksWorksheet),
		LegacyWorksheet: resolveString(f.LegacyWorksheet, EnvLegacyWorksheet, c.LegacyWorksheet, DefaultLegacyWorksheet),
		Color:           resolveBool(f.NoColor, c.Color),
		Chart:           resolveBool(f.NoChart, c.Chart),
		Archive:         resolveBool(f.NoArchive, c.Archive),
		Snapshots:       resolveBool(f.NoSnapshots, c.Snapshots),
		RequestTimeout:  DefaultRequestTimeout,
	}

	r.ArchivePath = resolveString(f.ArchivePath, EnvArchivePath, c.ArchivePath, filepath.Join(r.DataDir, DefaultArchiveFile))

	year, err := resolveYear(f.Year, c.Year)
	if err != nil {
		return Resolved{}, err
	}
	r.Year = year

	timeout := f.Timeout
	if timeout == "" && c.RequestTimeout != nil {
		timeout = *c.RequestTimeout
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return Resolved{}, domainerrors.Wrapf(err, domainerrors.CodeConfig, "invalid request timeout %q", timeout)
		}
		if d <= 0 {
			return Resolved{}, domainerrors.Configf("request timeout must be positive, got %s", d)
		}
		r.RequestTimeout = d
	}

	return r, nil
}

// resolveString returns the first non-empty value from flag, env var,
// config file, or default.
func resolveString(flagValue, envKey string, fileValue *string, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	if fileValue != nil && *fileValue != "" {
		return *fileValue
	}
	return defaultValue
}

// resolveBool folds a disable flag over the file value. Features default on.
func resolveBool(disableFlag bool, fileValue *bool) bool {
	if disableFlag {
		return false
	}
	if fileValue != nil {
		return *fileValue
	}
	return true
}

func resolveYear(flagValue int, fileValue *int) (int, error) {
	if flagValue != 0 {
		if flagValue < 0 {
			return 0, domainerrors.Configf("year must be positive, got %d", flagValue)
		}
		return flagValue, nil
	}

	if envValue := os.Getenv(EnvYear); envValue != "" {
		y, err := strconv.Atoi(envValue)
		if err != nil {
			return 0, domainerrors.Wrapf(err, domainerrors.CodeConfig, "invalid %s %q", EnvYear, envValue)
		}
		if y <= 0 {
			return 0, domainerrors.Configf("year must be positive, got %d", y)
		}
		return y, nil
	}

	if fileValue != nil {
		return *fileValue, nil
	}

	return 0, nil
}

// String renders the resolved settings for startup logging. The spreadsheet
// ID is elided to its first characters.
func (r Resolved) String() string {
	id := r.SpreadsheetID
	if len(id) > 8 {
		id = id[:8] + "…"
	}
	year := "current"
	if r.Year != 0 {
		year = strconv.Itoa(r.Year)
	}
	return fmt.Sprintf("spreadsheet=%s data_dir=%s year=%s archive=%v chart=%v", id, r.DataDir, year, r.Archive, r.Chart)
}
