package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	httpc "github.com/handiism/broforce-map-downloader/internal/http"
	"github.com/handiism/broforce-map-downloader/internal/model"
)

// DefaultPath is the settings file looked up in the working directory.
const DefaultPath = "config.yaml"

// Workshop endpoints.
const (
	DefaultBrowseURL = "https://steamcommunity.com/workshop/browse/"
	DefaultMirrorURL = "http://steamworkshop.download"
)

// AllowedMapsPerPage are the page sizes the workshop browse page accepts.
var AllowedMapsPerPage = []int{9, 18, 30}

// Settings holds all configuration options.
//
// Settings are loaded once at startup. The pipeline only reads them.
type Settings struct {
	// Listing filters
	NumberOfPages    int              `yaml:"number_of_pages"`
	MapsPerPage      int              `yaml:"maps_per_page"`
	TimePeriod       model.TimePeriod `yaml:"time_period"`
	GameplayTypes    GameplayTypes    `yaml:"gameplay_types"`
	DifficultyLevels DifficultyLevels `yaml:"difficulty_levels"`

	// Storage
	MapsDir     string `yaml:"maps_dir"`
	CatalogPath string `yaml:"catalog_path"` // empty disables the catalog

	// Download behaviour
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	Retry                  RetrySettings `yaml:"retry"`
	RequestTimeout         time.Duration `yaml:"request_timeout"`
	DownloadPauseMin       time.Duration `yaml:"download_pause_min"`
	DownloadPauseMax       time.Duration `yaml:"download_pause_max"`
	UserAgent              string        `yaml:"user_agent"`
	BrowseURL              string        `yaml:"browse_url"`
	MirrorURL              string        `yaml:"mirror_url"`

	// Extras
	SavePreviews     bool `yaml:"save_previews"`
	PreviewMaxSize   int  `yaml:"preview_max_size"`
	HandleDuplicates bool `yaml:"handle_duplicates"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// RetrySettings configures the backoff shared by page fetches and downloads.
type RetrySettings struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		NumberOfPages:    3,
		MapsPerPage:      18,
		TimePeriod:       model.TimePeriodAll,
		GameplayTypes:    GameplayTypes{model.GameplayStandard, model.GameplayStory, model.GameplayChallenge},
		DifficultyLevels: DifficultyLevels{model.DifficultyNormal},

		MapsDir:     "maps",
		CatalogPath: filepath.Join("maps", ".catalog.db"),

		MaxConcurrentDownloads: 1,
		Retry: RetrySettings{
			MaxAttempts: httpc.DefaultMaxAttempts,
			BaseDelay:   httpc.DefaultBaseDelay,
			Multiplier:  httpc.DefaultMultiplier,
			MaxDelay:    httpc.DefaultMaxDelay,
		},
		RequestTimeout:   httpc.DefaultTimeout,
		DownloadPauseMin: time.Second,
		DownloadPauseMax: 2 * time.Second,
		UserAgent:        httpc.DefaultUserAgent,
		BrowseURL:        DefaultBrowseURL,
		MirrorURL:        DefaultMirrorURL,

		SavePreviews:     false,
		PreviewMaxSize:   512,
		HandleDuplicates: true,

		LogLevel: "info",
	}
}

// Load reads settings from a YAML file.
//
// A missing file is created from DefaultFile first, so a fresh install
// always ends up with a commented file to edit. The result is validated.
func Load(path string) (*Settings, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	settings, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return settings, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected so a misspelled setting does not silently
// fall back to its default.
func Parse(data []byte) (*Settings, error) {
	settings := DefaultSettings()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(settings); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// WriteDefault writes the commented default settings file.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(DefaultFile), 0o644); err != nil {
		return fmt.Errorf("write default config %s: %w", path, err)
	}
	return nil
}

// FieldError describes one invalid setting.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s in config (%s)", e.Key, e.Reason)
}

// Validate checks every field and joins all problems into one error.
func (s *Settings) Validate() error {
	var errs []error
	bad := func(key, reason string) {
		errs = append(errs, &FieldError{Key: key, Reason: reason})
	}

	if s.NumberOfPages <= 0 {
		bad("number_of_pages", "must be a positive number")
	}
	if !slices.Contains(AllowedMapsPerPage, s.MapsPerPage) {
		bad("maps_per_page", "must be one of the following values: 9, 18, 30")
	}
	if !s.TimePeriod.Valid() {
		bad("time_period", "must be one of the following values: -1, 1, 7, 90, 180, 365")
	}
	if len(s.GameplayTypes) == 0 {
		bad("gameplay_types", "at least one gameplay type is required")
	}
	if len(s.DifficultyLevels) == 0 {
		bad("difficulty_levels", "at least one difficulty level is required")
	}
	if strings.TrimSpace(s.MapsDir) == "" {
		bad("maps_dir", "must not be empty")
	}
	if s.MaxConcurrentDownloads < 1 {
		bad("max_concurrent_downloads", "must be at least 1")
	}
	if s.Retry.MaxAttempts < 1 {
		bad("retry.max_attempts", "must be at least 1")
	}
	if s.Retry.BaseDelay < 0 || s.Retry.MaxDelay < 0 {
		bad("retry", "delays must not be negative")
	}
	if s.Retry.Multiplier < 1 {
		bad("retry.multiplier", "must be 1 or more")
	}
	if s.RequestTimeout <= 0 {
		bad("request_timeout", "must be positive")
	}
	if s.DownloadPauseMin < 0 || s.DownloadPauseMax < s.DownloadPauseMin {
		bad("download_pause_min/max", "must satisfy 0 <= min <= max")
	}
	if s.SavePreviews && s.PreviewMaxSize <= 0 {
		bad("preview_max_size", "must be positive when save_previews is on")
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		bad("log_level", err.Error())
	}

	return errors.Join(errs...)
}

// Environment variables read by ApplyEnv.
const (
	EnvMapsDir  = "BROFORCE_MAPS_DIR"
	EnvPages    = "BROFORCE_PAGES"
	EnvLogLevel = "BROFORCE_LOG_LEVEL"
	EnvCatalog  = "BROFORCE_CATALOG"
)

// LoadEnvFile loads a .env file into the process environment if it exists.
// Variables already set in the environment win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays environment overrides and re-validates.
// lookup is usually os.LookupEnv.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvMapsDir); ok && v != "" {
		s.MapsDir = v
	}
	if v, ok := lookup(EnvPages); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &FieldError{Key: EnvPages, Reason: "must be a number"}
		}
		s.NumberOfPages = n
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		s.LogLevel = v
	}
	if v, ok := lookup(EnvCatalog); ok {
		s.CatalogPath = v
	}
	return s.Validate()
}

// RetryPolicy converts the retry settings for the HTTP client.
func (s *Settings) RetryPolicy() httpc.RetryPolicy {
	return httpc.RetryPolicy{
		MaxAttempts: s.Retry.MaxAttempts,
		BaseDelay:   s.Retry.BaseDelay,
		Multiplier:  s.Retry.Multiplier,
		MaxDelay:    s.Retry.MaxDelay,
	}
}

// ClientConfig builds the HTTP client configuration.
func (s *Settings) ClientConfig(log logrus.FieldLogger) httpc.ClientConfig {
	return httpc.ClientConfig{
		UserAgent: s.UserAgent,
		Timeout:   s.RequestTimeout,
		Retry:     s.RetryPolicy(),
		Logger:    log,
	}
}

// Describe returns the human readable settings summary shown before a run.
func (s *Settings) Describe() []string {
	types := make([]string, len(s.GameplayTypes))
	for i, g := range s.GameplayTypes {
		types[i] = g.String()
	}
	levels := make([]string, len(s.DifficultyLevels))
	for i, d := range s.DifficultyLevels {
		levels[i] = d.String()
	}

	return []string{
		fmt.Sprintf("Number of Pages: %d", s.NumberOfPages),
		fmt.Sprintf("Maps Per Page: %d", s.MapsPerPage),
		fmt.Sprintf("Time Period: %s", s.TimePeriod),
		fmt.Sprintf("Gameplay Type(s): %s", strings.Join(types, ", ")),
		fmt.Sprintf("Difficulty Level(s): %s", strings.Join(levels, ", ")),
		fmt.Sprintf("Maps Directory: %s", s.MapsDir),
	}
}
