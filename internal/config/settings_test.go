package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/broforce-map-downloader/internal/model"
)

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	settings, err := Load(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFile, string(data))

	assert.Equal(t, 3, settings.NumberOfPages)
	assert.Equal(t, 18, settings.MapsPerPage)
	assert.Equal(t, model.TimePeriodAll, settings.TimePeriod)
	assert.Equal(t, GameplayTypes{model.GameplayStandard, model.GameplayStory, model.GameplayChallenge}, settings.GameplayTypes)
	assert.Equal(t, DifficultyLevels{model.DifficultyNormal}, settings.DifficultyLevels)
	assert.Equal(t, 3*time.Second, settings.Retry.BaseDelay)
	assert.Equal(t, 9*time.Second, settings.RequestTimeout)
}

func TestParse_MaskForms(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		wantTypes  GameplayTypes
		wantLevels DifficultyLevels
	}{
		{
			name:       "digit strings",
			yaml:       "gameplay_types: \"531\"\ndifficulty_levels: \"3\"",
			wantTypes:  GameplayTypes{1, 3, 5},
			wantLevels: DifficultyLevels{3},
		},
		{
			name:       "bare numbers with duplicates",
			yaml:       "gameplay_types: 2266\ndifficulty_levels: 121",
			wantTypes:  GameplayTypes{2, 6},
			wantLevels: DifficultyLevels{1, 2},
		},
		{
			name:       "lists of names",
			yaml:       "gameplay_types: [Puzzle, deathmatch]\ndifficulty_levels: [brotal, 1]",
			wantTypes:  GameplayTypes{model.GameplayPuzzle, model.GameplayDeathmatch},
			wantLevels: DifficultyLevels{model.DifficultyNormal, model.DifficultyBrotal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTypes, settings.GameplayTypes)
			assert.Equal(t, tt.wantLevels, settings.DifficultyLevels)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantKey string
	}{
		{"zero pages", "number_of_pages: 0", "number_of_pages"},
		{"negative pages", "number_of_pages: -2", "number_of_pages"},
		{"bad page size", "maps_per_page: 20", "maps_per_page"},
		{"bad time period", "time_period: 30", "time_period"},
		{"empty gameplay types", "gameplay_types: \"\"", "gameplay_types"},
		{"empty difficulties", "difficulty_levels: []", "difficulty_levels"},
		{"no attempts", "retry:\n  max_attempts: 0", "retry.max_attempts"},
		{"pause order", "download_pause_min: 3s\ndownload_pause_max: 1s", "download_pause_min/max"},
		{"log level", "log_level: loud", "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tt.wantKey, fieldErr.Key)
		})
	}
}

func TestParse_UnknownMaskMember(t *testing.T) {
	_, err := Parse([]byte("gameplay_types: \"17\""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown gameplay type")

	_, err = Parse([]byte("difficulty_levels: [impossible]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown difficulty")
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("number_of_page: 5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "number_of_page")

	_, err = Parse([]byte("retry:\n  max_attempt: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempt")
}

func TestParse_Empty(t *testing.T) {
	s, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	s, err = Parse([]byte("# nothing set\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestSettings_ApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvMapsDir:  "/srv/maps",
		EnvPages:    "7",
		EnvLogLevel: "debug",
		EnvCatalog:  "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	settings := DefaultSettings()
	require.NoError(t, settings.ApplyEnv(lookup))
	assert.Equal(t, "/srv/maps", settings.MapsDir)
	assert.Equal(t, 7, settings.NumberOfPages)
	assert.Equal(t, "debug", settings.LogLevel)
	assert.Empty(t, settings.CatalogPath)

	env[EnvPages] = "many"
	assert.Error(t, DefaultSettings().ApplyEnv(lookup))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BROFORCE_TEST_ONLY=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("BROFORCE_TEST_ONLY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("BROFORCE_TEST_ONLY"))
}

func TestSettings_Describe(t *testing.T) {
	lines := DefaultSettings().Describe()
	assert.Contains(t, lines, "Time Period: All Time")
	assert.Contains(t, lines, "Gameplay Type(s): Standard, Story, Challenge")
	assert.Contains(t, lines, "Difficulty Level(s): Normal")
}

func TestSettings_RetryPolicy(t *testing.T) {
	p := DefaultSettings().RetryPolicy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 3*time.Second, p.Delay(1))
	assert.Equal(t, 6*time.Second, p.Delay(2))
}
