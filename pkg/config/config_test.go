package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/bastiangx/tagserve/pkg/terms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestInitConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.FileExists(t, path)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Autocomplete.MaxSuggestions, loaded.Autocomplete.MaxSuggestions)
	assert.Equal(t, cfg.Remote, loaded.Remote)
	assert.Equal(t, cfg.CLI, loaded.CLI)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeFile(t, `
[autocomplete]
max_suggestions = 20
debounce_ms = 50
hidden_tags = [3, 7]
unfilter_key = "unfilter"

[history]
max_records = 10

[remote]
base_url = "https://tags.example"

[store]
path = "/tmp/tagserve-db"
sync_writes = false

[cli]
default_mode = "single-tag"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	ac := cfg.AutocompleteSettings()
	assert.Equal(t, 20, ac.MaxSuggestions)
	assert.Equal(t, 50*time.Millisecond, ac.Debounce)
	assert.Equal(t, []index.TagID{3, 7}, ac.HiddenTags)
	assert.Equal(t, "unfilter", ac.UnfilterKey)
	assert.Equal(t, 3, ac.HistoryWhenTyping)

	hc := cfg.HistorySettings()
	assert.Equal(t, 10, hc.MaxRecords)
	assert.Equal(t, 256, hc.MaxInputLength)

	rc, ok := cfg.RemoteSettings()
	require.True(t, ok)
	assert.Equal(t, "https://tags.example", rc.BaseURL)
	assert.Equal(t, "/autocomplete/tags", rc.SuggestPath)
	assert.Equal(t, 3, rc.MaxAttempts)

	sc, persistent := cfg.StoreSettings()
	require.True(t, persistent)
	assert.Equal(t, "/tmp/tagserve-db", sc.Path)
	assert.False(t, sc.SyncWrites)

	assert.Equal(t, terms.SingleTag, cfg.CLI.Mode())
}

func TestLoadConfigPartialRecovery(t *testing.T) {
	path := writeFile(t, `
[autocomplete]
max_suggestions = "lots"
history_when_typing = 5

[remote]
max_attempts = 7
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Autocomplete.MaxSuggestions)
	assert.Equal(t, 5, cfg.Autocomplete.HistoryWhenTyping)
	assert.Equal(t, 7, cfg.Remote.MaxAttempts)
	assert.Equal(t, DefaultConfig().History, cfg.History)
}

func TestLoadConfigGarbage(t *testing.T) {
	path := writeFile(t, "this is [not toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigWithPriorityCustomPath(t *testing.T) {
	path := writeFile(t, "[history]\nmax_input_length = 64\n")

	cfg, used, err := LoadConfigWithPriority(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 64, cfg.History.MaxInputLength)
}

func TestSettingsFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.BaseURL = ""
	cfg.Autocomplete.MaxSuggestions = 0
	cfg.Autocomplete.HiddenTags = []int{-1, 4}
	cfg.CLI.DefaultMode = "bogus"

	_, ok := cfg.RemoteSettings()
	assert.False(t, ok)

	_, persistent := cfg.StoreSettings()
	assert.False(t, persistent)

	ac := cfg.AutocompleteSettings()
	assert.Equal(t, 10, ac.MaxSuggestions)
	assert.Equal(t, []index.TagID{4}, ac.HiddenTags)

	assert.Equal(t, terms.MultiTags, cfg.CLI.Mode())
}
