/*
Package config manages TOML config for tagserve.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/tagserve/internal/utils"
	"github.com/bastiangx/tagserve/pkg/autocomplete"
	"github.com/bastiangx/tagserve/pkg/client"
	"github.com/bastiangx/tagserve/pkg/history"
	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/bastiangx/tagserve/pkg/kv"
	"github.com/bastiangx/tagserve/pkg/terms"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Autocomplete AutocompleteConfig `toml:"autocomplete"`
	History      HistoryConfig      `toml:"history"`
	Remote       RemoteConfig       `toml:"remote"`
	Store        StoreConfig        `toml:"store"`
	CLI          CliConfig          `toml:"cli"`
}

// AutocompleteConfig has the suggestion list options.
type AutocompleteConfig struct {
	MaxSuggestions    int    `toml:"max_suggestions"`
	HistoryWhenTyping int    `toml:"history_when_typing"`
	DebounceMs        int    `toml:"debounce_ms"`
	MinRemoteTerm     int    `toml:"min_remote_term"`
	HistoryHiddenKey  string `toml:"history_hidden_key"`
	HistoryLimitKey   string `toml:"history_limit_key"`
	HiddenTags        []int  `toml:"hidden_tags"`
	UnfilterKey       string `toml:"unfilter_key"`
}

// HistoryConfig bounds every history bucket.
type HistoryConfig struct {
	MaxRecords     int `toml:"max_records"`
	MaxInputLength int `toml:"max_input_length"`
}

// RemoteConfig points at the autocomplete server.
type RemoteConfig struct {
	BaseURL     string  `toml:"base_url"`
	IndexPath   string  `toml:"index_path"`
	SuggestPath string  `toml:"suggest_path"`
	TimeoutMs   int     `toml:"timeout_ms"`
	MaxAttempts int     `toml:"max_attempts"`
	MinDelayMs  int     `toml:"min_delay_ms"`
	MaxDelayMs  int     `toml:"max_delay_ms"`
	RateLimit   float64 `toml:"rate_limit"`
	RateBurst   int     `toml:"rate_burst"`
}

// StoreConfig selects the kv backend. An empty path keeps everything in memory.
type StoreConfig struct {
	Path       string `toml:"path"`
	SyncWrites bool   `toml:"sync_writes"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultMode      string `toml:"default_mode"`
	DefaultHistoryID string `toml:"default_history_id"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
// 4. builtin defaults
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.ExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := filepath.Join(homeDir, ".config", "tagserve")
	if utils.WritableDir(primaryPath) {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "tagserve")
	if utils.WritableDir(macOSPath) {
		return macOSPath, nil
	}
	execDir, err := utils.ExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/tagserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	ac := autocomplete.DefaultConfig()
	hc := history.DefaultConfig()
	rc := client.DefaultConfig()
	return &Config{
		Autocomplete: AutocompleteConfig{
			MaxSuggestions:    ac.MaxSuggestions,
			HistoryWhenTyping: ac.HistoryWhenTyping,
			DebounceMs:        int(ac.Debounce / time.Millisecond),
			MinRemoteTerm:     ac.MinRemoteTerm,
			HistoryHiddenKey:  ac.HistoryHiddenKey,
			HistoryLimitKey:   ac.HistoryLimitKey,
			HiddenTags:        []int{},
			UnfilterKey:       "",
		},
		History: HistoryConfig{
			MaxRecords:     hc.MaxRecords,
			MaxInputLength: hc.MaxInputLength,
		},
		Remote: RemoteConfig{
			BaseURL:     rc.BaseURL,
			IndexPath:   rc.IndexPath,
			SuggestPath: rc.SuggestPath,
			TimeoutMs:   int(rc.Timeout / time.Millisecond),
			MaxAttempts: rc.MaxAttempts,
			MinDelayMs:  int(rc.MinDelay / time.Millisecond),
			MaxDelayMs:  int(rc.MaxDelay / time.Millisecond),
			RateLimit:   rc.RateLimit,
			RateBurst:   rc.RateBurst,
		},
		Store: StoreConfig{
			Path:       "",
			SyncWrites: true,
		},
		CLI: CliConfig{
			DefaultMode:      string(terms.MultiTags),
			DefaultHistoryID: "search",
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.IsFile(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse keeps every section that still decodes and defaults the rest.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "autocomplete"); ok {
		extractAutocompleteConfig(section, &config.Autocomplete)
	}
	if section, ok := utils.ExtractSection(tempConfig, "history"); ok {
		extractHistoryConfig(section, &config.History)
	}
	if section, ok := utils.ExtractSection(tempConfig, "remote"); ok {
		extractRemoteConfig(section, &config.Remote)
	}
	if section, ok := utils.ExtractSection(tempConfig, "store"); ok {
		extractStoreConfig(section, &config.Store)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	return config, nil
}

func extractAutocompleteConfig(data map[string]any, ac *AutocompleteConfig) {
	if val, ok := utils.ExtractInt64(data, "max_suggestions"); ok {
		ac.MaxSuggestions = val
	}
	if val, ok := utils.ExtractInt64(data, "history_when_typing"); ok {
		ac.HistoryWhenTyping = val
	}
	if val, ok := utils.ExtractInt64(data, "debounce_ms"); ok {
		ac.DebounceMs = val
	}
	if val, ok := utils.ExtractInt64(data, "min_remote_term"); ok {
		ac.MinRemoteTerm = val
	}
	if val, ok := utils.ExtractString(data, "history_hidden_key"); ok {
		ac.HistoryHiddenKey = val
	}
	if val, ok := utils.ExtractString(data, "history_limit_key"); ok {
		ac.HistoryLimitKey = val
	}
	if val, ok := utils.ExtractInt64Slice(data, "hidden_tags"); ok {
		ac.HiddenTags = val
	}
	if val, ok := utils.ExtractString(data, "unfilter_key"); ok {
		ac.UnfilterKey = val
	}
}

func extractHistoryConfig(data map[string]any, hc *HistoryConfig) {
	if val, ok := utils.ExtractInt64(data, "max_records"); ok {
		hc.MaxRecords = val
	}
	if val, ok := utils.ExtractInt64(data, "max_input_length"); ok {
		hc.MaxInputLength = val
	}
}

func extractRemoteConfig(data map[string]any, rc *RemoteConfig) {
	if val, ok := utils.ExtractString(data, "base_url"); ok {
		rc.BaseURL = val
	}
	if val, ok := utils.ExtractString(data, "index_path"); ok {
		rc.IndexPath = val
	}
	if val, ok := utils.ExtractString(data, "suggest_path"); ok {
		rc.SuggestPath = val
	}
	if val, ok := utils.ExtractInt64(data, "timeout_ms"); ok {
		rc.TimeoutMs = val
	}
	if val, ok := utils.ExtractInt64(data, "max_attempts"); ok {
		rc.MaxAttempts = val
	}
	if val, ok := utils.ExtractInt64(data, "min_delay_ms"); ok {
		rc.MinDelayMs = val
	}
	if val, ok := utils.ExtractInt64(data, "max_delay_ms"); ok {
		rc.MaxDelayMs = val
	}
	if val, ok := utils.ExtractFloat64(data, "rate_limit"); ok {
		rc.RateLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "rate_burst"); ok {
		rc.RateBurst = val
	}
}

func extractStoreConfig(data map[string]any, sc *StoreConfig) {
	if val, ok := utils.ExtractString(data, "path"); ok {
		sc.Path = val
	}
	if val, ok := utils.ExtractBool(data, "sync_writes"); ok {
		sc.SyncWrites = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractString(data, "default_mode"); ok {
		cli.DefaultMode = val
	}
	if val, ok := utils.ExtractString(data, "default_history_id"); ok {
		cli.DefaultHistoryID = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	configDir := filepath.Dir(defaultPath)
	if err := utils.EnsureDir(configDir); err != nil {
		return err
	}
	config := DefaultConfig()
	return utils.WriteTOMLFile(defaultPath, config)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.AbsPath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.WriteTOMLFile(configPath, config)
}

// AutocompleteSettings converts the [autocomplete] section.
// Non-positive numbers fall back to the stock values.
func (c *Config) AutocompleteSettings() autocomplete.Config {
	out := autocomplete.DefaultConfig()
	ac := c.Autocomplete
	if ac.MaxSuggestions > 0 {
		out.MaxSuggestions = ac.MaxSuggestions
	}
	if ac.HistoryWhenTyping >= 0 {
		out.HistoryWhenTyping = ac.HistoryWhenTyping
	}
	if ac.DebounceMs >= 0 {
		out.Debounce = time.Duration(ac.DebounceMs) * time.Millisecond
	}
	if ac.MinRemoteTerm > 0 {
		out.MinRemoteTerm = ac.MinRemoteTerm
	}
	if ac.HistoryHiddenKey != "" {
		out.HistoryHiddenKey = ac.HistoryHiddenKey
	}
	if ac.HistoryLimitKey != "" {
		out.HistoryLimitKey = ac.HistoryLimitKey
	}
	for _, id := range ac.HiddenTags {
		if id >= 0 {
			out.HiddenTags = append(out.HiddenTags, index.TagID(id))
		}
	}
	out.UnfilterKey = ac.UnfilterKey
	return out
}

// HistorySettings converts the [history] section.
func (c *Config) HistorySettings() history.Config {
	out := history.DefaultConfig()
	if c.History.MaxRecords > 0 {
		out.MaxRecords = c.History.MaxRecords
	}
	if c.History.MaxInputLength > 0 {
		out.MaxInputLength = c.History.MaxInputLength
	}
	return out
}

// RemoteSettings converts the [remote] section. An empty base_url means no remote.
func (c *Config) RemoteSettings() (client.Config, bool) {
	out := client.DefaultConfig()
	rc := c.Remote
	if rc.BaseURL == "" {
		return out, false
	}
	out.BaseURL = rc.BaseURL
	if rc.IndexPath != "" {
		out.IndexPath = rc.IndexPath
	}
	if rc.SuggestPath != "" {
		out.SuggestPath = rc.SuggestPath
	}
	if rc.TimeoutMs > 0 {
		out.Timeout = time.Duration(rc.TimeoutMs) * time.Millisecond
	}
	if rc.MaxAttempts > 0 {
		out.MaxAttempts = rc.MaxAttempts
	}
	if rc.MinDelayMs > 0 {
		out.MinDelay = time.Duration(rc.MinDelayMs) * time.Millisecond
	}
	if rc.MaxDelayMs > 0 {
		out.MaxDelay = time.Duration(rc.MaxDelayMs) * time.Millisecond
	}
	if rc.RateLimit >= 0 {
		out.RateLimit = rc.RateLimit
	}
	if rc.RateBurst > 0 {
		out.RateBurst = rc.RateBurst
	}
	return out, true
}

// StoreSettings converts the [store] section. The bool is false when the
// store should live in memory.
func (c *Config) StoreSettings() (kv.BadgerConfig, bool) {
	if c.Store.Path == "" {
		return kv.InMemoryConfig(), false
	}
	out := kv.DefaultBadgerConfig(utils.AbsPath(c.Store.Path))
	out.SyncWrites = c.Store.SyncWrites
	return out, true
}

// Mode parses cli.default_mode, falling back to multi-tags.
func (c *CliConfig) Mode() terms.Mode {
	mode, err := terms.ParseMode(c.DefaultMode)
	if err != nil {
		log.Warnf("Unknown default_mode %q, using %s", c.DefaultMode, terms.MultiTags)
		return terms.MultiTags
	}
	return mode
}
