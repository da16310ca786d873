package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings represents the structure of ~/.happy/settings.json
type Settings struct {
	CachePath            string `json:"cache_path,omitempty"`
	Debug                *bool  `json:"debug,omitempty"`
	HideInactiveSessions *bool  `json:"hide_inactive_sessions,omitempty"`
	MaxLogFiles          *int   `json:"max_log_files,omitempty"`
	PollIntervalSeconds  *int   `json:"poll_interval_seconds,omitempty"`
	ServerURL            string `json:"server_url,omitempty"`
}

// Defaults applied when settings.json omits a value
const (
	DefaultPollIntervalSeconds = 5
	DefaultMaxLogFiles         = 1000
)

// settingsPathFunc returns the path to the settings file.
// Can be overridden in tests.
var settingsPathFunc = getDefaultSettingsPath

func getDefaultSettingsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".happy", "settings.json"), nil
}

// LoadSettings loads settings from ~/.happy/settings.json.
// Returns empty Settings if the file doesn't exist (not an error).
func LoadSettings() (*Settings, error) {
	path, err := settingsPathFunc()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil // Not an error, use defaults
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings.json: %w", err)
	}

	if settings.CachePath != "" {
		settings.CachePath = expandPath(settings.CachePath)
	}

	return &settings, nil
}

// PollInterval returns the configured poll interval or the default
func (s *Settings) PollInterval() int {
	if s.PollIntervalSeconds != nil && *s.PollIntervalSeconds > 0 {
		return *s.PollIntervalSeconds
	}
	return DefaultPollIntervalSeconds
}

// LogFileLimit returns the configured max log files or the default
func (s *Settings) LogFileLimit() int {
	if s.MaxLogFiles != nil {
		return *s.MaxLogFiles
	}
	return DefaultMaxLogFiles
}

// DebugEnabled returns whether debug logging is on
func (s *Settings) DebugEnabled() bool {
	return s.Debug != nil && *s.Debug
}

// HideInactive returns the session list visibility filter setting
func (s *Settings) HideInactive() bool {
	return s.HideInactiveSessions != nil && *s.HideInactiveSessions
}

// expandPath expands ~ to home directory in paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
