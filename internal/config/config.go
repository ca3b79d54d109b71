// Package config provides configuration management for docforge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/docforge/docforge/internal/constants"
)

// Settings is the persisted client configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\docforge\config
//   - Unix: ~/.config/docforge/config
//
// INI format:
//
//	[docforge]
//	server_url = http://localhost:8000
//	subject = General
//
//	[docforge.upload]
//	max_concurrent = 10
//
//	[docforge.poll]
//	interval = 3s
//
//	[docforge.ai]
//	provider = openai
//	api_key = <key>
//	model = gpt-4o
//
//	[docforge.notifications]
//	enabled = true
type Settings struct {
	// ServerURL is the base URL of the conversion server.
	ServerURL string `ini:"server_url"`

	// Subject is the default subject attached to every submission.
	Subject string `ini:"subject"`

	// MaxConcurrent bounds parallel uploads in batch submissions.
	MaxConcurrent int `ini:"max_concurrent"`

	// PollInterval is the delay between status poll rounds.
	PollInterval time.Duration `ini:"interval"`

	// AI settings forwarded with AI-capable task types.
	AIProvider string `ini:"provider"`
	AIAPIKey   string `ini:"api_key"`
	AIModel    string `ini:"model"`

	// Notifications toggles desktop notifications for finished tasks.
	Notifications bool `ini:"enabled"`
}

// Validation errors
var (
	ErrMissingServerURL    = errors.New("server_url is required")
	ErrInvalidPollInterval = fmt.Errorf("poll interval must be at least %s", constants.MinPollInterval)
	ErrInvalidConcurrency  = fmt.Errorf("max_concurrent must be between %d and %d",
		constants.MinMaxConcurrent, constants.MaxMaxConcurrent)
	ErrUnknownKey = errors.New("unknown configuration key")
)

// DefaultConfigPath returns the default path for the config file.
//   - Windows: %USERPROFILE%\.config\docforge\config
//   - Unix: ~/.config/docforge/config
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "docforge")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "docforge")
	}

	return filepath.Join(configDir, "config"), nil
}

// NewSettings creates Settings with default values.
func NewSettings() *Settings {
	return &Settings{
		ServerURL:     "http://localhost:8000",
		Subject:       constants.DefaultSubject,
		MaxConcurrent: constants.DefaultMaxConcurrentUploads,
		PollInterval:  constants.DefaultPollInterval,
		Notifications: true,
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns defaults and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Settings, error) {
	cfg := NewSettings()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil // return defaults if we can't determine the path
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	main := iniFile.Section("docforge")
	cfg.ServerURL = main.Key("server_url").MustString(cfg.ServerURL)
	cfg.Subject = main.Key("subject").MustString(cfg.Subject)

	upload := iniFile.Section("docforge.upload")
	cfg.MaxConcurrent = upload.Key("max_concurrent").MustInt(cfg.MaxConcurrent)

	poll := iniFile.Section("docforge.poll")
	cfg.PollInterval = poll.Key("interval").MustDuration(cfg.PollInterval)

	ai := iniFile.Section("docforge.ai")
	cfg.AIProvider = ai.Key("provider").String()
	cfg.AIAPIKey = ai.Key("api_key").String()
	cfg.AIModel = ai.Key("model").String()

	notify := iniFile.Section("docforge.notifications")
	cfg.Notifications = notify.Key("enabled").MustBool(true)

	return cfg, nil
}

// Save writes configuration to an INI file. Creates parent directories if
// they don't exist. The AI API key is stored in the file, so the file is
// written with owner-only permissions via a temp file and atomic rename.
func Save(cfg *Settings, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	main, err := iniFile.NewSection("docforge")
	if err != nil {
		return fmt.Errorf("failed to create docforge section: %w", err)
	}
	main.Key("server_url").SetValue(cfg.ServerURL)
	main.Key("subject").SetValue(cfg.Subject)

	upload, err := iniFile.NewSection("docforge.upload")
	if err != nil {
		return fmt.Errorf("failed to create upload section: %w", err)
	}
	upload.Key("max_concurrent").SetValue(strconv.Itoa(cfg.MaxConcurrent))

	poll, err := iniFile.NewSection("docforge.poll")
	if err != nil {
		return fmt.Errorf("failed to create poll section: %w", err)
	}
	poll.Key("interval").SetValue(cfg.PollInterval.String())

	ai, err := iniFile.NewSection("docforge.ai")
	if err != nil {
		return fmt.Errorf("failed to create ai section: %w", err)
	}
	ai.Key("provider").SetValue(cfg.AIProvider)
	ai.Key("api_key").SetValue(cfg.AIAPIKey)
	ai.Key("model").SetValue(cfg.AIModel)

	notify, err := iniFile.NewSection("docforge.notifications")
	if err != nil {
		return fmt.Errorf("failed to create notifications section: %w", err)
	}
	notify.Key("enabled").SetValue(strconv.FormatBool(cfg.Notifications))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is usable.
func (cfg *Settings) Validate() error {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return ErrMissingServerURL
	}
	if cfg.PollInterval < constants.MinPollInterval {
		return ErrInvalidPollInterval
	}
	if cfg.MaxConcurrent < constants.MinMaxConcurrent || cfg.MaxConcurrent > constants.MaxMaxConcurrent {
		return ErrInvalidConcurrency
	}
	return nil
}

// Keys returns the settable configuration keys in display order.
func Keys() []string {
	return []string{
		"server_url",
		"subject",
		"max_concurrent",
		"poll_interval",
		"ai_provider",
		"ai_api_key",
		"ai_model",
		"notifications",
	}
}

// Get returns the current value for a configuration key.
func (cfg *Settings) Get(key string) (string, error) {
	switch key {
	case "server_url":
		return cfg.ServerURL, nil
	case "subject":
		return cfg.Subject, nil
	case "max_concurrent":
		return strconv.Itoa(cfg.MaxConcurrent), nil
	case "poll_interval":
		return cfg.PollInterval.String(), nil
	case "ai_provider":
		return cfg.AIProvider, nil
	case "ai_api_key":
		return cfg.AIAPIKey, nil
	case "ai_model":
		return cfg.AIModel, nil
	case "notifications":
		return strconv.FormatBool(cfg.Notifications), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

// Set updates a configuration key from its string representation.
func (cfg *Settings) Set(key, value string) error {
	switch key {
	case "server_url":
		if strings.TrimSpace(value) == "" {
			return ErrMissingServerURL
		}
		cfg.ServerURL = strings.TrimRight(value, "/")
	case "subject":
		cfg.Subject = value
	case "max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_concurrent: %w", err)
		}
		if n < constants.MinMaxConcurrent || n > constants.MaxMaxConcurrent {
			return ErrInvalidConcurrency
		}
		cfg.MaxConcurrent = n
	case "poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		if d < constants.MinPollInterval {
			return ErrInvalidPollInterval
		}
		cfg.PollInterval = d
	case "ai_provider":
		cfg.AIProvider = value
	case "ai_api_key":
		cfg.AIAPIKey = value
	case "ai_model":
		cfg.AIModel = value
	case "notifications":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("notifications: %w", err)
		}
		cfg.Notifications = b
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}
