// Package config provides configuration loading and path management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Config is the full server configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `json:"port,omitempty"`

	// Model is the default model in "provider/model" form.
	Model string `json:"model,omitempty"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `json:"logLevel,omitempty"`

	// PrettyLogs enables human-readable console output.
	PrettyLogs bool `json:"prettyLogs,omitempty"`

	// DataDir overrides the storage location. Defaults to the XDG data dir.
	DataDir string `json:"dataDir,omitempty"`

	// Vaults maps vault names to directories searched by the knowledge layer
	// and used as export targets.
	Vaults map[string]string `json:"vaults,omitempty"`

	// ModesFile points at a YAML file defining conversation modes.
	ModesFile string `json:"modesFile,omitempty"`

	// Streaming holds the delivery-engine knobs.
	Streaming Streaming `json:"streaming,omitempty"`
}

// Streaming mirrors the delivery engine's tunables. Durations are
// milliseconds on the wire.
type Streaming struct {
	MinChunkSize  int   `json:"minChunkSize,omitempty"`
	MaxDelayMS    int64 `json:"maxDelayMs,omitempty"`
	RetryAttempts int   `json:"retryAttempts,omitempty"`
	RetryDelayMS  int64 `json:"retryDelayMs,omitempty"`
	TypingSpeedMS int64 `json:"typingSpeedMs,omitempty"`
}

// MaxDelay returns the flush time bound as a duration.
func (s Streaming) MaxDelay() time.Duration { return time.Duration(s.MaxDelayMS) * time.Millisecond }

// RetryDelay returns the initial backoff interval as a duration.
func (s Streaming) RetryDelay() time.Duration { return time.Duration(s.RetryDelayMS) * time.Millisecond }

// TypingSpeed returns the per-character pacing delay as a duration.
func (s Streaming) TypingSpeed() time.Duration { return time.Duration(s.TypingSpeedMS) * time.Millisecond }

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Port:     8080,
		Model:    "anthropic/claude-sonnet-4-20250514",
		LogLevel: "info",
		Vaults:   map[string]string{},
	}
}

// Load builds the configuration from, in priority order: defaults, the
// global config file (~/.config/vaultchat/vaultchat.jsonc), a project-local
// vaultchat.jsonc under directory, a .env file, and VAULTCHAT_* environment
// variables.
func Load(directory string) (*Config, error) {
	cfg := Default()

	// .env is loaded first so file interpolation and overrides can see it.
	// A missing .env is not an error.
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	} else {
		_ = godotenv.Load()
	}

	paths := []string{
		filepath.Join(GetPaths().Config, "vaultchat.json"),
		filepath.Join(GetPaths().Config, "vaultchat.jsonc"),
	}
	if directory != "" {
		paths = append(paths,
			filepath.Join(directory, "vaultchat.json"),
			filepath.Join(directory, "vaultchat.jsonc"),
		)
	}
	if p := os.Getenv("VAULTCHAT_CONFIG"); p != "" {
		paths = append(paths, p)
	}

	for _, p := range paths {
		if err := loadFile(p, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFile merges one JSONC config file into cfg. Absent files are skipped.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	data = jsonc.ToJSON(data)

	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	merge(cfg, &file)
	return nil
}

// merge overlays non-zero fields of src onto dst.
func merge(dst, src *Config) {
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.PrettyLogs {
		dst.PrettyLogs = true
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.ModesFile != "" {
		dst.ModesFile = src.ModesFile
	}
	for name, dir := range src.Vaults {
		if dst.Vaults == nil {
			dst.Vaults = map[string]string{}
		}
		dst.Vaults[name] = dir
	}

	s := &dst.Streaming
	if src.Streaming.MinChunkSize != 0 {
		s.MinChunkSize = src.Streaming.MinChunkSize
	}
	if src.Streaming.MaxDelayMS != 0 {
		s.MaxDelayMS = src.Streaming.MaxDelayMS
	}
	if src.Streaming.RetryAttempts != 0 {
		s.RetryAttempts = src.Streaming.RetryAttempts
	}
	if src.Streaming.RetryDelayMS != 0 {
		s.RetryDelayMS = src.Streaming.RetryDelayMS
	}
	if src.Streaming.TypingSpeedMS != 0 {
		s.TypingSpeedMS = src.Streaming.TypingSpeedMS
	}
}

// applyEnvOverrides applies VAULTCHAT_* environment variables, the highest
// priority source.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VAULTCHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("VAULTCHAT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("VAULTCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VAULTCHAT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VAULTCHAT_MODES_FILE"); v != "" {
		cfg.ModesFile = v
	}
}

// StorageDir returns the directory used for persistent records.
func (c *Config) StorageDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return GetPaths().StoragePath()
}
