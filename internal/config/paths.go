package config

import (
	"os"
	"path/filepath"
)

// Paths contains the standard directories for vaultchat data, following the
// XDG base directory layout.
type Paths struct {
	Data   string // ~/.local/share/vaultchat
	Config string // ~/.config/vaultchat
	Cache  string // ~/.cache/vaultchat
}

// GetPaths resolves the standard paths.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(envOr("XDG_DATA_HOME", filepath.Join(home(), ".local", "share")), "vaultchat"),
		Config: filepath.Join(envOr("XDG_CONFIG_HOME", filepath.Join(home(), ".config")), "vaultchat"),
		Cache:  filepath.Join(envOr("XDG_CACHE_HOME", filepath.Join(home(), ".cache")), "vaultchat"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the persistent record directory.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func home() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return h
}
