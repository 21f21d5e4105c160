// Package config loads voltree's configuration through a single viper
// singleton, the way the teacher's internal/config/config.go layers a
// project config file, environment variables, and command-line flags
// (lowest to highest precedence) over a fixed set of defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/ghartrid/voltree/internal/diag"
)

var v *viper.Viper

// findConfigFile looks for config.toml then config.yaml under dir,
// returning the path and the viper config-type string to use for it.
func findConfigFile(dir string) (path, ext string, ok bool) {
	for _, ext := range []string{"toml", "yaml"} {
		p := filepath.Join(dir, "config."+ext)
		if _, err := os.Stat(p); err == nil {
			return p, ext, true
		}
	}
	return "", "", false
}

// Initialize sets up the viper configuration singleton. Call once at
// process startup, before any Get* accessor.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("toml")

	configFileSet := false

	// 1. Walk up from CWD to find a project .voltree/config.{toml,yaml},
	// so volctl works the same from any subdirectory of a checked-out
	// volume tree. If both exist, config.toml wins (findConfigFile
	// checks it first).
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			if path, ext, ok := findConfigFile(filepath.Join(dir, ".voltree")); ok {
				v.SetConfigType(ext)
				v.SetConfigFile(path)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/voltree/config.{toml,yaml}).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			if path, ext, ok := findConfigFile(filepath.Join(configDir, "voltree")); ok {
				v.SetConfigType(ext)
				v.SetConfigFile(path)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("VOLTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("volume", "volume.vt")
	v.SetDefault("lock-timeout", "30s")
	v.SetDefault("policy.strict", false)
	v.SetDefault("policy.audit-all", false)
	v.SetDefault("policy.verbose", false)
	v.SetDefault("quota.max-bytes", int64(0))
	v.SetDefault("quota.max-refs", int64(0))
	v.SetDefault("quota.max-views", int64(0))
	v.SetDefault("log.dir", "")
	v.SetDefault("log.max-size-mb", 50)
	v.SetDefault("log.max-backups", 5)
	v.SetDefault("log.max-age-days", 30)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		diag.Debugf("loaded config from %s", v.ConfigFileUsed())
	} else {
		diag.Debugf("no .voltree/config.toml found; using defaults and environment variables")
	}

	return nil
}

// WriteDefaultConfigFile writes a starter config.toml to path using
// the teacher's "commands that scaffold their own config" pattern,
// marshalled with BurntSushi/toml to match the TOML config type set
// above.
func WriteDefaultConfigFile(path string) error {
	defaults := map[string]interface{}{
		"volume":       "volume.vt",
		"lock-timeout": "30s",
		"policy": map[string]interface{}{
			"strict":    false,
			"audit-all": false,
			"verbose":   false,
		},
		"quota": map[string]interface{}{
			"max-bytes": 0,
			"max-refs":  0,
			"max-views": 0,
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(defaults)
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt64 retrieves an int64 configuration value.
func GetInt64(key string) int64 {
	if v == nil {
		return 0
	}
	return v.GetInt64(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value at runtime, e.g. from a parsed
// command-line flag.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every configuration setting as a map, for
// diagnostics.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}
