package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// writeYAMLFixture marshals settings with yaml.v3 and writes it as
// dir/.voltree/config.yaml, the way a hand-authored config file would
// look.
func writeYAMLFixture(t *testing.T, dir string, settings map[string]any) {
	t.Helper()
	confDir := filepath.Join(dir, ".voltree")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "config.yaml"), data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestInitializeReadsYAMLProjectConfig(t *testing.T) {
	dir := t.TempDir()
	writeYAMLFixture(t, dir, map[string]any{
		"volume": "custom.vt",
		"policy": map[string]any{
			"strict": true,
		},
		"quota": map[string]any{
			"max-bytes": 4096,
		},
	})

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := GetString("volume"); got != "custom.vt" {
		t.Errorf("volume = %q, want custom.vt", got)
	}
	if !GetBool("policy.strict") {
		t.Error("policy.strict = false, want true")
	}
	if got := GetInt64("quota.max-bytes"); got != 4096 {
		t.Errorf("quota.max-bytes = %d, want 4096", got)
	}
	// Defaults not present in the fixture still apply.
	if GetBool("policy.audit-all") {
		t.Error("policy.audit-all default changed, want false")
	}
}

func TestInitializeDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := GetString("volume"); got != "volume.vt" {
		t.Errorf("volume = %q, want default volume.vt", got)
	}
}
