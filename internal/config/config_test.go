package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ipcringctl.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "ring:\n  name: test-ring\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Ring.Role != RoleMaster {
		t.Errorf("Role = %v, want default %v", cfg.Ring.Role, RoleMaster)
	}
	if cfg.Ring.Slots != 4 {
		t.Errorf("Slots = %d, want default 4", cfg.Ring.Slots)
	}
}

func TestLoadConfigParsesHumanReadableBlockSize(t *testing.T) {
	path := writeConfig(t, "ring:\n  name: test-ring\n  block_size: 16KB\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Ring.BlockSize != 16*datasize.KB {
		t.Errorf("BlockSize = %v, want 16KB", cfg.Ring.BlockSize)
	}
}

func TestLoadConfigRequiresName(t *testing.T) {
	path := writeConfig(t, "ring:\n  role: master\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() = nil error, want error for missing ring.name")
	}
}

func TestLoadConfigRejectsBadRole(t *testing.T) {
	path := writeConfig(t, "ring:\n  name: test-ring\n  role: puppetmaster\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() = nil error, want error for invalid role")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadConfig() = nil error, want error for missing file")
	}
}
