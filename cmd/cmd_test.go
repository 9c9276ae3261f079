package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snapsift/internal"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapsift.toml")

	out, err := execute(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q", out)
	}

	conf, err := internal.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if conf.JPEGQuality != internal.DefaultConfig().JPEGQuality {
		t.Errorf("jpeg_quality = %d", conf.JPEGQuality)
	}

	if _, err := execute(t, "config", "init", "--config", path, "--force=false"); err == nil {
		t.Error("Expected error when the config already exists")
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(t.TempDir(), "absent.toml")
	os.MkdirAll(filepath.Join(dir, "empty"), 0755)
	os.WriteFile(filepath.Join(dir, "keep.jpg"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	out, err := execute(t, "prune", dir, "--config", conf, "--dry-run")
	if err != nil {
		t.Fatalf("prune --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "Would remove 1 files and 1 empty folders") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("dry run removed a file")
	}

	out, err = execute(t, "prune", dir, "--config", conf, "--dry-run=false")
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if !strings.Contains(out, "Removed 1 files and 1 empty folders") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.jpg")); err != nil {
		t.Error("media file removed")
	}
}

func TestPrune_MissingFolder(t *testing.T) {
	if _, err := execute(t, "prune", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing folder")
	}
}

func TestReport_InvalidFormat(t *testing.T) {
	if _, err := execute(t, "report", t.TempDir(), "--format", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}
