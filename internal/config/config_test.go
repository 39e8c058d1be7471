package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "hygiene.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaultsMissingFileFails(t *testing.T) {
	rc, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rc.DuplicateFiles.Enabled || rc.LargeFiles.Enabled || rc.OldFiles.Enabled {
		t.Fatalf("expected all rules disabled by default, got %+v", rc)
	}
	if !rc.Action.DryRun {
		t.Fatalf("expected dry-run true by default")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for a missing config file, got %v", err)
	}
}

func TestLoadAppliesDotAddressedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
analysis:
  rules:
    duplicate_files:
      enabled: true
    large_files:
      enabled: true
      min_size_mb: 10
    old_files:
      enabled: true
      max_days: 365
action:
  staging_dir: /tmp/staging
  dry_run: false
`)
	rc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !rc.DuplicateFiles.Enabled {
		t.Fatalf("expected duplicate_files enabled")
	}
	if rc.LargeFiles.MinSizeMB == nil || *rc.LargeFiles.MinSizeMB != 10 {
		t.Fatalf("expected min_size_mb 10, got %+v", rc.LargeFiles.MinSizeMB)
	}
	if rc.OldFiles.MaxDays == nil || *rc.OldFiles.MaxDays != 365 {
		t.Fatalf("expected max_days 365, got %+v", rc.OldFiles.MaxDays)
	}
	if rc.Action.StagingDir != "/tmp/staging" || rc.Action.DryRun {
		t.Fatalf("unexpected action config: %+v", rc.Action)
	}
}

func TestLoadAcceptsActionExecutorSpelling(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
action_executor:
  staging_dir: /tmp/legacy-staging
  dry_run: true
`)
	rc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rc.Action.StagingDir != "/tmp/legacy-staging" {
		t.Fatalf("expected legacy key honored, got %s", rc.Action.StagingDir)
	}
}

func TestLoadActionPreferredOverActionExecutor(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
action_executor:
  staging_dir: /tmp/legacy-staging
action:
  staging_dir: /tmp/preferred-staging
`)
	rc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rc.Action.StagingDir != "/tmp/preferred-staging" {
		t.Fatalf("expected action.staging_dir to win, got %s", rc.Action.StagingDir)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
analysis:
  rules:
    bogus_rule:
      enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected schema validation error for unknown rule key")
	}
}
