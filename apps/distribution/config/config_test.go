package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DIST_ENVIRONMENT", "test")
	t.Setenv("DIST_SUPPORTED_COUNTRIES", "DE,FR")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RetentionDays != 14 || cfg.HourFileRetentionDays != 2 {
		t.Errorf("Expected default retention 14/2, got %d/%d", cfg.RetentionDays, cfg.HourFileRetentionDays)
	}
	if len(cfg.SupportedCountries) != 2 || cfg.SupportedCountries[1] != "FR" {
		t.Errorf("Expected countries [DE FR], got %v", cfg.SupportedCountries)
	}
	if cfg.ObjectStore.RetryBaseDelay != 200*time.Millisecond {
		t.Errorf("Expected 200ms retry delay, got %v", cfg.ObjectStore.RetryBaseDelay)
	}
	if cfg.DB.Port != 5432 {
		t.Errorf("Expected default DB port 5432, got %d", cfg.DB.Port)
	}
}

func TestLoad_FileOverridesTunables(t *testing.T) {
	t.Setenv("DIST_ENVIRONMENT", "test")
	t.Setenv("DIST_OBJECTSTORE_BUCKET", "from-env")

	path := filepath.Join(t.TempDir(), "distribution.yaml")
	content := `
retention_days: 7
supported_countries: [DE, NL]
object_store:
  max_threads: 2
  retry_base_delay: 1s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("Expected retention 7 from file, got %d", cfg.RetentionDays)
	}
	if len(cfg.SupportedCountries) != 2 || cfg.SupportedCountries[1] != "NL" {
		t.Errorf("Expected countries [DE NL], got %v", cfg.SupportedCountries)
	}
	if cfg.ObjectStore.MaxThreads != 2 || cfg.ObjectStore.RetryBaseDelay != time.Second {
		t.Errorf("Unexpected object store settings %+v", cfg.ObjectStore)
	}
	if cfg.ObjectStore.Bucket != "from-env" {
		t.Errorf("Expected bucket from environment, got %q", cfg.ObjectStore.Bucket)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("DIST_ENVIRONMENT", "test")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing config file")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Setenv("DIST_ENVIRONMENT", "test")
	t.Setenv("DIST_ORIGIN_COUNTRY", "XX")
	t.Setenv("DIST_RETENTION_DAYS", "0")
	t.Setenv("DIST_OBJECTSTORE_BACKEND", "ftp")
	t.Setenv("DIST_SCHEDULE", "not a cron")

	_, err := Load("")
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"ORIGIN_COUNTRY", "RETENTION_DAYS", "OBJECTSTORE_BACKEND", "SCHEDULE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got %v", want, err)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "<not set>"},
		{"short", "***"},
		{"supersecretvalue", "supe...alue"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
