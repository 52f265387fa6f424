package internal

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.APIURL != "http://localhost:3000" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.Namespace != DefaultNamespace {
		t.Errorf("Namespace = %q, want %q", cfg.Namespace, DefaultNamespace)
	}
	if cfg.ResetCommand != "git init" || cfg.DomainPrefix != "git " {
		t.Errorf("ResetCommand = %q, DomainPrefix = %q", cfg.ResetCommand, cfg.DomainPrefix)
	}
	if cfg.DatabasePath != filepath.Join(home, ".practice-sync", "state.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.LayoutDir != filepath.Join(home, ".practice-sync", "layout") {
		t.Errorf("LayoutDir = %q", cfg.LayoutDir)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.ReplayRetries != 1 {
		t.Errorf("RequestTimeout = %v, ReplayRetries = %d", cfg.RequestTimeout, cfg.ReplayRetries)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("PRACTICE_SYNC_API_URL", "https://practice.example")
	t.Setenv("PRACTICE_SYNC_DB", "/tmp/state.db")
	t.Setenv("PRACTICE_SYNC_LAYOUT_DIR", "/tmp/layout")
	t.Setenv("PRACTICE_SYNC_NAMESPACE", "custom")
	t.Setenv("PRACTICE_SYNC_REPLAY_RETRIES", "4")
	t.Setenv("PRACTICE_SYNC_REPLAY_RETRY_DELAY", "250ms")
	t.Setenv("PRACTICE_SYNC_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.APIURL != "https://practice.example" || cfg.DatabasePath != "/tmp/state.db" || cfg.LayoutDir != "/tmp/layout" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Namespace != "custom" || cfg.ReplayRetries != 4 || cfg.ReplayRetryDelay != 250*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "PRACTICE_SYNC_REQUEST_TIMEOUT", "soon"},
		{"bad log level", "PRACTICE_SYNC_LOG_LEVEL", "loud"},
		{"bad retries", "PRACTICE_SYNC_REPLAY_RETRIES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRACTICE_SYNC_DB", "/tmp/state.db")
			t.Setenv("PRACTICE_SYNC_LAYOUT_DIR", "/tmp/layout")
			t.Setenv(tt.key, tt.value)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%s should fail", tt.key, tt.value)
			}
		})
	}
}
