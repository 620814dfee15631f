package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, env, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	name := filepath.Join(dir, "config", "config."+env+".yaml")
	if err := os.WriteFile(name, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Proposals.InviteTTL != 5*time.Minute || cfg.Proposals.AutoMoveWindow != 10*time.Minute {
		t.Fatalf("Proposals = %+v, want 5m/10m", cfg.Proposals)
	}
	if cfg.Rooms.DeletionDelay != 0 {
		t.Fatalf("DeletionDelay = %v, want 0", cfg.Rooms.DeletionDelay)
	}
	if cfg.Rooms.Category != "Voice" || !slices.Equal(cfg.Rooms.Static, []string{"Lobby"}) {
		t.Fatalf("Rooms = %+v", cfg.Rooms)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "test", `
port: 9000
log_level: debug
rooms:
  trigger: "Create"
  static: ["General", "Music"]
  deletion_delay: 30s
proposals:
  invite_ttl: 2m
authority:
  elevated_roles: ["mod"]
`)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("TEMPVOICE_LOG_LEVEL", "warn")

	cfg, err := Load([]string{"--port", "9100"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("Port = %d, want flag value 9100", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want env value warn", cfg.LogLevel)
	}
	if cfg.Rooms.Trigger != "Create" || !slices.Equal(cfg.Rooms.Static, []string{"General", "Music"}) {
		t.Fatalf("Rooms = %+v", cfg.Rooms)
	}
	if cfg.Rooms.DeletionDelay != 30*time.Second {
		t.Fatalf("DeletionDelay = %v, want 30s", cfg.Rooms.DeletionDelay)
	}
	if cfg.Proposals.InviteTTL != 2*time.Minute || cfg.Proposals.AutoMoveWindow != 10*time.Minute {
		t.Fatalf("Proposals = %+v, want 2m/10m", cfg.Proposals)
	}
	if !slices.Equal(cfg.Authority.ElevatedRoles, []string{"mod"}) {
		t.Fatalf("ElevatedRoles = %v, want [mod]", cfg.Authority.ElevatedRoles)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero ttl", "proposals:\n  invite_ttl: 0s\n"},
		{"negative delay", "rooms:\n  deletion_delay: -1s\n"},
		{"name format", "rooms:\n  name_format: \"room\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			writeConfig(t, dir, "bad", tt.body)
			if _, err := Load([]string{"--config-env", "bad"}); err == nil {
				t.Fatal("Load() error = nil, want validation error")
			}
		})
	}
}
