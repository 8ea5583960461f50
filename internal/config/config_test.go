package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerURL != "ws://localhost:8080/ws" {
		t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.SpaceType != "workspace" {
		t.Errorf("SpaceType = %q, want workspace", cfg.SpaceType)
	}
	if cfg.StatePath == "" {
		t.Error("StatePath should have a default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SYNCKIT_SERVER_URL", "wss://sync.example.com/ws")
	t.Setenv("SYNCKIT_WORKSPACE_ID", "ws-env")
	t.Setenv("SYNCKIT_LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.ServerURL != "wss://sync.example.com/ws" {
		t.Errorf("ServerURL = %q, want env value", cfg.ServerURL)
	}
	if cfg.WorkspaceID != "ws-env" {
		t.Errorf("WorkspaceID = %q, want ws-env", cfg.WorkspaceID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synckit.yaml")
	content := "serverUrl: wss://file.example.com/ws\nworkspaceId: ws-file\nspaceType: userspace\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.ServerURL != "wss://file.example.com/ws" {
		t.Errorf("ServerURL = %q, want file value", cfg.ServerURL)
	}
	if cfg.WorkspaceID != "ws-file" {
		t.Errorf("WorkspaceID = %q, want ws-file", cfg.WorkspaceID)
	}
	if cfg.SpaceType != "userspace" {
		t.Errorf("SpaceType = %q, want userspace", cfg.SpaceType)
	}
}

func TestLoadFile_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synckit.yaml")
	if err := os.WriteFile(path, []byte("workspaceId: ws-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYNCKIT_WORKSPACE_ID", "ws-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.WorkspaceID != "ws-env" {
		t.Errorf("WorkspaceID = %q, env must win over file", cfg.WorkspaceID)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error, got %v", err)
	}
	if cfg.SpaceType != "workspace" {
		t.Errorf("SpaceType = %q, want default", cfg.SpaceType)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synckit.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("malformed yaml must error")
	}
}
