package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Engine.Address != "127.0.0.1:8188" {
		t.Errorf("engine address = %q", cfg.Engine.Address)
	}
	if cfg.Engine.TimeoutSeconds != 300 {
		t.Errorf("timeout = %d, want 300", cfg.Engine.TimeoutSeconds)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
engine:
  address: "gpu-box:8188"
  timeout_seconds: 120
workflow:
  path: "workflows/custom.json"
  prompt_node: 14
  save_nodes: ["50", "34"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.Address != "gpu-box:8188" {
		t.Errorf("engine address = %q", cfg.Engine.Address)
	}
	if cfg.Workflow.PromptNode != 14 {
		t.Errorf("prompt node = %d, want 14", cfg.Workflow.PromptNode)
	}
	if len(cfg.Workflow.SaveNodes) != 2 || cfg.Workflow.SaveNodes[0] != "50" {
		t.Errorf("save nodes = %v", cfg.Workflow.SaveNodes)
	}
	// Defaults survive partial files.
	if cfg.Gemini.Model == "" {
		t.Error("expected default gemini model")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("COMFYUI_ADDRESS", "env-box:8188")
	t.Setenv("API_SECRET_KEY", "sekrit")
	t.Setenv("GOOGLE_API_KEY", "gkey")

	cfg := defaults()
	cfg.applyEnv()

	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Engine.Address != "env-box:8188" {
		t.Errorf("engine address = %q", cfg.Engine.Address)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validate error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing secrets")
	}

	cfg.Auth.APISecretKey = "sekrit"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing google api key")
	}

	cfg.Gemini.APIKey = "gkey"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
