package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("DESKCLAW_TEST_TOKEN", "123456:abc")

	dir := t.TempDir()
	path := filepath.Join(dir, "deskclaw.yaml")
	data := `
telegram:
  token: ${DESKCLAW_TEST_TOKEN}
  allowed_users: ["42"]
gemini:
  api_key: ${DESKCLAW_TEST_MISSING:-fallback-key}
sandbox:
  allowed_paths: ["` + dir + `"]
approval:
  timeout: 45s
storage:
  driver: memory
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123456:abc" {
		t.Errorf("Token = %q", cfg.Telegram.Token)
	}
	if cfg.Gemini.APIKey != "fallback-key" {
		t.Errorf("APIKey = %q", cfg.Gemini.APIKey)
	}
	if cfg.Approval.Timeout != 45*time.Second {
		t.Errorf("Approval.Timeout = %v", cfg.Approval.Timeout)
	}
	if cfg.Sandbox.DefaultWorkingDir != dir {
		t.Errorf("DefaultWorkingDir = %q, want %q", cfg.Sandbox.DefaultWorkingDir, dir)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParse_UnresolvedVariables(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("telegram:\n  token: ${DESKCLAW_UNSET_A}\ngemini:\n  api_key: ${DESKCLAW_UNSET_B}\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"DESKCLAW_UNSET_A", "DESKCLAW_UNSET_B"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("not: valid: yaml: [")); err == nil {
		t.Fatal("expected error")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/Documents", filepath.Join(home, "Documents")},
		{"/abs/path", "/abs/path"},
		{"~user/x", "~user/x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
