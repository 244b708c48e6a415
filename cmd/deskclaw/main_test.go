package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "deskclaw dev") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "deskclaw.yaml")
	data, err := renderConfig(initAnswers{
		TelegramToken: "123456:ABC-DEF",
		AllowedUser:   "42",
		GeminiKey:     "test-key",
		Paths:         dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "Configuration OK") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "allowed users:  1") {
		t.Errorf("output missing allowed users: %q", out)
	}
}

func TestConfigCheckInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("telegram:\n  token: \"\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "config", "check", path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestServiceConfigArguments(t *testing.T) {
	t.Parallel()

	cfg, err := serviceConfig("deskclaw.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Arguments) != 4 || cfg.Arguments[1] != "run" {
		t.Fatalf("arguments = %v", cfg.Arguments)
	}
	if !filepath.IsAbs(cfg.Arguments[3]) {
		t.Errorf("config path %q is not absolute", cfg.Arguments[3])
	}

	cfg, err = serviceConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Arguments) != 2 {
		t.Errorf("arguments without config = %v", cfg.Arguments)
	}
}
