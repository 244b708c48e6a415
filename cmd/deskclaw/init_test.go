package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/deskclaw/internal/config"
)

func TestRenderConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data, err := renderConfig(initAnswers{
		TelegramToken: " 123456:ABC-DEF ",
		AllowedUser:   "42",
		GeminiKey:     "test-key",
		Paths:         dir + ", ,",
		ImageGen:      true,
	})
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Telegram.Token != "123456:ABC-DEF" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowedUsers) != 1 || cfg.Telegram.AllowedUsers[0] != "42" {
		t.Errorf("allowed users = %v", cfg.Telegram.AllowedUsers)
	}
	if len(cfg.Sandbox.AllowedPaths) != 1 || cfg.Sandbox.AllowedPaths[0] != dir {
		t.Errorf("allowed paths = %v", cfg.Sandbox.AllowedPaths)
	}
	if !cfg.ImageGeneration.Enabled {
		t.Error("image generation should be enabled")
	}
}

func TestRenderConfigBlankSecrets(t *testing.T) {
	t.Parallel()

	data, err := renderConfig(initAnswers{AllowedUser: "42", Paths: "/tmp"})
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{envTelegramToken, envGeminiKey} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestValidateUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		wantErr bool
	}{
		{"42", false},
		{" 1234567 ", false},
		{"", true},
		{"@me", true},
	}
	for _, tt := range tests {
		if err := validateUserID(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("validateUserID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deskclaw.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "init", "-o", path)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("err = %v, want already exists", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "existing" {
		t.Errorf("file was modified: %q", got)
	}
}
