package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/deskclaw/internal/config"
	"github.com/flemzord/deskclaw/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Environment references written when a secret is left blank.
const (
	envTelegramToken = "${DESKCLAW_TELEGRAM_TOKEN}"
	envGeminiKey     = "${DESKCLAW_GEMINI_API_KEY}"
)

// initAnswers are the values collected by the init form.
type initAnswers struct {
	TelegramToken string
	AllowedUser   string
	GeminiKey     string
	Paths         string
	ImageGen      bool
}

// starterConfig is the subset of the configuration written by init. Field
// order is the order in the generated file.
type starterConfig struct {
	Telegram struct {
		Token        string   `yaml:"token"`
		AllowedUsers []string `yaml:"allowed_users"`
	} `yaml:"telegram"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"gemini"`
	Sandbox struct {
		AllowedPaths []string `yaml:"allowed_paths"`
	} `yaml:"sandbox"`
	ImageGeneration struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"image_generation"`
}

func initCmd() *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				out = app.DefaultConfigPath()
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", out)
			}

			answers := initAnswers{Paths: strings.Join(config.DefaultAllowedPaths, ", ")}
			if err := initForm(&answers).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}

			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\nRun `deskclaw config check %s` to verify it.\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Where to write the configuration")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather. Leave empty to read "+envTelegramToken+".").
				EchoMode(huh.EchoModePassword).
				Value(&a.TelegramToken),
			huh.NewInput().
				Title("Your Telegram user id").
				Description("Only this user may talk to the bot.").
				Validate(validateUserID).
				Value(&a.AllowedUser),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gemini API key").
				Description("From Google AI Studio. Leave empty to read "+envGeminiKey+".").
				EchoMode(huh.EchoModePassword).
				Value(&a.GeminiKey),
			huh.NewInput().
				Title("Allowed folders").
				Description("Comma separated. Tools cannot touch anything else.").
				Value(&a.Paths),
			huh.NewConfirm().
				Title("Enable image generation?").
				Description("Requires Node.js (runs the nanobanana MCP server via npx).").
				Value(&a.ImageGen),
		),
	)
}

func validateUserID(s string) error {
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return errors.New("enter your numeric Telegram user id")
	}
	return nil
}

// renderConfig turns the answers into YAML. Blank secrets become
// environment references.
func renderConfig(a initAnswers) ([]byte, error) {
	var sc starterConfig

	sc.Telegram.Token = strings.TrimSpace(a.TelegramToken)
	if sc.Telegram.Token == "" {
		sc.Telegram.Token = envTelegramToken
	}
	sc.Telegram.AllowedUsers = []string{strings.TrimSpace(a.AllowedUser)}

	sc.Gemini.APIKey = strings.TrimSpace(a.GeminiKey)
	if sc.Gemini.APIKey == "" {
		sc.Gemini.APIKey = envGeminiKey
	}

	for _, p := range strings.Split(a.Paths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			sc.Sandbox.AllowedPaths = append(sc.Sandbox.AllowedPaths, p)
		}
	}
	sc.ImageGeneration.Enabled = a.ImageGen

	data, err := yaml.Marshal(&sc)
	if err != nil {
		return nil, fmt.Errorf("render configuration: %w", err)
	}
	return append([]byte("# deskclaw configuration. See `deskclaw config check`.\n"), data...), nil
}
