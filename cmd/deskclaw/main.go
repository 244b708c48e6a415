// Package main is the entry point for the deskclaw CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flemzord/deskclaw/pkg/app"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deskclaw",
		Short:         "A Telegram assistant that works with the files on your desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskclaw %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	var params app.RunParams
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params.Version, params.Commit, params.Date = version, commit, date
			return app.Run(runContext(cmd), params)
		},
	}
	cmd.Flags().StringVarP(&params.ConfigPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&params.DataDir, "data-dir", "", "Directory for persistent data")
	cmd.Flags().StringVar(&params.LogLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := app.LoadConfig(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s)\n", path)
			fmt.Fprintf(out, "  model:          %s\n", cfg.Gemini.Model)
			fmt.Fprintf(out, "  allowed users:  %d\n", len(cfg.Telegram.AllowedUsers))
			fmt.Fprintf(out, "  allowed paths:  %v\n", cfg.Sandbox.AllowedPaths)
			fmt.Fprintf(out, "  storage:        %s\n", cfg.Storage.Driver)
			fmt.Fprintf(out, "  image tool:     %t\n", cfg.ImageGeneration.Enabled)
			if cfg.Gateway.Enabled() {
				fmt.Fprintf(out, "  gateway:        %s\n", cfg.Gateway.Bind)
			}
			return nil
		},
	})
	return cmd
}

// runContext returns cmd's context, or Background when cobra has none.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
