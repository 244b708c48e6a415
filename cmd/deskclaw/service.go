package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/deskclaw/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts app.Run to the service manager's Start/Stop callbacks.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

// Start implements service.Interface. It must not block.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		err := app.Run(ctx, p.params)
		if err != nil && ctx.Err() == nil {
			slog.Error("deskclaw exited", "error", err)
			os.Exit(1)
		}
		p.done <- err
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func serviceConfig(configPath string) (*service.Config, error) {
	args := []string{"service", "run"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        "deskclaw",
		DisplayName: "deskclaw",
		Description: "Telegram assistant for local files and web research.",
		Arguments:   args,
		Option: service.KeyValue{
			// Run as the desktop user so the sandbox sees their folders.
			"UserService": true,
		},
	}, nil
}

func newService(configPath string) (service.Service, *program, error) {
	cfg, err := serviceConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{params: app.RunParams{
		ConfigPath: configPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}}
	s, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	return s, prg, nil
}

func serviceCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage deskclaw as a background service",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	for _, action := range []struct{ name, short string }{
		{"install", "Install the service"},
		{"uninstall", "Remove the service"},
		{"start", "Start the installed service"},
		{"stop", "Stop the running service"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if action.name == "install" {
					// Fail now rather than when the service manager starts us.
					if _, _, err := app.LoadConfig(configPath); err != nil {
						return err
					}
				}
				s, _, err := newService(configPath)
				if err != nil {
					return err
				}
				if err := service.Control(s, action.name); err != nil {
					return fmt.Errorf("service %s: %w", action.name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action.name)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		RunE: func(*cobra.Command, []string) error {
			s, _, err := newService(configPath)
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}
