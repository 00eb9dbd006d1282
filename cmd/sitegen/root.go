package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitegen/internal/config"
	"github.com/JakeFAU/sitegen/internal/server"
)

// runner is the part of server.App the commands use. It is an interface so
// tests can swap in a fake.
type runner interface {
	Run(ctx context.Context) error
}

// buildApp is the application factory, replaceable in tests.
var buildApp = func(ctx context.Context, cfg *config.Config) (runner, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sitegen",
		Short: "AI website generator backend.",
		Long: `sitegen streams AI-generated websites to the browser while persisting
the finished HTML and a screenshot of it to object storage.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the SITEGEN_ prefix")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(server.Version)
		},
	}
}

// loadConfig reads the config and applies the PORT override used by Cloud Run.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 {
			return config.Config{}, fmt.Errorf("invalid PORT %q", raw)
		}
		cfg.Server.Port = port
	}
	return cfg, nil
}
